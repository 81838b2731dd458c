// Package restaurant holds the owner's restaurant profile and the hooks that
// read and write it through the backend API.
package restaurant

import (
	"time"

	"github.com/noah-isme/restaurant-admin/internal/querycache"
)

// Cache key and endpoint for the owner's restaurant.
const (
	QueryKey querycache.Key = "fetchMyRestaurant"
	Path                    = "/api/my/restaurant"
)

// Notification texts.
const (
	MsgCreated                = "Restaurant created!"
	MsgUpdated                = "Restaurant Updated"
	MsgUpdateRestaurantFailed = "Unable to update restaurant"
	// MsgCreateRestaurantFailed reuses the update wording; the product copy
	// for a failed create has not been decided.
	MsgCreateRestaurantFailed = MsgUpdateRestaurantFailed
)

// MenuItem is one dish on the menu. Price is in minor units.
type MenuItem struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Price int    `json:"price"`
}

// Restaurant is the backend's view of the owner's restaurant.
type Restaurant struct {
	ID                    string     `json:"id"`
	User                  string     `json:"user,omitempty"`
	Name                  string     `json:"name"`
	City                  string     `json:"city"`
	State                 string     `json:"state,omitempty"`
	Country               string     `json:"country"`
	DeliveryPrice         int        `json:"deliveryPrice"`
	EstimatedDeliveryTime int        `json:"estimatedDeliveryTime"`
	Cuisines              []string   `json:"cuisines,omitempty"`
	MenuItems             []MenuItem `json:"menuItems,omitempty"`
	ImageURL              string     `json:"imageUrl,omitempty"`
	LastUpdated           *time.Time `json:"lastUpdated,omitempty"`
}
