// Package order lists the owner's incoming orders and moves them through
// their delivery states.
package order

import (
	"fmt"
	"time"

	"github.com/noah-isme/restaurant-admin/internal/querycache"
)

// Cache key and endpoint for the owner's orders.
const (
	QueryKey querycache.Key = "fetchMyRestaurantOrders"
	Path                    = "/api/my/restaurant/order"
)

// Notification texts.
const (
	MsgStatusUpdated      = "Order updated"
	MsgStatusUpdateFailed = "Unable to update order"
)

// Status is the delivery state of an order.
type Status string

const (
	StatusPlaced         Status = "placed"
	StatusPaid           Status = "paid"
	StatusInProgress     Status = "inProgress"
	StatusOutForDelivery Status = "outForDelivery"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"
)

// Statuses lists every status in delivery order.
var Statuses = []Status{
	StatusPlaced,
	StatusPaid,
	StatusInProgress,
	StatusOutForDelivery,
	StatusDelivered,
	StatusCancelled,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// ParseStatus converts raw into a Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
	}
	return s, nil
}

// DeliveryDetails is where and to whom the order goes.
type DeliveryDetails struct {
	Email        string `json:"email"`
	Name         string `json:"name"`
	AddressLine1 string `json:"addressLine1"`
	City         string `json:"city"`
}

// CartItem is one line of the order.
type CartItem struct {
	MenuItemID string `json:"menuItemId"`
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
}

// Order is a customer order placed with the owner's restaurant.
type Order struct {
	ID              string          `json:"id"`
	Restaurant      string          `json:"restaurant,omitempty"`
	User            string          `json:"user,omitempty"`
	DeliveryDetails DeliveryDetails `json:"deliveryDetails"`
	CartItems       []CartItem      `json:"cartItems,omitempty"`
	TotalAmount     int             `json:"totalAmount,omitempty"`
	Status          Status          `json:"status"`
	CreatedAt       *time.Time      `json:"createdAt,omitempty"`
}

// StatusUpdate is the input of the status mutation.
type StatusUpdate struct {
	OrderID string
	Status  Status
}

// Rank orders statuses along the delivery flow. Cancelled ranks below every
// other status.
func (s Status) Rank() int {
	switch s {
	case StatusPlaced:
		return 0
	case StatusPaid:
		return 1
	case StatusInProgress:
		return 2
	case StatusOutForDelivery:
		return 3
	case StatusDelivered:
		return 4
	case StatusCancelled:
		return -1
	default:
		return -2
	}
}

// CanTransition reports whether an order may move from one status to
// another. Orders only move forward, and may be cancelled until delivered.
func CanTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() || from == to {
		return false
	}
	if from == StatusDelivered || from == StatusCancelled {
		return false
	}
	if to == StatusCancelled {
		return true
	}
	return to.Rank() > from.Rank()
}
