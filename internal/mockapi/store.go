// Package mockapi is an in-memory stand-in for the restaurant backend, used
// for local development and end-to-end tests of the hooks.
package mockapi

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/restaurant-admin/internal/common"
	"github.com/noah-isme/restaurant-admin/internal/order"
	"github.com/noah-isme/restaurant-admin/internal/restaurant"
)

type image struct {
	filename string
	data     []byte
}

// Store keeps one restaurant per owner and the orders placed with it.
type Store struct {
	mu          sync.RWMutex
	restaurants map[string]restaurant.Restaurant // by owner
	orders      map[string][]order.Order         // by restaurant id
	images      map[string]image
	now         func() time.Time
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		restaurants: map[string]restaurant.Restaurant{},
		orders:      map[string][]order.Order{},
		images:      map[string]image{},
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func errNoRestaurant() *common.AppError { return common.NotFound("restaurant not found") }

// Restaurant returns the owner's restaurant.
func (s *Store) Restaurant(owner string) (restaurant.Restaurant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.restaurants[owner]
	if !ok {
		return restaurant.Restaurant{}, errNoRestaurant()
	}
	return r, nil
}

// CreateRestaurant stores r for owner. Each owner has at most one restaurant.
func (s *Store) CreateRestaurant(owner string, r restaurant.Restaurant, img *image) (restaurant.Restaurant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.restaurants[owner]; exists {
		return restaurant.Restaurant{}, common.Conflict("user restaurant already exists")
	}
	r.ID = uuid.NewString()
	r.User = owner
	s.stamp(&r, img)
	s.restaurants[owner] = r
	return r, nil
}

// UpdateRestaurant replaces the owner's restaurant details. The image is
// kept unless a new one is supplied, and menu items keep their ids by name
// so existing orders still reference them.
func (s *Store) UpdateRestaurant(owner string, r restaurant.Restaurant, img *image) (restaurant.Restaurant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.restaurants[owner]
	if !ok {
		return restaurant.Restaurant{}, errNoRestaurant()
	}
	r.ID = current.ID
	r.User = owner
	r.ImageURL = current.ImageURL
	keepMenuIDs(current.MenuItems, r.MenuItems)
	s.stamp(&r, img)
	s.restaurants[owner] = r
	return r, nil
}

func (s *Store) stamp(r *restaurant.Restaurant, img *image) {
	now := s.now()
	r.LastUpdated = &now
	for i := range r.MenuItems {
		if r.MenuItems[i].ID == "" {
			r.MenuItems[i].ID = uuid.NewString()
		}
	}
	if img != nil {
		id := uuid.NewString()
		s.images[id] = *img
		r.ImageURL = "/api/dev/images/" + id
	}
}

// keepMenuIDs copies ids from prev onto same-named items in next. Repeated
// names are matched in order.
func keepMenuIDs(prev, next []restaurant.MenuItem) {
	ids := make(map[string][]string, len(prev))
	for _, m := range prev {
		ids[m.Name] = append(ids[m.Name], m.ID)
	}
	for i := range next {
		if next[i].ID != "" {
			continue
		}
		if queue := ids[next[i].Name]; len(queue) > 0 {
			next[i].ID, ids[next[i].Name] = queue[0], queue[1:]
		}
	}
}

// Image returns a stored upload.
func (s *Store) Image(id string) (image, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	img, ok := s.images[id]
	return img, ok
}

// Orders lists the orders of the owner's restaurant, newest first.
func (s *Store) Orders(owner string) ([]order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.restaurants[owner]
	if !ok {
		return nil, errNoRestaurant()
	}
	list := append([]order.Order{}, s.orders[r.ID]...)
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(*list[j].CreatedAt)
	})
	return list, nil
}

// PlaceOrder adds a new order to the owner's restaurant.
func (s *Store) PlaceOrder(owner string, o order.Order) (order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.restaurants[owner]
	if !ok {
		return order.Order{}, errNoRestaurant()
	}
	now := s.now()
	o.ID = uuid.NewString()
	o.Restaurant = r.ID
	o.Status = order.StatusPlaced
	o.CreatedAt = &now
	if o.TotalAmount == 0 {
		o.TotalAmount = total(r, o.CartItems)
	}
	s.orders[r.ID] = append(s.orders[r.ID], o)
	return o, nil
}

// UpdateOrderStatus moves an order of the owner's restaurant to status.
func (s *Store) UpdateOrderStatus(owner, orderID string, status order.Status) (order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.restaurants[owner]
	if !ok {
		return order.Order{}, errNoRestaurant()
	}
	list := s.orders[r.ID]
	for i := range list {
		if list[i].ID != orderID {
			continue
		}
		if !order.CanTransition(list[i].Status, status) {
			return order.Order{}, common.NewAppError("INVALID_STATE", "cannot transition to equal or previous state", http.StatusConflict, nil)
		}
		list[i].Status = status
		return list[i], nil
	}
	return order.Order{}, common.NotFound("order not found")
}

func total(r restaurant.Restaurant, items []order.CartItem) int {
	prices := make(map[string]int, len(r.MenuItems))
	for _, m := range r.MenuItems {
		prices[m.ID] = m.Price
	}
	sum := r.DeliveryPrice
	for _, it := range items {
		sum += prices[it.MenuItemID] * it.Quantity
	}
	return sum
}
