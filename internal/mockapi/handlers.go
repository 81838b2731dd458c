package mockapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/restaurant-admin/internal/auth"
	"github.com/noah-isme/restaurant-admin/internal/common"
	"github.com/noah-isme/restaurant-admin/internal/order"
)

// Handler serves the restaurant owner endpoints.
type Handler struct {
	Store  *Store
	Issuer *auth.Issuer
	Logger zerolog.Logger
}

func owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := common.UserID(r.Context())
	if !ok || id == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return "", false
	}
	return id, true
}

// GetMyRestaurant handles GET /api/my/restaurant.
func (h *Handler) GetMyRestaurant(w http.ResponseWriter, r *http.Request) {
	user, ok := owner(w, r)
	if !ok {
		return
	}
	rest, err := h.Store.Restaurant(user)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, rest)
}

// CreateMyRestaurant handles POST /api/my/restaurant.
func (h *Handler) CreateMyRestaurant(w http.ResponseWriter, r *http.Request) {
	user, ok := owner(w, r)
	if !ok {
		return
	}
	in, img, err := parseRestaurantForm(w, r)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	rest, err := h.Store.CreateRestaurant(user, in, img)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	h.Logger.Info().Str("user_id", user).Str("restaurant_id", rest.ID).Msg("restaurant_created")
	common.JSON(w, http.StatusCreated, rest)
}

// UpdateMyRestaurant handles PUT /api/my/restaurant.
func (h *Handler) UpdateMyRestaurant(w http.ResponseWriter, r *http.Request) {
	user, ok := owner(w, r)
	if !ok {
		return
	}
	in, img, err := parseRestaurantForm(w, r)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	rest, err := h.Store.UpdateRestaurant(user, in, img)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, rest)
}

// GetMyRestaurantOrders handles GET /api/my/restaurant/order.
func (h *Handler) GetMyRestaurantOrders(w http.ResponseWriter, r *http.Request) {
	user, ok := owner(w, r)
	if !ok {
		return
	}
	orders, err := h.Store.Orders(user)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, orders)
}

type statusRequest struct {
	Status string `json:"status"`
}

// UpdateOrderStatus handles PUT /api/my/restaurant/order/{orderId}/status.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	user, ok := owner(w, r)
	if !ok {
		return
	}
	orderID := chi.URLParam(r, "orderId")
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload")
		return
	}
	if req.Status == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "status is required")
		return
	}
	status, err := order.ParseStatus(req.Status)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unsupported status")
		return
	}
	updated, err := h.Store.UpdateOrderStatus(user, orderID, status)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	h.Logger.Info().Str("order_id", orderID).Str("status", string(status)).Msg("order_status_updated")
	common.JSON(w, http.StatusOK, updated)
}

type seedOrderRequest struct {
	DeliveryDetails order.DeliveryDetails `json:"deliveryDetails"`
	CartItems       []order.CartItem      `json:"cartItems"`
	TotalAmount     int                   `json:"totalAmount"`
}

// SeedOrder handles POST /api/dev/orders, placing an order with the caller's
// restaurant as if a customer had checked out.
func (h *Handler) SeedOrder(w http.ResponseWriter, r *http.Request) {
	user, ok := owner(w, r)
	if !ok {
		return
	}
	var req seedOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload")
		return
	}
	o, err := h.Store.PlaceOrder(user, order.Order{
		User:            "customer",
		DeliveryDetails: req.DeliveryDetails,
		CartItems:       req.CartItems,
		TotalAmount:     req.TotalAmount,
	})
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, o)
}

type tokenRequest struct {
	GrantType string `json:"grant_type"`
	ClientID  string `json:"client_id"`
	Subject   string `json:"subject"`
}

// Token handles POST /api/dev/token. It accepts a client-credentials grant,
// whose client_id becomes the token subject, or a bare {"subject": "..."}.
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	if h.Issuer == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "token issuer not configured")
		return
	}
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.TokenError(w, "invalid_request", "invalid payload")
		return
	}
	subject := strings.TrimSpace(req.Subject)
	if req.GrantType != "" {
		if req.GrantType != "client_credentials" {
			common.TokenError(w, "unsupported_grant_type", "")
			return
		}
		subject = strings.TrimSpace(req.ClientID)
	}
	if subject == "" {
		common.TokenError(w, "invalid_request", "subject is required")
		return
	}
	token, expiresAt, err := h.Issuer.Issue(subject)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Token(w, common.TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(time.Until(expiresAt).Seconds()),
	})
}

// Image handles GET /api/dev/images/{id}.
func (h *Handler) Image(w http.ResponseWriter, r *http.Request) {
	img, ok := h.Store.Image(chi.URLParam(r, "id"))
	if !ok {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "image not found")
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(img.data))
	w.Header().Set("Content-Disposition", `inline; filename="`+strings.ReplaceAll(img.filename, `"`, "")+`"`)
	_, _ = w.Write(img.data)
}
