package order

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/restaurant-admin/internal/apiclient"
	"github.com/noah-isme/restaurant-admin/internal/auth"
	"github.com/noah-isme/restaurant-admin/internal/notify"
	"github.com/noah-isme/restaurant-admin/internal/querycache"
)

var (
	ErrUnknownStatus = errors.New("order: unknown status")
	ErrMissingID     = errors.New("order: order id is required")
)

// API builds the order hooks.
type API struct {
	Client   *apiclient.Client
	Tokens   auth.TokenProvider
	Notifier notify.Notifier
	Cache    *querycache.Client
	Logger   zerolog.Logger
}

// Fetch loads the owner's orders once, outside the cache.
func (a API) Fetch(ctx context.Context) ([]Order, error) {
	token, err := auth.Acquire(ctx, a.Tokens)
	if err != nil {
		return nil, err
	}
	resp, err := a.Client.Do(ctx, apiclient.Request{
		Operation:   "get_my_restaurant_orders",
		Method:      http.MethodGet,
		Path:        Path,
		Token:       token,
		ContentType: apiclient.ContentTypeJSON,
	})
	if err != nil {
		return nil, err
	}
	var orders []Order
	if err := resp.DecodeJSON(&orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// GetMyRestaurantOrders returns the query hook for the owner's orders. Run
// leaves Data nil on any failure and never reports an error to the caller.
func (a API) GetMyRestaurantOrders() *querycache.Query[[]Order] {
	return querycache.NewQuery(a.Cache, QueryKey, a.Fetch)
}

// UpdateMyRestaurantOrderStatus returns the status mutation. Unlike the
// restaurant mutations a failure is notified and also returned by Mutate.
func (a API) UpdateMyRestaurantOrderStatus() *querycache.Mutation[StatusUpdate, Order] {
	return querycache.NewMutation(a.Cache, querycache.MutationConfig[StatusUpdate, Order]{
		Name:        "update_my_restaurant_order_status",
		Do:          a.updateStatus,
		OnSuccess:   func(ctx context.Context, _ Order) { a.notify(ctx, notify.Success(MsgStatusUpdated)) },
		OnError:     func(ctx context.Context, _ error) { a.notify(ctx, notify.Error(MsgStatusUpdateFailed)) },
		Invalidates: []querycache.Key{QueryKey},
		Policy:      querycache.ReturnError,
	})
}

func (a API) updateStatus(ctx context.Context, in StatusUpdate) (Order, error) {
	if strings.TrimSpace(in.OrderID) == "" {
		return Order{}, ErrMissingID
	}
	if _, err := ParseStatus(string(in.Status)); err != nil {
		return Order{}, err
	}
	token, err := auth.Acquire(ctx, a.Tokens)
	if err != nil {
		return Order{}, err
	}
	body, err := apiclient.JSONBody(struct {
		Status Status `json:"status"`
	}{Status: in.Status})
	if err != nil {
		return Order{}, err
	}
	resp, err := a.Client.Do(ctx, apiclient.Request{
		Operation:   "update_my_restaurant_order_status",
		Method:      http.MethodPut,
		Path:        Path + "/" + url.PathEscape(in.OrderID) + "/status",
		Token:       token,
		ContentType: apiclient.ContentTypeJSON,
		Body:        body,
	})
	if err != nil {
		return Order{}, err
	}
	var o Order
	if err := resp.DecodeJSON(&o); err != nil {
		if errors.Is(err, apiclient.ErrEmptyBody) {
			return Order{ID: in.OrderID, Status: in.Status}, nil
		}
		return Order{}, err
	}
	return o, nil
}

func (a API) notify(ctx context.Context, n notify.Notification) {
	if a.Notifier == nil {
		return
	}
	if err := a.Notifier.Notify(ctx, n); err != nil {
		a.Logger.Warn().Err(err).Str("message", n.Message).Msg("notification_failed")
	}
}
