package restaurant

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/noah-isme/restaurant-admin/internal/apiclient"
	"github.com/noah-isme/restaurant-admin/internal/auth"
	"github.com/noah-isme/restaurant-admin/internal/notify"
	"github.com/noah-isme/restaurant-admin/internal/querycache"
)

// ErrNoFormData is returned when a mutation is called without a payload.
var ErrNoFormData = errors.New("restaurant: form data is required")

// API builds the restaurant hooks. All fields are required except Logger.
type API struct {
	Client   *apiclient.Client
	Tokens   auth.TokenProvider
	Notifier notify.Notifier
	Cache    *querycache.Client
	Logger   zerolog.Logger
}

// Fetch loads the owner's restaurant once, outside the cache.
func (a API) Fetch(ctx context.Context) (Restaurant, error) {
	token, err := auth.Acquire(ctx, a.Tokens)
	if err != nil {
		return Restaurant{}, err
	}
	resp, err := a.Client.Do(ctx, apiclient.Request{
		Operation: "get_my_restaurant",
		Method:    http.MethodGet,
		Path:      Path,
		Token:     token,
	})
	if err != nil {
		return Restaurant{}, err
	}
	var r Restaurant
	if err := resp.DecodeJSON(&r); err != nil {
		return Restaurant{}, err
	}
	return r, nil
}

// GetMyRestaurant returns the query hook for the owner's restaurant. Run
// leaves Data nil on any failure and never reports an error to the caller.
func (a API) GetMyRestaurant() *querycache.Query[Restaurant] {
	return querycache.NewQuery(a.Cache, QueryKey, a.Fetch)
}

// CreateMyRestaurant returns the create mutation. Failures are notified and
// kept in the mutation state; Mutate then returns a zero Restaurant and nil.
func (a API) CreateMyRestaurant() *querycache.Mutation[*FormData, Restaurant] {
	return querycache.NewMutation(a.Cache, querycache.MutationConfig[*FormData, Restaurant]{
		Name: "create_my_restaurant",
		Do: func(ctx context.Context, fd *FormData) (Restaurant, error) {
			return a.send(ctx, "create_my_restaurant", http.MethodPost, fd)
		},
		OnSuccess:   func(ctx context.Context, _ Restaurant) { a.notify(ctx, notify.Success(MsgCreated)) },
		OnError:     func(ctx context.Context, _ error) { a.notify(ctx, notify.Error(MsgCreateRestaurantFailed)) },
		Invalidates: []querycache.Key{QueryKey},
		Policy:      querycache.CaptureError,
	})
}

// UpdateMyRestaurant returns the update mutation with the same error policy
// as CreateMyRestaurant.
func (a API) UpdateMyRestaurant() *querycache.Mutation[*FormData, Restaurant] {
	return querycache.NewMutation(a.Cache, querycache.MutationConfig[*FormData, Restaurant]{
		Name: "update_my_restaurant",
		Do: func(ctx context.Context, fd *FormData) (Restaurant, error) {
			return a.send(ctx, "update_my_restaurant", http.MethodPut, fd)
		},
		OnSuccess:   func(ctx context.Context, _ Restaurant) { a.notify(ctx, notify.Success(MsgUpdated)) },
		OnError:     func(ctx context.Context, _ error) { a.notify(ctx, notify.Error(MsgUpdateRestaurantFailed)) },
		Invalidates: []querycache.Key{QueryKey},
		Policy:      querycache.CaptureError,
	})
}

func (a API) send(ctx context.Context, op, method string, fd *FormData) (Restaurant, error) {
	if fd == nil {
		return Restaurant{}, ErrNoFormData
	}
	token, err := auth.Acquire(ctx, a.Tokens)
	if err != nil {
		return Restaurant{}, err
	}
	resp, err := a.Client.Do(ctx, apiclient.Request{
		Operation:   op,
		Method:      method,
		Path:        Path,
		Token:       token,
		ContentType: fd.ContentType(),
		Body:        fd.Reader(),
	})
	if err != nil {
		return Restaurant{}, err
	}
	var r Restaurant
	if err := resp.DecodeJSON(&r); err != nil {
		return Restaurant{}, err
	}
	return r, nil
}

func (a API) notify(ctx context.Context, n notify.Notification) {
	if a.Notifier == nil {
		return
	}
	if err := a.Notifier.Notify(ctx, n); err != nil {
		a.Logger.Warn().Err(err).Str("message", n.Message).Msg("notification_failed")
	}
}
