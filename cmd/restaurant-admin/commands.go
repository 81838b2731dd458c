package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/noah-isme/restaurant-admin/internal/auth"
	"github.com/noah-isme/restaurant-admin/internal/form"
	"github.com/noah-isme/restaurant-admin/internal/order"
	"github.com/noah-isme/restaurant-admin/internal/restaurant"
)

func (a *app) dispatch(ctx context.Context, cmd string, args []string) int {
	switch cmd {
	case "get":
		return a.get(ctx)
	case "create":
		return a.save(ctx, false, args)
	case "update":
		return a.save(ctx, true, args)
	case "orders":
		return a.listOrders(ctx)
	case "set-status":
		return a.setStatus(ctx, args)
	case "token":
		return a.token(ctx)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		return 2
	}
}

func (a *app) get(ctx context.Context) int {
	res := a.restaurants.GetMyRestaurant().Run(ctx)
	if res.Data == nil {
		a.logger.Error().Err(res.Err).Msg("no restaurant loaded")
		return 1
	}
	return a.printJSON(res.Data)
}

// restaurantFlags collects the profile fields of create and update.
type restaurantFlags struct {
	fs        *flag.FlagSet
	fields    map[string]*string
	cuisines  []string
	menuItems []restaurant.MenuItemInput
	image     string
}

func newRestaurantFlags(name string) *restaurantFlags {
	rf := &restaurantFlags{fs: flag.NewFlagSet(name, flag.ContinueOnError), fields: map[string]*string{}}
	for _, f := range form.DetailsFields {
		rf.fields[f.Name] = rf.fs.String(f.Name, "", f.Label)
	}
	rf.fs.Func("cuisine", "cuisine served (repeatable)", func(v string) error {
		rf.cuisines = append(rf.cuisines, strings.TrimSpace(v))
		return nil
	})
	rf.fs.Func("menu-item", "menu item as name=price (repeatable)", func(v string) error {
		i := strings.LastIndex(v, "=")
		if i <= 0 {
			return fmt.Errorf("menu item %q: want name=price", v)
		}
		rf.menuItems = append(rf.menuItems, restaurant.MenuItemInput{
			Name:  strings.TrimSpace(v[:i]),
			Price: strings.TrimSpace(v[i+1:]),
		})
		return nil
	})
	rf.fs.StringVar(&rf.image, "image", "", "path of the restaurant image")
	return rf
}

// apply copies every flag the user set onto the form state.
func (rf *restaurantFlags) apply(st *form.State) error {
	rf.fs.Visit(func(f *flag.Flag) {
		if p, ok := rf.fields[f.Name]; ok {
			st.Set(f.Name, *p)
		}
	})
	var img *restaurant.Image
	if rf.image != "" {
		content, err := os.ReadFile(rf.image)
		if err != nil {
			return fmt.Errorf("read image: %w", err)
		}
		img = &restaurant.Image{Filename: filepath.Base(rf.image), Content: content}
	}
	st.Update(func(f *restaurant.Form) {
		if len(rf.cuisines) > 0 {
			f.Cuisines = rf.cuisines
		}
		if len(rf.menuItems) > 0 {
			f.MenuItems = rf.menuItems
		}
		if img != nil {
			f.Image = img
		}
	})
	return nil
}

func (a *app) save(ctx context.Context, update bool, args []string) int {
	name := "create"
	if update {
		name = "update"
	}
	rf := newRestaurantFlags(name)
	if err := rf.fs.Parse(args); err != nil {
		return 2
	}

	var initial restaurant.Form
	if update {
		res := a.restaurants.GetMyRestaurant().Run(ctx)
		if res.Data == nil {
			a.logger.Error().Err(res.Err).Msg("no restaurant to update")
			return 1
		}
		initial = restaurant.FormFromRestaurant(*res.Data)
	}

	st := form.NewState(initial)
	if err := rf.apply(st); err != nil {
		a.logger.Error().Err(err).Msg("read flags")
		return 2
	}
	section := form.NewDetailsSection()
	fd, err := st.Submit()
	if err != nil {
		var fe restaurant.FieldErrors
		if errors.As(err, &fe) {
			_ = section.Render(os.Stderr, st)
		}
		a.logger.Error().Err(err).Msg("form is not valid")
		return 2
	}
	if err := section.Render(a.out, st); err != nil {
		a.logger.Error().Err(err).Msg("render form")
	}

	m := a.restaurants.CreateMyRestaurant()
	if update {
		m = a.restaurants.UpdateMyRestaurant()
	}
	saved, _ := m.Mutate(ctx, fd)
	if state := m.State(); state.IsError {
		a.logger.Debug().Err(state.Err).Str("command", name).Msg("mutation failed")
		return 1
	}
	return a.printJSON(saved)
}

func (a *app) listOrders(ctx context.Context) int {
	res := a.orders.GetMyRestaurantOrders().Run(ctx)
	if res.Data == nil {
		a.logger.Error().Err(res.Err).Msg("no orders loaded")
		return 1
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tTOTAL\tCUSTOMER\tPLACED")
	for _, o := range *res.Data {
		placed := "-"
		if o.CreatedAt != nil {
			placed = o.CreatedAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", o.ID, o.Status, o.TotalAmount, o.DeliveryDetails.Name, placed)
	}
	if err := tw.Flush(); err != nil {
		a.logger.Error().Err(err).Msg("write orders")
		return 1
	}
	return 0
}

func (a *app) setStatus(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("set-status", flag.ContinueOnError)
	orderID := fs.String("order", "", "order id")
	status := fs.String("status", "", "new status: "+joinStatuses())
	if err := fs.Parse(args); err != nil {
		return 2
	}
	updated, err := a.orders.UpdateMyRestaurantOrderStatus().Mutate(ctx, order.StatusUpdate{
		OrderID: *orderID,
		Status:  order.Status(*status),
	})
	if err != nil {
		a.logger.Error().Err(err).Str("order_id", *orderID).Msg("update order status")
		if errors.Is(err, order.ErrUnknownStatus) || errors.Is(err, order.ErrMissingID) {
			return 2
		}
		return 1
	}
	return a.printJSON(updated)
}

func (a *app) token(ctx context.Context) int {
	tok, err := auth.Acquire(ctx, a.tokens)
	if err != nil {
		a.logger.Error().Err(err).Msg("acquire token")
		return 1
	}
	fmt.Fprintln(a.out, tok)
	return 0
}

func (a *app) printJSON(v any) int {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		a.logger.Error().Err(err).Msg("write output")
		return 1
	}
	return 0
}

func joinStatuses() string {
	names := make([]string, 0, len(order.Statuses))
	for _, s := range order.Statuses {
		names = append(names, string(s))
	}
	return strings.Join(names, ", ")
}
