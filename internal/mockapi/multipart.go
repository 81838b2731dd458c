package mockapi

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/noah-isme/restaurant-admin/internal/common"
	"github.com/noah-isme/restaurant-admin/internal/restaurant"
)

const (
	maxUpload    = 8 << 20
	maxFormInMem = 1 << 20
)

var (
	cuisineKey  = regexp.MustCompile(`^cuisines\[(\d+)\]$`)
	menuItemKey = regexp.MustCompile(`^menuItems\[(\d+)\]\[(name|price)\]$`)
)

// parseRestaurantForm reads the multipart body of a create or update request.
func parseRestaurantForm(w http.ResponseWriter, r *http.Request) (restaurant.Restaurant, *image, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	if err := r.ParseMultipartForm(maxFormInMem); err != nil {
		return restaurant.Restaurant{}, nil, common.BadRequest("invalid multipart body", err)
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()
	values := r.MultipartForm.Value

	form := restaurant.Form{}
	for _, name := range []string{
		restaurant.FieldName, restaurant.FieldCity, restaurant.FieldState, restaurant.FieldCountry,
		restaurant.FieldDeliveryPrice, restaurant.FieldEstimatedDeliveryTime,
	} {
		form.Set(name, strings.TrimSpace(first(values[name])))
	}

	cuisines := map[int]string{}
	menu := map[int]*restaurant.MenuItemInput{}
	for key, vals := range values {
		if m := cuisineKey.FindStringSubmatch(key); m != nil {
			idx, _ := strconv.Atoi(m[1])
			cuisines[idx] = first(vals)
			continue
		}
		if m := menuItemKey.FindStringSubmatch(key); m != nil {
			idx, _ := strconv.Atoi(m[1])
			item := menu[idx]
			if item == nil {
				item = &restaurant.MenuItemInput{}
				menu[idx] = item
			}
			if m[2] == "name" {
				item.Name = first(vals)
			} else {
				item.Price = first(vals)
			}
		}
	}
	for _, idx := range sortedKeys(cuisines) {
		form.Cuisines = append(form.Cuisines, cuisines[idx])
	}
	for _, idx := range sortedKeys(menu) {
		form.MenuItems = append(form.MenuItems, *menu[idx])
	}

	if err := form.Validate(); err != nil {
		return restaurant.Restaurant{}, nil, common.BadRequest(err.Error(), err)
	}
	out, err := toRestaurant(form)
	if err != nil {
		return restaurant.Restaurant{}, nil, common.BadRequest(err.Error(), err)
	}

	img, err := readImage(r.MultipartForm.File[restaurant.FieldImage])
	if err != nil {
		return restaurant.Restaurant{}, nil, common.BadRequest("invalid image", err)
	}
	return out, img, nil
}

func toRestaurant(f restaurant.Form) (restaurant.Restaurant, error) {
	price, err := strconv.Atoi(f.DeliveryPrice)
	if err != nil {
		return restaurant.Restaurant{}, fmt.Errorf("deliveryPrice must be a whole number")
	}
	eta, err := strconv.Atoi(f.EstimatedDeliveryTime)
	if err != nil {
		return restaurant.Restaurant{}, fmt.Errorf("estimatedDeliveryTime must be a whole number")
	}
	out := restaurant.Restaurant{
		Name:                  f.Name,
		City:                  f.City,
		State:                 f.State,
		Country:               f.Country,
		DeliveryPrice:         price,
		EstimatedDeliveryTime: eta,
		Cuisines:              f.Cuisines,
	}
	for i, m := range f.MenuItems {
		p, err := strconv.Atoi(m.Price)
		if err != nil {
			return restaurant.Restaurant{}, fmt.Errorf("menuItems[%d].price must be a whole number", i)
		}
		out.MenuItems = append(out.MenuItems, restaurant.MenuItem{Name: m.Name, Price: p})
	}
	return out, nil
}

func readImage(files []*multipart.FileHeader) (*image, error) {
	if len(files) == 0 {
		return nil, nil
	}
	fh := files[0]
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("empty image")
	}
	return &image{filename: fh.Filename, data: data}, nil
}

func first(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
