package restaurant

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"reflect"
	"strings"
	"sync"

	validator "github.com/go-playground/validator/v10"
)

// Multipart field names shared by the client and the backend.
const (
	FieldName                  = "name"
	FieldCity                  = "city"
	FieldState                 = "state"
	FieldCountry               = "country"
	FieldDeliveryPrice         = "deliveryPrice"
	FieldEstimatedDeliveryTime = "estimatedDeliveryTime"
	FieldCuisines              = "cuisines"
	FieldMenuItems             = "menuItems"
	FieldImage                 = "imageFile"
)

// MenuItemInput is a menu row as typed into the form.
type MenuItemInput struct {
	Name  string `form:"name" validate:"required"`
	Price string `form:"price" validate:"required"`
}

// Image is an uploaded picture of the restaurant.
type Image struct {
	Filename string
	Content  []byte
}

// Form is the restaurant profile as entered by the owner. Values are kept as
// typed; the backend parses numbers.
type Form struct {
	Name                  string          `form:"name" validate:"required"`
	City                  string          `form:"city" validate:"required"`
	State                 string          `form:"state" validate:"required"`
	Country               string          `form:"country" validate:"required"`
	DeliveryPrice         string          `form:"deliveryPrice" validate:"required"`
	EstimatedDeliveryTime string          `form:"estimatedDeliveryTime" validate:"required"`
	Cuisines              []string        `form:"cuisines"`
	MenuItems             []MenuItemInput `form:"menuItems" validate:"dive"`
	Image                 *Image          `form:"imageFile"`
}

// FormFromRestaurant pre-fills a form from an existing restaurant.
func FormFromRestaurant(r Restaurant) Form {
	f := Form{
		Name:                  r.Name,
		City:                  r.City,
		State:                 r.State,
		Country:               r.Country,
		DeliveryPrice:         fmt.Sprint(r.DeliveryPrice),
		EstimatedDeliveryTime: fmt.Sprint(r.EstimatedDeliveryTime),
		Cuisines:              append([]string(nil), r.Cuisines...),
	}
	for _, m := range r.MenuItems {
		f.MenuItems = append(f.MenuItems, MenuItemInput{Name: m.Name, Price: fmt.Sprint(m.Price)})
	}
	return f
}

// Value returns the typed value of a scalar field.
func (f Form) Value(name string) string {
	switch name {
	case FieldName:
		return f.Name
	case FieldCity:
		return f.City
	case FieldState:
		return f.State
	case FieldCountry:
		return f.Country
	case FieldDeliveryPrice:
		return f.DeliveryPrice
	case FieldEstimatedDeliveryTime:
		return f.EstimatedDeliveryTime
	}
	return ""
}

// Set assigns a scalar field. Unknown names are ignored.
func (f *Form) Set(name, value string) {
	switch name {
	case FieldName:
		f.Name = value
	case FieldCity:
		f.City = value
	case FieldState:
		f.State = value
	case FieldCountry:
		f.Country = value
	case FieldDeliveryPrice:
		f.DeliveryPrice = value
	case FieldEstimatedDeliveryTime:
		f.EstimatedDeliveryTime = value
	}
}

// FieldErrors maps a field path such as "city" or "menuItems[0].price" to a
// message.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	parts := make([]string, 0, len(fe))
	for k, v := range fe {
		parts = append(parts, k+": "+v)
	}
	return "invalid restaurant form: " + strings.Join(parts, ", ")
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func formValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate checks required fields. It returns FieldErrors or nil.
func (f Form) Validate() error {
	err := formValidator().Struct(f)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := FieldErrors{}
	for _, fe := range verrs {
		// Namespace is "Form.menuItems[0].price"; drop the struct name.
		path := fe.Namespace()
		if i := strings.IndexByte(path, '.'); i >= 0 {
			path = path[i+1:]
		}
		out[path] = message(fe)
	}
	return out
}

func message(fe validator.FieldError) string {
	if fe.Tag() == "required" {
		return "required"
	}
	return fe.Tag()
}

// FormData is an encoded multipart payload. It is sent byte for byte with its
// own boundary content type.
type FormData struct {
	body        []byte
	contentType string
}

// NewFormData wraps an already encoded multipart body.
func NewFormData(body []byte, contentType string) *FormData {
	return &FormData{body: body, contentType: contentType}
}

// ContentType returns the multipart content type including the boundary.
func (fd *FormData) ContentType() string { return fd.contentType }

// Bytes returns the encoded body.
func (fd *FormData) Bytes() []byte { return fd.body }

// Reader returns a fresh reader over the body.
func (fd *FormData) Reader() io.Reader { return bytes.NewReader(fd.body) }

// Len returns the body size.
func (fd *FormData) Len() int { return len(fd.body) }

// Encode validates the form and encodes it as multipart/form-data.
func (f Form) Encode() (*FormData, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := [][2]string{
		{FieldName, f.Name},
		{FieldCity, f.City},
		{FieldState, f.State},
		{FieldCountry, f.Country},
		{FieldDeliveryPrice, f.DeliveryPrice},
		{FieldEstimatedDeliveryTime, f.EstimatedDeliveryTime},
	}
	for i, c := range f.Cuisines {
		fields = append(fields, [2]string{fmt.Sprintf("%s[%d]", FieldCuisines, i), c})
	}
	for i, m := range f.MenuItems {
		fields = append(fields,
			[2]string{fmt.Sprintf("%s[%d][name]", FieldMenuItems, i), m.Name},
			[2]string{fmt.Sprintf("%s[%d][price]", FieldMenuItems, i), m.Price},
		)
	}
	for _, kv := range fields {
		if err := w.WriteField(kv[0], kv[1]); err != nil {
			return nil, fmt.Errorf("encode %s: %w", kv[0], err)
		}
	}
	if f.Image != nil && len(f.Image.Content) > 0 {
		part, err := w.CreateFormFile(FieldImage, f.Image.Filename)
		if err != nil {
			return nil, fmt.Errorf("encode image: %w", err)
		}
		if _, err := part.Write(f.Image.Content); err != nil {
			return nil, fmt.Errorf("encode image: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return NewFormData(buf.Bytes(), w.FormDataContentType()), nil
}
