// Package form renders the restaurant details section of the management form
// against an externally owned form state.
package form

import (
	"fmt"
	"io"
	"text/template"

	"github.com/noah-isme/restaurant-admin/internal/restaurant"
)

// Context is the form state a section binds to. The section only reads it;
// validation and submission belong to whoever owns the Context.
type Context interface {
	Register(name string)
	Value(name string) string
	Error(name string) string
}

// Field describes one labelled input.
type Field struct {
	Name  string
	Label string
}

// DetailsFields are the inputs of the details section, in display order.
var DetailsFields = []Field{
	{Name: restaurant.FieldName, Label: "Name"},
	{Name: restaurant.FieldCity, Label: "City"},
	{Name: restaurant.FieldState, Label: "State"},
	{Name: restaurant.FieldCountry, Label: "Country"},
	{Name: restaurant.FieldDeliveryPrice, Label: "Delivery price"},
	{Name: restaurant.FieldEstimatedDeliveryTime, Label: "Estimated delivery time (minutes)"},
}

// DetailsSection is the "Details" block of the restaurant form.
type DetailsSection struct {
	Title       string
	Description string
	Fields      []Field
}

// NewDetailsSection returns the section with its default copy.
func NewDetailsSection() DetailsSection {
	return DetailsSection{
		Title:       "Details",
		Description: "Enter the details about your restaurant",
		Fields:      DetailsFields,
	}
}

var detailsTmpl = template.Must(template.New("details").Parse(
	`{{.Title}}
{{.Description}}
{{range .Rows}}
{{.Label}}: {{.Value}}{{if .Error}}
  ! {{.Error}}{{end}}{{end}}
`))

type row struct {
	Label string
	Value string
	Error string
}

// Render registers every field with fc and writes the section to w.
func (s DetailsSection) Render(w io.Writer, fc Context) error {
	if fc == nil {
		return fmt.Errorf("form: no context")
	}
	rows := make([]row, 0, len(s.Fields))
	for _, f := range s.Fields {
		fc.Register(f.Name)
		rows = append(rows, row{Label: f.Label, Value: fc.Value(f.Name), Error: fc.Error(f.Name)})
	}
	return detailsTmpl.Execute(w, struct {
		Title       string
		Description string
		Rows        []row
	}{s.Title, s.Description, rows})
}
