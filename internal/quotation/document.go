// Package quotation owns the quotation document shape and its arithmetic.
//
// Every derived field (line amounts, subtotal, GST amount, grand total) is
// recomputed here; values arriving from users or models are never trusted.
package quotation

import (
	"encoding/json"
	"fmt"
)

// DefaultServiceName labels a line that arrived without a usable name.
const DefaultServiceName = "Unnamed Service"

// ServiceLine is one billable row. Price and UnitRate are legacy aliases of
// UnitPrice and carry the same value after normalization.
type ServiceLine struct {
	ServiceName string  `json:"service_name"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Price       float64 `json:"price"`
	UnitRate    float64 `json:"unit_rate"`
	Amount      float64 `json:"amount"`
}

// Document is the quotation root.
type Document struct {
	Services      []ServiceLine `json:"services"`
	Subtotal      float64       `json:"subtotal"`
	GSTPercentage float64       `json:"gst_percentage"`
	GSTAmount     float64       `json:"gst_amount"`
	GrandTotal    float64       `json:"grand_total"`
}

// NewServiceLine builds a line with all price aliases set and the amount derived.
func NewServiceLine(name string, quantity int, unitPrice float64) ServiceLine {
	return ServiceLine{
		ServiceName: name,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		Price:       unitPrice,
		UnitRate:    unitPrice,
		Amount:      round2(float64(quantity) * unitPrice),
	}
}

// Initialize returns an empty quotation.
func Initialize() Document {
	return Document{Services: []ServiceLine{}}
}

// Clone returns a deep copy so callers can edit without touching the original.
func (d Document) Clone() Document {
	out := d
	if d.Services != nil {
		out.Services = make([]ServiceLine, len(d.Services))
		copy(out.Services, d.Services)
	}
	return out
}

// WithService returns a recalculated copy with line appended.
func (d Document) WithService(line ServiceLine) Document {
	out := d.Clone()
	out.Services = append(out.Services, line)
	return CalculateTotals(out)
}

// WithoutService returns a recalculated copy with the line at index i removed.
// An out-of-range index returns an unchanged copy.
func (d Document) WithoutService(i int) Document {
	out := d.Clone()
	if i < 0 || i >= len(out.Services) {
		return out
	}
	out.Services = append(out.Services[:i], out.Services[i+1:]...)
	return CalculateTotals(out)
}

// ServiceNames lists line names in document order.
func (d Document) ServiceNames() []string {
	names := make([]string, len(d.Services))
	for i, s := range d.Services {
		names[i] = s.ServiceName
	}
	return names
}

// MarshalJSON always emits services as a list.
func (d Document) MarshalJSON() ([]byte, error) {
	type wire Document
	w := wire(d)
	if w.Services == nil {
		w.Services = []ServiceLine{}
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes loosely (legacy aliases, numeric strings, missing
// fields) and normalizes the result.
func (d *Document) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("quotation: decode document: %w", err)
	}
	*d = NormalizeMap(raw)
	return nil
}

// ToMap renders the document in its dynamic wire form.
func (d Document) ToMap() map[string]any {
	services := make([]any, 0, len(d.Services))
	for _, s := range d.Services {
		services = append(services, map[string]any{
			"service_name": s.ServiceName,
			"quantity":     s.Quantity,
			"unit_price":   s.UnitPrice,
			"price":        s.Price,
			"unit_rate":    s.UnitRate,
			"amount":       s.Amount,
		})
	}
	return map[string]any{
		"services":       services,
		"subtotal":       d.Subtotal,
		"gst_percentage": d.GSTPercentage,
		"gst_amount":     d.GSTAmount,
		"grand_total":    d.GrandTotal,
	}
}
