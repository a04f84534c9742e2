package quotation

import (
	"math"
	"strings"
)

// CalculateTotals recomputes every line amount and the document totals from
// quantities, unit prices and the GST percentage. It never mutates d and is
// idempotent.
func CalculateTotals(d Document) Document {
	out := d.Clone()
	if out.Services == nil {
		out.Services = []ServiceLine{}
	}

	subtotal := 0.0
	for i := range out.Services {
		line := &out.Services[i]
		price := line.effectivePrice()
		line.UnitPrice = price
		line.Amount = round2(price * float64(line.Quantity))
		subtotal += line.Amount
	}
	out.Subtotal = round2(subtotal)

	gst := finiteOrZero(out.GSTPercentage)
	out.GSTPercentage = gst
	gstAmount := 0.0
	if gst > 0 {
		gstAmount = out.Subtotal * gst / 100
	}
	out.GSTAmount = round2(gstAmount)
	out.GrandTotal = round2(out.Subtotal + out.GSTAmount)
	return out
}

// Validate reports whether d is structurally sound: a services list whose
// entries each have a name, a non-negative quantity and a usable price.
func Validate(d Document) bool {
	if d.Services == nil {
		return false
	}
	for _, s := range d.Services {
		if strings.TrimSpace(s.ServiceName) == "" {
			return false
		}
		if s.Quantity < 0 {
			return false
		}
		if !isFinite(s.UnitPrice) && !isFinite(s.Price) && !isFinite(s.UnitRate) {
			return false
		}
	}
	return true
}

// Normalize repairs d into a document that always passes Validate: blank
// names get DefaultServiceName, price aliases are reconciled and synced,
// negative or out-of-range quantities and prices clamp to zero, totals are
// recomputed.
func Normalize(d Document) Document {
	out := d.Clone()
	if out.Services == nil {
		out.Services = []ServiceLine{}
	}
	for i := range out.Services {
		line := &out.Services[i]
		line.ServiceName = strings.TrimSpace(line.ServiceName)
		if line.ServiceName == "" {
			line.ServiceName = DefaultServiceName
		}
		price := line.effectivePrice()
		if price < 0 || price > maxCoercible {
			price = 0
		}
		line.UnitPrice, line.Price, line.UnitRate = price, price, price
		if line.Quantity < 0 || float64(line.Quantity) > maxCoercible {
			line.Quantity = 0
		}
	}
	return CalculateTotals(out)
}

// effectivePrice picks the first non-zero finite alias, unit_price first.
func (s ServiceLine) effectivePrice() float64 {
	for _, v := range []float64{s.UnitPrice, s.Price, s.UnitRate} {
		if v = finiteOrZero(v); v != 0 {
			return v
		}
	}
	return 0
}

// round2 rounds to cents. Results that overflow collapse to zero so a
// document always marshals.
func round2(v float64) float64 {
	return finiteOrZero(math.Round(finiteOrZero(v)*100) / 100)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func finiteOrZero(v float64) float64 {
	if !isFinite(v) {
		return 0
	}
	return v
}
