package quotation

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrMalformedService marks a services entry that is not an object.
var ErrMalformedService = errors.New("quotation: malformed service entry")

// maxCoercible bounds numbers accepted from loose input; larger values coerce to zero.
const maxCoercible = 1e15

// FromMap decodes a dynamic quotation (as produced by a model or an older
// client) into a Document. Missing quantity defaults to 1, prices fall back
// through unit_price, price and unit_rate, and unparsable numbers become
// zero. Entries that are not objects are skipped and reported through an
// error wrapping ErrMalformedService; the returned document is still usable.
func FromMap(raw map[string]any) (Document, error) {
	doc := Initialize()
	if raw == nil {
		return doc, nil
	}

	var malformed []string
	switch list := raw["services"].(type) {
	case []any:
		for i, entry := range list {
			obj, ok := entry.(map[string]any)
			if !ok {
				malformed = append(malformed, fmt.Sprintf("entry %d is %T", i, entry))
				continue
			}
			doc.Services = append(doc.Services, lineFromMap(obj))
		}
	case []map[string]any:
		for _, obj := range list {
			doc.Services = append(doc.Services, lineFromMap(obj))
		}
	case nil:
	default:
		malformed = append(malformed, fmt.Sprintf("services is %T", list))
	}

	doc.Subtotal, _ = toFloat(raw["subtotal"])
	doc.GSTPercentage, _ = toFloat(raw["gst_percentage"])
	doc.GSTAmount, _ = toFloat(raw["gst_amount"])
	doc.GrandTotal, _ = toFloat(raw["grand_total"])

	if len(malformed) > 0 {
		return doc, fmt.Errorf("%w: %s", ErrMalformedService, strings.Join(malformed, "; "))
	}
	return doc, nil
}

// NormalizeMap decodes raw loosely and normalizes it. Nil and empty maps
// yield an empty quotation.
func NormalizeMap(raw map[string]any) Document {
	doc, _ := FromMap(raw)
	return Normalize(doc)
}

// ParseJSON decodes a JSON object into a normalized Document.
func ParseJSON(data []byte) (Document, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Initialize(), fmt.Errorf("quotation: decode document: %w", err)
	}
	doc, err := FromMap(raw)
	return Normalize(doc), err
}

func lineFromMap(obj map[string]any) ServiceLine {
	line := ServiceLine{ServiceName: toName(obj["service_name"])}

	if q, present := obj["quantity"]; present && q != nil {
		line.Quantity, _ = toInt(q)
	} else {
		line.Quantity = 1
	}

	line.UnitPrice, _ = toFloat(obj["unit_price"])
	line.Price, _ = toFloat(obj["price"])
	line.UnitRate, _ = toFloat(obj["unit_rate"])
	line.Amount, _ = toFloat(obj["amount"])
	return line
}

func toName(v any) string {
	switch n := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(n)
	default:
		return strings.TrimSpace(fmt.Sprint(n))
	}
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case int32:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		s := strings.TrimSpace(n)
		s = strings.TrimPrefix(s, "₹")
		s = strings.ReplaceAll(s, ",", "")
		parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if !isFinite(f) || math.Abs(f) > maxCoercible {
		return 0, false
	}
	return f, true
}

func toInt(v any) (int, bool) {
	f, ok := toFloat(v)
	if !ok {
		return 0, false
	}
	return int(math.Trunc(f)), true
}
