package quotation

import (
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// FormatMoney renders v as rupees with thousands grouping and two decimals.
func FormatMoney(v float64) string {
	return printer.Sprintf("₹%.2f", finiteOrZero(v))
}

// FormatPercent renders a GST percentage without trailing zeros.
func FormatPercent(p float64) string {
	return strconv.FormatFloat(finiteOrZero(p), 'f', -1, 64)
}

// Narrate describes the quotation in plain text for prompts and CLI output.
func Narrate(d Document) string {
	var b strings.Builder
	b.WriteString("Current quotation state:\nServices:\n")
	if len(d.Services) == 0 {
		b.WriteString("No services added yet.\n")
	}
	for _, s := range d.Services {
		b.WriteString("- ")
		b.WriteString(s.ServiceName)
		b.WriteString(": Qty ")
		b.WriteString(strconv.Itoa(s.Quantity))
		b.WriteString(" × ")
		b.WriteString(FormatMoney(s.UnitPrice))
		b.WriteString(" = ")
		b.WriteString(FormatMoney(s.Amount))
		b.WriteString("\n")
	}
	b.WriteString("\nTotals:\n")
	b.WriteString("- Subtotal: " + FormatMoney(d.Subtotal) + "\n")
	b.WriteString("- GST (" + FormatPercent(d.GSTPercentage) + "%): " + FormatMoney(d.GSTAmount) + "\n")
	b.WriteString("- Grand Total: " + FormatMoney(d.GrandTotal))
	return b.String()
}
