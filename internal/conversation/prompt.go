package conversation

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wolfman30/synquot/internal/intent"
	"github.com/wolfman30/synquot/internal/llm"
	"github.com/wolfman30/synquot/internal/quotation"
)

// SystemPrompt instructs the model to answer only with the quotation JSON
// envelope the parser understands.
const SystemPrompt = `You are SynQuot, a professional AI quotation assistant.

Follow every rule below without exception.

CORE PRINCIPLE
You change the quotation only through structured data. The interface renders
the quotation exclusively from the JSON you return.

RESPONSE FORMAT
Every response must be a single JSON object of this exact shape:

{
  "message": "<short human readable reply>",
  "quotation": {
    "services": [
      {"service_name": "", "quantity": 0, "unit_price": 0, "amount": 0}
    ],
    "subtotal": 0,
    "gst_percentage": 0,
    "gst_amount": 0,
    "grand_total": 0
  }
}

No markdown. No text outside the JSON object.

STATE
1. Always start from the current quotation given in the context.
2. Never reset the quotation unless the user clearly says reset, start over, new quotation or clear all.
3. Never remove a service unless the user clearly says remove, delete or drop.

RENAMING A SERVICE
"change Vehicle to Website Service", "rename Vehicle to Website Service" and similar:
find the first service whose name matches (case-insensitive, partial match allowed),
update only service_name, keep quantity and unit_price, then recalculate.
If nothing matches, ask for clarification and leave the quotation unchanged.

EDITING
Change only the field the user mentions and recalculate what depends on it.
- "change price 25000 to 40000" or "change price to 40000": set unit_price of the matching service to 40000.
- "change quantity 1 to 5" or "change quantity to 5": update the quantity of the last or matching service.
- "change GST 8 to 10" or "change GST to 10": set gst_percentage to 10.

CALCULATION
amount = quantity × unit_price
subtotal = sum of amounts
gst_amount = subtotal × gst_percentage / 100
grand_total = subtotal + gst_amount
Round every monetary value to 2 decimal places.

ADDING SERVICES
Add a service only when both quantity and unit_price are given. If either is
missing, leave the quotation unchanged and ask one short follow-up question,
for example "What quantity and price should I use for Website?".
- "add service Tiles Work quantity 5 price 5450" → service_name "Tiles Work", quantity 5, unit_price 5450
- "create a Quotation For Website quantity 1 price 45000" → service_name "Website"
- "add Service For Web Development quantity 2 price 25000" → service_name "Web Development"
Never include phrases such as "quotation for", "service for", "create a", "add a", "quantity" or "qty" in service_name.

REMOVING SERVICES
Take the service name from the command, find the matching service
(case-insensitive, partial match allowed), remove only that service and recalculate.
In "remove pipeline works quantity 10 price 1200" the name is everything before "quantity".

UNCLEAR INSTRUCTIONS
Return the current quotation unchanged and ask one clear clarification question.
Ask only for data that is actually missing.

BUSINESS RULES
Currency is INR (₹). Default GST for Indian services is 18% when the user asks
for GST without a rate. Foreign clients have 0% GST.

Before answering, check that every service has service_name, quantity,
unit_price and amount, that all numbers are JSON numbers, and that every
total is correct. Your JSON is the single source of truth.`

var intentGuidance = map[intent.Intent]string{
	intent.Add:       "CURRENT INTENT: User wants to ADD a service. Ensure both quantity and price are provided.",
	intent.Remove:    "CURRENT INTENT: User wants to REMOVE a service. Use fuzzy matching to find the service name.",
	intent.Change:    "CURRENT INTENT: User wants to CHANGE/UPDATE something. Only modify the specified field.",
	intent.View:      "CURRENT INTENT: User wants to VIEW the quotation. Return current quotation without modifications.",
	intent.Calculate: "CURRENT INTENT: User wants to CALCULATE totals. Ensure all calculations are correct.",
	intent.Reset:     "CURRENT INTENT: User wants to RESET the quotation. Return empty quotation structure.",
}

// EnhancedSystemPrompt appends intent guidance and extracted entity hints to
// the base prompt.
func EnhancedSystemPrompt(base string, in intent.Intent, ent intent.Entities) string {
	var b strings.Builder
	b.WriteString(base)
	if guidance, ok := intentGuidance[in]; ok {
		b.WriteString("\n\n")
		b.WriteString(guidance)
	}

	var hints []string
	if ent.ServiceName != "" {
		hints = append(hints, "Service name mentioned: "+ent.ServiceName)
	}
	if ent.Quantity != nil && *ent.Quantity != 0 {
		hints = append(hints, "Quantity mentioned: "+strconv.Itoa(*ent.Quantity))
	}
	if ent.Price != nil && *ent.Price != 0 {
		hints = append(hints, "Price mentioned: ₹"+strconv.FormatFloat(*ent.Price, 'f', -1, 64))
	}
	if len(hints) > 0 {
		b.WriteString("\n\nEXTRACTED ENTITIES: ")
		b.WriteString(strings.Join(hints, ", "))
	}
	return b.String()
}

// buildMessages assembles the model input: enhanced system prompt, optional
// summary, history window, quotation state, then the user message.
func buildMessages(systemPrompt string, summary string, window []llm.Message, doc quotation.Document, userMessage string) []llm.Message {
	messages := make([]llm.Message, 0, len(window)+4)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	if summary != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: fmt.Sprintf("Conversation summary: %s", summary)})
	}
	messages = append(messages, window...)
	messages = append(messages,
		llm.Message{Role: llm.RoleSystem, Content: quotation.Narrate(doc)},
		llm.Message{Role: llm.RoleUser, Content: userMessage},
	)
	return messages
}
