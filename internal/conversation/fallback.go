package conversation

import (
	"fmt"
	"strings"

	"github.com/wolfman30/synquot/internal/fuzzy"
	"github.com/wolfman30/synquot/internal/intent"
	"github.com/wolfman30/synquot/internal/quotation"
)

const (
	replyReset    = "I've reset the quotation. You can now start adding new services."
	replyRephrase = "I'm having trouble processing your request. Could you please rephrase it? For example: 'Add service [name] with quantity [number] and price [amount]'."
)

// RuleBasedFallback edits the quotation deterministically when no model is
// available or the model reply could not be used.
type RuleBasedFallback struct {
	classifier *intent.Classifier
	extractor  *intent.Extractor
	threshold  float64
}

// NewRuleBasedFallback builds a fallback. Nil classifier or extractor use the
// package defaults; a threshold <= 0 uses fuzzy.DefaultThreshold.
func NewRuleBasedFallback(classifier *intent.Classifier, extractor *intent.Extractor, threshold float64) *RuleBasedFallback {
	if classifier == nil {
		classifier = intent.NewClassifier()
	}
	if extractor == nil {
		extractor = intent.NewExtractor()
	}
	if threshold <= 0 {
		threshold = fuzzy.DefaultThreshold
	}
	return &RuleBasedFallback{classifier: classifier, extractor: extractor, threshold: threshold}
}

// Apply classifies message and applies it to a normalized copy of doc.
func (f *RuleBasedFallback) Apply(message string, doc quotation.Document) (string, quotation.Document) {
	in := f.classifier.Classify(message)
	return f.apply(in, f.extractor.Extract(message), doc)
}

func (f *RuleBasedFallback) apply(in intent.Intent, ent intent.Entities, doc quotation.Document) (string, quotation.Document) {
	current := quotation.Normalize(doc)

	switch in {
	case intent.Remove:
		if ent.ServiceName == "" {
			break
		}
		idx, ok := fuzzy.FindByName(ent.ServiceName, current.Services, func(s quotation.ServiceLine) string {
			return s.ServiceName
		}, f.threshold)
		if !ok {
			return fmt.Sprintf("I couldn't find a service matching '%s'. Please check the service name and try again.", ent.ServiceName), current
		}
		removed := current.Services[idx].ServiceName
		return fmt.Sprintf("I've removed '%s' from the quotation.", removed), current.WithoutService(idx)

	case intent.Add:
		if missing := missingForAdd(ent); len(missing) > 0 {
			return addFollowUp(ent.ServiceName, missing), current
		}
		line := quotation.NewServiceLine(ent.ServiceName, *ent.Quantity, *ent.Price)
		reply := fmt.Sprintf("I've added '%s' with quantity %d and price %s.", ent.ServiceName, *ent.Quantity, quotation.FormatMoney(*ent.Price))
		return reply, current.WithService(line)

	case intent.View:
		return fmt.Sprintf("Current quotation has %d service(s) with a grand total of %s.", len(current.Services), quotation.FormatMoney(current.GrandTotal)), current

	case intent.Reset:
		return replyReset, quotation.Initialize()
	}
	return replyRephrase, current
}

func missingForAdd(ent intent.Entities) []string {
	var missing []string
	if ent.ServiceName == "" {
		missing = append(missing, "service name")
	}
	if ent.Quantity == nil || *ent.Quantity <= 0 {
		missing = append(missing, "quantity")
	}
	if ent.Price == nil || *ent.Price <= 0 {
		missing = append(missing, "price")
	}
	return missing
}

func addFollowUp(name string, missing []string) string {
	fields := joinFields(missing)
	if name == "" {
		return fmt.Sprintf("Which service should I add? Please tell me the %s.", fields)
	}
	return fmt.Sprintf("What %s should I use for '%s'?", fields, name)
}

func joinFields(fields []string) string {
	switch len(fields) {
	case 0:
		return ""
	case 1:
		return fields[0]
	}
	return strings.Join(fields[:len(fields)-1], ", ") + " and " + fields[len(fields)-1]
}
