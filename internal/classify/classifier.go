// =============================================================================
// Claims Consolidator - Event Classifier
// =============================================================================
//
// The classifier decides whether a row is a claims/events expense line.
// Column names vary between filers and years, so every logical field is
// resolved through an ordered list of slugified aliases; the first populated
// alias wins.
//
// AMOUNTS:
//   Spreadsheet rows are parsed with the comma-is-decimal variant, delimited
//   rows with the strict disambiguating one. A row that matches the keywords
//   but whose amount cannot be parsed is dropped with a reason.
//
// =============================================================================

package classify

import (
	"strings"

	"github.com/ginjaninja78/claims-consolidator/internal/config"
	"github.com/ginjaninja78/claims-consolidator/internal/numeric"
	"github.com/ginjaninja78/claims-consolidator/internal/records"
	"github.com/ginjaninja78/claims-consolidator/internal/tabular"
)

// SkipReason explains why a row produced no event.
type SkipReason string

const (
	// NotAnEvent: the description is missing or has no keyword.
	NotAnEvent SkipReason = "not-an-event"

	// AmountUnparseable: the row is an event but its amount is missing or
	// not a number.
	AmountUnparseable SkipReason = "amount-unparseable"
)

// Outcome is the result of classifying one row.
type Outcome struct {
	// Event is set when Matched is true.
	Event records.Event

	Matched bool

	// Reason is set when Matched is false.
	Reason SkipReason
}

// Classifier holds the alias lists and keywords. It is immutable and safe for
// concurrent use.
type Classifier struct {
	keywords        []string
	descriptionKeys []string
	amountKeys      []string
	filerIDKeys     []string
}

// New builds a classifier from configuration. Keywords are lower-cased and
// alias keys slugified, so configuration may use either raw labels or slugs.
func New(cfg config.ClassificationConfig) *Classifier {
	c := &Classifier{
		descriptionKeys: slugs(cfg.DescriptionKeys),
		amountKeys:      slugs(cfg.AmountKeys),
		filerIDKeys:     slugs(cfg.FilerIDKeys),
	}
	for _, k := range cfg.Keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			c.keywords = append(c.keywords, k)
		}
	}
	return c
}

// Default returns a classifier with the built-in vocabulary.
func Default() *Classifier {
	return New(config.ClassificationConfig{
		Keywords:        config.DefaultKeywords,
		DescriptionKeys: config.DefaultDescriptionKeys,
		AmountKeys:      config.DefaultAmountKeys,
		FilerIDKeys:     config.DefaultFilerIDKeys,
	})
}

// IsEvent reports whether a description contains one of the keywords,
// ignoring case.
func (c *Classifier) IsEvent(description string) bool {
	d := strings.ToLower(description)
	for _, k := range c.keywords {
		if strings.Contains(d, k) {
			return true
		}
	}
	return false
}

// Classify inspects one raw row.
func (c *Classifier) Classify(row tabular.Row) Outcome {
	n := row.Normalize()

	description, _ := n.First(c.descriptionKeys)
	if !c.IsEvent(description) {
		return Outcome{Reason: NotAnEvent}
	}

	raw, ok := n.First(c.amountKeys)
	if !ok {
		return Outcome{Reason: AmountUnparseable}
	}
	amount, ok := parseAmount(raw, row.Origin)
	if !ok {
		return Outcome{Reason: AmountUnparseable}
	}

	filerID, _ := n.First(c.filerIDKeys)

	return Outcome{
		Matched: true,
		Event: records.Event{
			SourceFile:  row.Source,
			FilerID:     filerID,
			Description: description,
			Amount:      amount,
		},
	}
}

// MentionsEvent reports whether any cell of the row contains a keyword,
// whatever its column.
func (c *Classifier) MentionsEvent(row tabular.Row) bool {
	for _, cell := range row.Cells {
		if c.IsEvent(cell.Value) {
			return true
		}
	}
	return false
}

func parseAmount(raw string, origin tabular.Origin) (float64, bool) {
	if origin == tabular.OriginSpreadsheet {
		return numeric.ParseCommaDecimal(raw)
	}
	return numeric.ParseDecimal(raw)
}

func slugs(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if s := tabular.Slugify(k); s != "" {
			out = append(out, s)
		}
	}
	return out
}
