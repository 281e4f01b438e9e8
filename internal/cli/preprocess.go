package cli

import (
	"strings"
	"time"

	"ledger/internal/config"
	"ledger/internal/core"
)

// PreprocessingError is user input that could not be converted before
// reaching the client. Its message is shown as is.
type PreprocessingError string

func (e PreprocessingError) Error() string { return string(e) }

// Preprocess converts the entry date from the configured input layout to
// the form the server accepts and turns list filter items into the
// filters map. Replayed offline records are never preprocessed again.
func Preprocess(inv *Invocation, cfg *config.Config) error {
	p := &inv.Params
	if p.Date != nil {
		t, err := time.Parse(cfg.DateFormat, strings.TrimSpace(*p.Date))
		if err != nil {
			return PreprocessingError("Invalid date format.")
		}
		layout := "01-02"
		if strings.Contains(cfg.DateFormat, "2006") {
			layout = core.DateLayout
		}
		date := t.Format(layout)
		p.Date = &date
	}

	if inv.FilterItems == nil {
		return nil
	}
	filters := make(map[string]string, len(inv.FilterItems))
	for _, item := range inv.FilterItems {
		key, value, ok := strings.Cut(item, "=")
		if !ok || strings.Contains(value, "=") {
			return PreprocessingError("Invalid filter format: " + item)
		}
		filters[key] = strings.ToLower(value)
	}
	if c, ok := filters["category"]; ok && c == strings.ToLower(cfg.DefaultCategory) {
		filters["category"] = core.DefaultCategory
	}
	p.Filters = filters
	return nil
}
