package quotes

import (
	"fmt"
	"strings"
)

// ValidationError describes one problem found while loading quote files.
type ValidationError struct {
	File     string
	Category Category
	QuoteID  string
	Msg      string
}

func (e ValidationError) Error() string {
	var b strings.Builder
	b.WriteString(e.File)
	if e.QuoteID != "" {
		b.WriteString(": quote ")
		b.WriteString(e.QuoteID)
	}
	b.WriteString(": ")
	b.WriteString(e.Msg)
	return b.String()
}

// ValidationErrors aggregates every violation found in a load pass so a
// curator sees all problems at once instead of fixing them one by one.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	if len(errs) == 0 {
		return "no validation errors"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d validation error(s):", len(errs))
	for _, e := range errs {
		b.WriteString("\n  - ")
		b.WriteString(e.Error())
	}
	return b.String()
}
