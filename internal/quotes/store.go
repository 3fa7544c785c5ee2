package quotes

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"yomibot/pkg/logx"
)

var ErrNotFound = errors.New("quote not found")

// Store holds all loaded quote records, grouped by category.
// Read-only after Load: safe for unsynchronized concurrent reads.
type Store struct {
	byCategory map[Category][]Quote
	byID       map[Category]map[string]Quote
}

// Load reads one JSON file per category from dir and validates the whole set.
// All violations are collected and returned together as ValidationErrors;
// a missing category file is not an error (the category simply has zero
// records and fails at selection time).
func Load(dir string, log logx.Logger) (*Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	s := &Store{
		byCategory: make(map[Category][]Quote, len(Categories())),
		byID:       make(map[Category]map[string]Quote, len(Categories())),
	}
	var errs ValidationErrors

	for _, cat := range Categories() {
		name := string(cat) + ".json"
		path := filepath.Join(dir, name)

		b, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				log.Warn("quote file not found", logx.String("file", name))
				s.byCategory[cat] = nil
				s.byID[cat] = map[string]Quote{}
				continue
			}
			errs = append(errs, ValidationError{File: name, Category: cat, Msg: err.Error()})
			continue
		}

		var doc collection
		if err := json.Unmarshal(b, &doc); err != nil {
			errs = append(errs, ValidationError{File: name, Category: cat, Msg: "invalid JSON: " + err.Error()})
			continue
		}

		if strings.TrimSpace(doc.Category) != "" {
			if dc, err := ParseCategory(doc.Category); err != nil {
				errs = append(errs, ValidationError{File: name, Category: cat, Msg: err.Error()})
			} else if dc != cat {
				errs = append(errs, ValidationError{File: name, Category: cat,
					Msg: fmt.Sprintf("file declares category %q, expected %q", dc, cat)})
			}
		}

		records, recErrs := validateRecords(name, cat, doc.Quotes)
		errs = append(errs, recErrs...)

		s.byCategory[cat] = records
		idx := make(map[string]Quote, len(records))
		for _, q := range records {
			idx[q.ID] = q
		}
		s.byID[cat] = idx

		log.Info("quotes loaded",
			logx.String("category", string(cat)),
			logx.Int("count", len(records)))
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return s, nil
}

// validateRecords applies all per-record checks without short-circuiting and
// returns the records with their category tag filled in.
func validateRecords(file string, cat Category, in []Quote) ([]Quote, ValidationErrors) {
	var errs ValidationErrors

	seen := map[string]int{}
	for _, q := range in {
		if id := strings.TrimSpace(q.ID); id != "" {
			seen[id]++
		}
	}
	for id, n := range seen {
		if n > 1 {
			errs = append(errs, ValidationError{File: file, Category: cat, QuoteID: id,
				Msg: fmt.Sprintf("identifier used by %d records (must be unique within category)", n)})
		}
	}

	out := make([]Quote, 0, len(in))
	for i, q := range in {
		ref := strings.TrimSpace(q.ID)
		if ref == "" {
			ref = fmt.Sprintf("#%d", i)
			errs = append(errs, ValidationError{File: file, Category: cat, QuoteID: ref, Msg: "empty identifier"})
		}
		if strings.TrimSpace(q.Text) == "" {
			errs = append(errs, ValidationError{File: file, Category: cat, QuoteID: ref, Msg: "empty text"})
		}
		if err := checkSourceURL(q.SourceURL); err != nil {
			errs = append(errs, ValidationError{File: file, Category: cat, QuoteID: ref, Msg: err.Error()})
		}
		if q.Category != "" && q.Category != cat {
			errs = append(errs, ValidationError{File: file, Category: cat, QuoteID: ref,
				Msg: fmt.Sprintf("record declares category %q, file is %q", q.Category, cat)})
		}
		q.ID = strings.TrimSpace(q.ID)
		q.Category = cat
		out = append(out, q)
	}
	return out, errs
}

func checkSourceURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return errors.New("empty source_url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("malformed source_url: %v", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("source_url must be http(s): %q", raw)
	}
	return nil
}

// Lookup returns all records of a category in stable insertion order.
// The order is enumeration order only, never priority.
func (s *Store) Lookup(cat Category) []Quote {
	return s.byCategory[cat]
}

// Get returns a single record by category and id.
func (s *Store) Get(cat Category, id string) (Quote, error) {
	q, ok := s.byID[cat][id]
	if !ok {
		return Quote{}, fmt.Errorf("%w: %s/%s", ErrNotFound, cat, id)
	}
	return q, nil
}

// Count returns the total record count of a category.
func (s *Store) Count(cat Category) int { return len(s.byCategory[cat]) }

// Total returns the record count across all categories.
func (s *Store) Total() int {
	n := 0
	for _, qs := range s.byCategory {
		n += len(qs)
	}
	return n
}
