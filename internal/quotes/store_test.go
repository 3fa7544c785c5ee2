package quotes

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"yomibot/pkg/logx"
)

func writeQuoteFile(t *testing.T, dir string, cat Category, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, string(cat)+".json"), []byte(content), 0o600); err != nil {
		t.Fatalf("write quote file: %v", err)
	}
}

func TestLoadValid(t *testing.T) {
	dir := t.TempDir()
	writeQuoteFile(t, dir, BaalHasulam, `{
		"category": "baal_hasulam",
		"source_name": "בעל הסולם",
		"quotes": [
			{"id": "bh-001", "text": "first", "source_book": "TES", "source_url": "https://example.org/a"},
			{"id": "bh-002", "text": "second", "source_url": "https://example.org/b"}
		]
	}`)
	writeQuoteFile(t, dir, Rabash, `{
		"quotes": [
			{"id": "rb-001", "text": "third", "source_url": "http://example.org/c"}
		]
	}`)

	s, err := Load(dir, logx.Nop())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got := s.Count(BaalHasulam); got != 2 {
		t.Fatalf("Count(baal_hasulam) = %d, want 2", got)
	}
	if got := s.Total(); got != 3 {
		t.Fatalf("Total() = %d, want 3", got)
	}
	// missing files are fine, the category is just empty
	if got := s.Count(Kotzker); got != 0 {
		t.Fatalf("Count(kotzker) = %d, want 0", got)
	}

	qs := s.Lookup(BaalHasulam)
	if qs[0].ID != "bh-001" || qs[1].ID != "bh-002" {
		t.Fatalf("Lookup order changed: %q, %q", qs[0].ID, qs[1].ID)
	}
	if qs[0].Category != BaalHasulam {
		t.Fatalf("category tag not filled: %q", qs[0].Category)
	}

	q, err := s.Get(Rabash, "rb-001")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if q.Text != "third" {
		t.Fatalf("Get returned wrong record: %+v", q)
	}
	if _, err := s.Get(Rabash, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get unknown id: err = %v, want ErrNotFound", err)
	}
}

func TestLoadCollectsAllViolations(t *testing.T) {
	dir := t.TempDir()
	writeQuoteFile(t, dir, Arizal, `{
		"category": "arizal",
		"quotes": [
			{"id": "ar-001", "text": "dup a", "source_url": "https://example.org/a"},
			{"id": "ar-001", "text": "dup b", "source_url": "https://example.org/b"},
			{"id": "ar-001", "text": "dup c", "source_url": "https://example.org/c"},
			{"id": "ar-002", "text": "", "source_url": "https://example.org/d"},
			{"id": "ar-003", "text": "bad link", "source_url": "ftp://example.org/e"}
		]
	}`)

	_, err := Load(dir, logx.Nop())
	if err == nil {
		t.Fatal("Load: expected validation errors")
	}
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("err is %T, want ValidationErrors", err)
	}

	// one error for the triple-used id, one for the empty text, one for the url
	if len(verrs) != 3 {
		t.Fatalf("got %d violations, want 3: %v", len(verrs), verrs)
	}
	dupSeen := 0
	for _, ve := range verrs {
		if ve.QuoteID == "ar-001" {
			dupSeen++
			if !strings.Contains(ve.Msg, "3 records") {
				t.Fatalf("duplicate id message should name the count: %q", ve.Msg)
			}
		}
	}
	if dupSeen != 1 {
		t.Fatalf("duplicate id reported %d times, want once", dupSeen)
	}
}

func TestLoadCategoryMismatch(t *testing.T) {
	dir := t.TempDir()
	writeQuoteFile(t, dir, Rabash, `{
		"category": "arizal",
		"quotes": [{"id": "x", "text": "t", "source_url": "https://example.org/x"}]
	}`)

	_, err := Load(dir, logx.Nop())
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("err = %v, want ValidationErrors", err)
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	dir := t.TempDir()
	writeQuoteFile(t, dir, Rabash, `{not json`)

	_, err := Load(dir, logx.Nop())
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("err = %v, want ValidationErrors", err)
	}
}

func TestParseCategory(t *testing.T) {
	for _, cat := range Categories() {
		got, err := ParseCategory(string(cat))
		if err != nil || got != cat {
			t.Fatalf("ParseCategory(%q) = %q, %v", cat, got, err)
		}
	}
	if _, err := ParseCategory("made_up"); err == nil {
		t.Fatal("ParseCategory accepted an unknown category")
	}
}
