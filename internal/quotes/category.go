package quotes

import (
	"fmt"
	"strings"
)

// Category is one of the fixed lineage groups a quote belongs to.
// The set is closed: unknown tags are rejected at load time, so the rest of
// the system never has to handle an unexpected category at runtime.
type Category string

const (
	Arizal         Category = "arizal"
	BaalShemTov    Category = "baal_shem_tov"
	SimchaBunim    Category = "simcha_bunim"
	Kotzker        Category = "kotzker"
	BaalHasulam    Category = "baal_hasulam"
	Rabash         Category = "rabash"
	AshlagTalmidim Category = "ashlag_talmidim"
)

// Categories returns all categories in broadcast order (chronological by
// lineage). The order is fixed; daily bundles are sent in this order.
func Categories() []Category {
	return []Category{
		Arizal,
		BaalShemTov,
		SimchaBunim,
		Kotzker,
		BaalHasulam,
		Rabash,
		AshlagTalmidim,
	}
}

// ParseCategory validates a category tag against the closed set.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case Arizal, BaalShemTov, SimchaBunim, Kotzker, BaalHasulam, Rabash, AshlagTalmidim:
		return c, nil
	default:
		return "", fmt.Errorf("unknown category %q", s)
	}
}

func (c Category) String() string { return string(c) }

// DisplayName returns the Hebrew display name used in outgoing messages.
func (c Category) DisplayName() string {
	switch c {
	case Arizal:
		return "האר״י הקדוש"
	case BaalShemTov:
		return "הבעל שם טוב"
	case SimchaBunim:
		return "רבי שמחה בונים מפשיסחא"
	case Kotzker:
		return "הרבי מקוצק"
	case BaalHasulam:
		return "בעל הסולם"
	case Rabash:
		return "הרב\"ש"
	case AshlagTalmidim:
		return "תלמידי אשלג"
	default:
		return string(c)
	}
}

// DisplayNameEnglish returns the English display name (logs, reports).
func (c Category) DisplayNameEnglish() string {
	switch c {
	case Arizal:
		return "The Holy Arizal"
	case BaalShemTov:
		return "The Baal Shem Tov"
	case SimchaBunim:
		return "Rabbi Simcha Bunim of Peshischa"
	case Kotzker:
		return "The Kotzker Rebbe"
	case BaalHasulam:
		return "Baal HaSulam"
	case Rabash:
		return "Rabash"
	case AshlagTalmidim:
		return "Students of Ashlag"
	default:
		return string(c)
	}
}
