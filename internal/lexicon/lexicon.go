// Package lexicon holds the weighted keyword tables used by the scoring engine.
package lexicon

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Lexicon groups topical keyword buckets, authoritative phrases that count
// double, irrelevant-signal terms and the category tiers.
type Lexicon struct {
	Buckets            map[string][]string `yaml:"buckets"`
	HighValue          []string            `yaml:"high_value"`
	Negative           []string            `yaml:"negative"`
	PriorityCategories []string            `yaml:"priority_categories"`
	StandardCategories []string            `yaml:"standard_categories"`
}

// Default returns the built-in tables for Israeli tax and accounting content.
func Default() *Lexicon {
	return &Lexicon{
		Buckets: map[string][]string{
			"tax": {
				"מס הכנסה", "מסים", "מיסים", "החזר מס", "ניכוי במקור", "מקדמות", "דוח שנתי",
				"שומה", "פטור ממס", "נקודות זיכוי", "מס שבח", "tax", "income tax",
			},
			"vat": {
				`מע"מ`, "מע״מ", "חשבונית", "חשבוניות ישראל", "עוסק מורשה", "עוסק פטור", "vat",
			},
			"payroll": {
				"שכר", "תלוש שכר", "ביטוח לאומי", "פנסיה", "פיצויים", "דמי הבראה", "payroll",
			},
			"accounting": {
				"הנהלת חשבונות", "רואה חשבון", "רואי חשבון", "דוחות כספיים", "ביקורת", "accounting", "audit",
			},
			"business": {
				"עסקים קטנים", "עצמאים", `חברה בע"מ`, "דיבידנד", "מענק", "small business",
			},
		},
		HighValue: []string{
			"רשות המסים", "חוזר מקצועי", "הוראת ביצוע", "פסק דין", "תיקון חקיקה",
			"החלטת מיסוי", "לשכת רואי החשבון", "tax ruling",
		},
		Negative: []string{
			"ספורט", "כדורגל", "סלבס", "רכילות", "הורוסקופ", "מתכון", "בידור", "אופנה",
			"celebrity", "horoscope", "football", "recipe",
		},
		PriorityCategories: []string{"Tax", "VAT", "Payroll", "Tax Rulings"},
		StandardCategories: []string{"Accounting", "Business", "Finance", "Economy"},
	}
}

// Load reads a YAML lexicon from path. Sections missing from the file keep
// their built-in values.
func Load(path string) (*Lexicon, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon %s: %w", path, err)
	}

	var fileLex Lexicon
	if err := yaml.Unmarshal(raw, &fileLex); err != nil {
		return nil, fmt.Errorf("parse lexicon %s: %w", path, err)
	}

	lex := Default()
	if len(fileLex.Buckets) > 0 {
		lex.Buckets = fileLex.Buckets
	}
	if len(fileLex.HighValue) > 0 {
		lex.HighValue = fileLex.HighValue
	}
	if len(fileLex.Negative) > 0 {
		lex.Negative = fileLex.Negative
	}
	if len(fileLex.PriorityCategories) > 0 {
		lex.PriorityCategories = fileLex.PriorityCategories
	}
	if len(fileLex.StandardCategories) > 0 {
		lex.StandardCategories = fileLex.StandardCategories
	}
	return lex, nil
}

// BucketNames returns the bucket names in a stable order.
func (l *Lexicon) BucketNames() []string {
	names := make([]string, 0, len(l.Buckets))
	for name := range l.Buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CategoryTier classifies a source category.
type CategoryTier int

const (
	TierOther CategoryTier = iota
	TierStandard
	TierPriority
)

// Tier returns the tier of category, compared case-insensitively.
func (l *Lexicon) Tier(category string) CategoryTier {
	category = strings.TrimSpace(category)
	if category == "" {
		return TierOther
	}
	for _, c := range l.PriorityCategories {
		if strings.EqualFold(c, category) {
			return TierPriority
		}
	}
	for _, c := range l.StandardCategories {
		if strings.EqualFold(c, category) {
			return TierStandard
		}
	}
	return TierOther
}
