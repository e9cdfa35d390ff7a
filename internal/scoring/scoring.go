// Package scoring ranks feed items by relevance to the editorial desk.
package scoring

import (
	"math"
	"strings"
	"time"

	"contentflow/pipeline/internal/fingerprint"
	"contentflow/pipeline/internal/lexicon"
	"contentflow/pipeline/internal/models"
)

const (
	referenceWeight = 2.0
	maxSourcePoints = 25.0

	negativePointsEach = 8.0
	maxNegativePenalty = 25.0

	priorityCategoryPoints = 20.0
	standardCategoryPoints = 12.0
	otherCategoryPoints    = 5.0
)

// single-letter prefixes that attach to Hebrew words (the, and, in, to, from, that, as)
var hebrewPrefixes = []string{"ה", "ו", "ב", "ל", "מ", "ש", "כ"}

// Input is everything the engine needs to score one item.
type Input struct {
	Title          string
	Description    string
	SourceWeight   float64
	SourceCategory string
	PublishedAt    *time.Time
}

type term struct {
	raw    string
	tokens []string
}

// Engine computes relevance scores. It is safe for concurrent use.
type Engine struct {
	lex       *lexicon.Lexicon
	keywords  []term
	highValue []term
	negative  []term
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock used for recency.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New builds an engine over lex. A nil lexicon uses lexicon.Default.
func New(lex *lexicon.Lexicon, opts ...Option) *Engine {
	if lex == nil {
		lex = lexicon.Default()
	}

	e := &Engine{lex: lex, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}

	seen := make(map[string]bool)
	for _, bucket := range lex.BucketNames() {
		e.keywords = append(e.keywords, compile(lex.Buckets[bucket], seen)...)
	}
	e.highValue = compile(lex.HighValue, make(map[string]bool))
	e.negative = compile(lex.Negative, make(map[string]bool))
	return e
}

func compile(phrases []string, seen map[string]bool) []term {
	var terms []term
	for _, p := range phrases {
		norm := fingerprint.Normalize(p)
		if norm == "" || seen[norm] {
			continue
		}
		seen[norm] = true
		terms = append(terms, term{raw: p, tokens: strings.Fields(norm)})
	}
	return terms
}

// Score returns the full breakdown; Total is the clamped 0-100 score.
func (e *Engine) Score(in Input) models.ScoreBreakdown {
	tokens := strings.Fields(fingerprint.Normalize(in.Title + " " + in.Description))

	b := models.ScoreBreakdown{
		MatchedKeywords:  matches(tokens, e.keywords),
		HighValueMatches: matches(tokens, e.highValue),
		NegativeMatches:  matches(tokens, e.negative),
	}

	b.Source = SourcePoints(in.SourceWeight)

	if in.PublishedAt != nil {
		age := e.now().Sub(*in.PublishedAt).Hours()
		b.AgeHours = &age
		b.Recency = RecencyPoints(age)
	} else {
		b.Recency = RecencyPoints(math.Inf(1))
	}

	b.EffectiveMatches = len(b.MatchedKeywords) + 2*len(b.HighValueMatches)
	b.Keywords = KeywordPoints(b.EffectiveMatches)

	switch e.lex.Tier(in.SourceCategory) {
	case lexicon.TierPriority:
		b.Category = priorityCategoryPoints
	case lexicon.TierStandard:
		b.Category = standardCategoryPoints
	default:
		b.Category = otherCategoryPoints
	}

	b.Penalty = math.Min(maxNegativePenalty, negativePointsEach*float64(len(b.NegativeMatches)))

	total := math.Round(b.Source + b.Recency + b.Keywords + b.Category - b.Penalty)
	b.Total = int(math.Max(0, math.Min(100, total)))
	return b
}

// SourcePoints scales the source weight against the reference weight of 2.0,
// rounded to one decimal.
func SourcePoints(weight float64) float64 {
	if weight <= 0 {
		return 0
	}
	points := math.Min(maxSourcePoints, weight/referenceWeight*maxSourcePoints)
	return math.Round(points*10) / 10
}

// RecencyPoints tiers an item age in hours. Items from the future count as fresh.
func RecencyPoints(ageHours float64) float64 {
	switch {
	case ageHours < 6:
		return 25
	case ageHours < 24:
		return 20
	case ageHours < 48:
		return 15
	case ageHours < 168:
		return 10
	default:
		return 5
	}
}

// KeywordPoints maps an effective match count to the keyword step function.
func KeywordPoints(effective int) float64 {
	switch {
	case effective >= 3:
		return 30
	case effective == 2:
		return 20
	case effective == 1:
		return 10
	default:
		return 0
	}
}

func matches(tokens []string, terms []term) []string {
	found := []string{}
	for _, t := range terms {
		if contains(tokens, t.tokens) {
			found = append(found, t.raw)
		}
	}
	return found
}

// contains reports whether phrase occurs as a run of whole tokens. The first
// token may carry one Hebrew prefix letter.
func contains(tokens, phrase []string) bool {
	if len(phrase) == 0 || len(phrase) > len(tokens) {
		return false
	}
	for i := 0; i+len(phrase) <= len(tokens); i++ {
		if !headMatches(tokens[i], phrase[0]) {
			continue
		}
		ok := true
		for j := 1; j < len(phrase); j++ {
			if tokens[i+j] != phrase[j] {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

func headMatches(token, word string) bool {
	if token == word {
		return true
	}
	for _, p := range hebrewPrefixes {
		if strings.HasPrefix(token, p) && token[len(p):] == word {
			return true
		}
	}
	return false
}
