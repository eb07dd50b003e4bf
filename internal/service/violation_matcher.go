package service

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-bk-api/internal/models"
	"github.com/noah-isme/sma-bk-api/pkg/config"
)

// MatchResult is the outcome of classifying a case description against the
// violation catalog.
type MatchResult struct {
	ViolationID *string          `json:"violation_id,omitempty"`
	Type        models.MatchType `json:"match_type"`
	Confidence  int              `json:"match_confidence"`
	Explanation string           `json:"match_explanation"`
}

// stopwords are tokens carrying no classification signal: Indonesian function
// words plus generic school terms that appear in nearly every catalog name.
var stopwords = map[string]struct{}{
	"di": {}, "ke": {}, "dari": {}, "dan": {}, "atau": {}, "yang": {},
	"dengan": {}, "tanpa": {}, "pada": {}, "saat": {}, "ketika": {},
	"dalam": {}, "untuk": {}, "tidak": {}, "ada": {}, "itu": {}, "ini": {},
	"karena": {}, "oleh": {}, "sudah": {}, "masih": {}, "juga": {},
	"sekolah": {}, "masuk": {}, "siswa": {}, "kelas": {}, "jam": {},
	"memakai": {}, "membawa": {}, "melakukan": {},
}

// categoryLexicon maps trigger terms to a violation category for the fallback
// rule. Fixed vocabulary so classification stays reproducible.
var categoryLexicon = map[models.ViolationCategory][]string{
	models.CategoryAttendance: {
		"terlambat", "telat", "bolos", "alpa", "alfa", "absen", "kabur", "membolos",
	},
	models.CategoryUniform: {
		"seragam", "atribut", "baju", "celana", "rok", "sepatu", "dasi", "topi", "kaos",
	},
	models.CategoryPersonalConduct: {
		"merokok", "rokok", "berkelahi", "kasar", "bohong", "mencontek", "rambut", "bullying",
	},
	models.CategoryOrder: {
		"ribut", "gaduh", "mengganggu", "upacara", "piket", "sampah", "merusak", "vandalisme",
	},
	models.CategoryHealth: {
		"kebersihan", "kotor", "kuku", "jorok", "narkoba", "miras",
	},
}

// ViolationMatcher classifies free-text case descriptions against the
// catalog. Matching is pure and deterministic: identical input and catalog
// always yield identical output, and malformed input degrades to a "none"
// result instead of failing.
type ViolationMatcher struct {
	keywordThreshold   float64
	categoryConfidence int
	logger             *zap.Logger
}

// NewViolationMatcher constructs a matcher from policy configuration.
func NewViolationMatcher(cfg config.MatcherConfig, logger *zap.Logger) *ViolationMatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	threshold := cfg.KeywordThreshold
	if threshold <= 0 || threshold > 1 {
		threshold = 0.6
	}
	confidence := cfg.CategoryConfidence
	if confidence <= 0 || confidence > 100 {
		confidence = 50
	}
	return &ViolationMatcher{
		keywordThreshold:   threshold,
		categoryConfidence: confidence,
		logger:             logger,
	}
}

// Match runs the classification cascade: exact name equality, keyword token
// overlap, category lexicon inference, then none. Manual matches are never
// produced here; they are recorded only through an explicit override.
func (m *ViolationMatcher) Match(raw string, defs []models.ViolationDefinition) MatchResult {
	normalized := normalizeText(raw)
	if normalized == "" || len(defs) == 0 {
		return MatchResult{Type: models.MatchNone, Confidence: 0, Explanation: "no catalog match: empty description or catalog"}
	}

	if result, ok := m.matchExact(normalized, defs); ok {
		return result
	}

	inputTokens := tokenSet(normalized)
	if result, ok := m.matchKeyword(inputTokens, defs); ok {
		return result
	}

	if result, ok := m.matchCategory(inputTokens, defs); ok {
		return result
	}

	m.logger.Debug("no catalog match", zap.String("description", normalized))
	return MatchResult{Type: models.MatchNone, Confidence: 0, Explanation: "no catalog match: no overlapping terms or category signal"}
}

func (m *ViolationMatcher) matchExact(normalized string, defs []models.ViolationDefinition) (MatchResult, bool) {
	for _, def := range defs {
		if normalizeText(def.Name) == normalized {
			id := def.ID
			return MatchResult{
				ViolationID: &id,
				Type:        models.MatchExact,
				Confidence:  100,
				Explanation: fmt.Sprintf("exact name match on %q", def.Name),
			}, true
		}
	}
	return MatchResult{}, false
}

func (m *ViolationMatcher) matchKeyword(input map[string]struct{}, defs []models.ViolationDefinition) (MatchResult, bool) {
	var (
		best         *models.ViolationDefinition
		bestFraction float64
		bestTerms    []string
		bestTotal    int
	)
	for i := range defs {
		def := &defs[i]
		nameTokens := significantTokens(def.Name)
		if len(nameTokens) == 0 {
			continue
		}
		var matched []string
		for _, token := range nameTokens {
			if _, ok := input[token]; ok {
				matched = append(matched, token)
			}
		}
		fraction := float64(len(matched)) / float64(len(nameTokens))
		if fraction < m.keywordThreshold {
			continue
		}
		if best == nil || fraction > bestFraction ||
			(fraction == bestFraction && def.Weight > best.Weight) ||
			(fraction == bestFraction && def.Weight == best.Weight && def.ID < best.ID) {
			best = def
			bestFraction = fraction
			bestTerms = matched
			bestTotal = len(nameTokens)
		}
	}
	if best == nil {
		return MatchResult{}, false
	}
	id := best.ID
	return MatchResult{
		ViolationID: &id,
		Type:        models.MatchKeyword,
		Confidence:  int(math.Round(bestFraction * 100)),
		Explanation: fmt.Sprintf("keyword overlap with %q: matched terms [%s] (%d/%d)",
			best.Name, strings.Join(bestTerms, ", "), len(bestTerms), bestTotal),
	}, true
}

func (m *ViolationMatcher) matchCategory(input map[string]struct{}, defs []models.ViolationDefinition) (MatchResult, bool) {
	category, terms := inferCategory(input)
	if category == "" {
		return MatchResult{}, false
	}

	var best *models.ViolationDefinition
	for i := range defs {
		def := &defs[i]
		if def.Category != category {
			continue
		}
		if best == nil || def.Weight > best.Weight ||
			(def.Weight == best.Weight && def.ID < best.ID) {
			best = def
		}
	}
	if best == nil {
		return MatchResult{}, false
	}
	id := best.ID
	return MatchResult{
		ViolationID: &id,
		Type:        models.MatchCategory,
		Confidence:  m.categoryConfidence,
		Explanation: fmt.Sprintf("category lexicon hit (%s) on terms [%s]; highest-weight entry %q",
			best.Category, strings.Join(terms, ", "), best.Name),
	}, true
}

// inferCategory picks the category with the most lexicon hits. Ties resolve
// by category name so the outcome never depends on map iteration order.
func inferCategory(input map[string]struct{}) (models.ViolationCategory, []string) {
	categories := make([]models.ViolationCategory, 0, len(categoryLexicon))
	for category := range categoryLexicon {
		categories = append(categories, category)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })

	var (
		bestCategory models.ViolationCategory
		bestTerms    []string
	)
	for _, category := range categories {
		var hits []string
		for _, term := range categoryLexicon[category] {
			if _, ok := input[term]; ok {
				hits = append(hits, term)
			}
		}
		if len(hits) > len(bestTerms) {
			bestCategory = category
			bestTerms = hits
		}
	}
	return bestCategory, bestTerms
}

// normalizeText lowercases, strips punctuation and collapses whitespace.
func normalizeText(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(raw) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func significantTokens(raw string) []string {
	var tokens []string
	for _, token := range strings.Fields(normalizeText(raw)) {
		if _, skip := stopwords[token]; skip {
			continue
		}
		tokens = append(tokens, token)
	}
	return tokens
}

func tokenSet(normalized string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, token := range strings.Fields(normalized) {
		set[token] = struct{}{}
	}
	return set
}
