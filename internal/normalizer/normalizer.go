// Package normalizer canonicalizes free-text invoice concepts into stable
// grouping keys and provides the token-overlap similarity used for
// month-over-month comparison.
package normalizer

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxConceptLen bounds the normalized concept so the grouping hash stays
// stable even when source systems append noise to long descriptions.
const maxConceptLen = 200

// SimilarityThreshold is the token-overlap ratio at or above which two
// concepts are considered similar (distinct from equal).
const SimilarityThreshold = 0.70

// Spanish filler words that carry no grouping signal. Billing systems pad
// concepts with these ("cuota mensual de...", "factura del mes de...").
var stopwords = map[string]bool{
	"de": true, "del": true, "la": true, "el": true, "los": true, "las": true,
	"y": true, "en": true, "a": true, "al": true, "un": true, "una": true,
	"por": true, "para": true, "con": true, "su": true, "sus": true,
	"mes": true, "factura": true, "recibo": true, "cuota": true,
	"correspondiente": true, "periodo": true,
}

// stripMarks removes combining marks after NFD decomposition, turning
// "electricidad módulo" into "electricidad modulo" and "ñ" into "n".
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize canonicalizes a free-text concept and returns the normalized text
// together with its content hash. The hash is used only for equality grouping,
// never for security.
func Normalize(text string) (string, string) {
	normalized := normalizeText(text)
	return normalized, Hash(normalized)
}

// Hash returns the hex digest used as the grouping key for a normalized concept
func Hash(normalized string) string {
	sum := md5.Sum([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

func normalizeText(text string) string {
	lowered := strings.ToLower(strings.TrimSpace(text))

	stripped, _, err := transform.String(stripMarks, lowered)
	if err != nil {
		// transform only fails on malformed input; fall back to the lowered text
		stripped = lowered
	}

	fields := strings.FieldsFunc(stripped, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	kept := make([]string, 0, len(fields))
	for _, f := range fields {
		if stopwords[f] {
			continue
		}
		kept = append(kept, f)
	}
	// A concept made entirely of stopwords still needs a stable key
	if len(kept) == 0 {
		kept = fields
	}

	joined := strings.Join(kept, " ")
	if runes := []rune(joined); len(runes) > maxConceptLen {
		joined = strings.TrimSpace(string(runes[:maxConceptLen]))
	}
	return joined
}

// Similarity returns the token-set overlap of two concepts: intersection size
// divided by the larger set's size, in [0,1].
func Similarity(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	larger := len(setA)
	if len(setB) > larger {
		larger = len(setB)
	}

	common := 0
	for tok := range setA {
		if setB[tok] {
			common++
		}
	}
	return float64(common) / float64(larger)
}

// Similar reports whether two concepts overlap by at least the 70% threshold
func Similar(a, b string) bool {
	return Similarity(a, b) >= SimilarityThreshold
}

func tokenSet(text string) map[string]bool {
	normalized := normalizeText(text)
	set := make(map[string]bool)
	for _, tok := range strings.Fields(normalized) {
		set[tok] = true
	}
	return set
}
