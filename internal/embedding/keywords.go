package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// KeywordDimension is the width of the keyword projection.
const KeywordDimension = 64

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "of": true, "to": true, "and": true, "in": true, "on": true,
	"at": true, "is": true, "was": true, "with": true, "for": true, "by": true, "it": true,
	"o": true, "os": true, "as": true, "de": true, "da": true, "do": true, "e": true, "em": true,
	"na": true, "no": true, "um": true, "uma": true, "com": true, "que": true, "se": true,
}

// KeywordProjector hashes content words into a signed bag-of-words vector.
// It is deterministic and needs no model.
type KeywordProjector struct {
	dim int
}

// NewKeywordProjector returns a projector with the given dimension.
func NewKeywordProjector(dim int) *KeywordProjector {
	if dim <= 0 {
		dim = KeywordDimension
	}
	return &KeywordProjector{dim: dim}
}

func (k *KeywordProjector) Dimension() int { return k.dim }

func (k *KeywordProjector) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, k.dim)
	for _, w := range Tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(w))
		sum := h.Sum32()
		idx := int(sum % uint32(k.dim))
		if sum&(1<<31) != 0 {
			vec[idx] -= 1
		} else {
			vec[idx] += 1
		}
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		n := float32(math.Sqrt(norm))
		for i := range vec {
			vec[i] /= n
		}
	}
	return vec, nil
}

// Tokenize lowercases text and returns its content words.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) < 2 || stopwords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}
