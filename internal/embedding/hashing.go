package embedding

import (
	"context"
	"math"
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// DefaultHashingDimension is the vector size of the local model.
const DefaultHashingDimension = 384

const bigramWeight = 0.5

// Hashing is an offline embedder: tokens and token bigrams are hashed
// into a fixed number of signed buckets and the result is L2-normalised.
type Hashing struct {
	dimension    int
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// NewHashing creates a local embedder with the given dimensionality.
func NewHashing(dimension int) *Hashing {
	if dimension <= 0 {
		dimension = DefaultHashingDimension
	}
	return &Hashing{
		dimension:    dimension,
		tokenPattern: regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}\p{N}]+)*`),
		stopwords:    defaultStopwords(),
	}
}

// Name returns the identifier of this embedder implementation.
func (h *Hashing) Name() string { return "hashing" }

// Dimension returns the dimensionality of the produced embedding vectors.
func (h *Hashing) Dimension() int { return h.dimension }

// Embed computes the hashed embedding for the given text.
func (h *Hashing) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, classify(ctx, err)
	}

	vec := make([]float64, h.dimension)
	tokens := h.tokenize(text)
	for i, tok := range tokens {
		h.add(vec, tok, 1)
		if i > 0 {
			h.add(vec, tokens[i-1]+" "+tok, bigramWeight)
		}
	}

	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		// нулевой вектор не сравнить по косинусу
		h.add(vec, "\x00"+text, 1)
		norm = 1
	}
	norm = math.Sqrt(norm)

	out := make([]float32, h.dimension)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}

// EmbedBatch embeds each text in order.
func (h *Hashing) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := h.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (h *Hashing) add(vec []float64, feature string, weight float64) {
	sum := xxhash.Sum64String(feature)
	idx := sum % uint64(len(vec))
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

func (h *Hashing) tokenize(text string) []string {
	raw := h.tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := h.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "so", "such", "into", "about", "than", "too", "very", "can", "will", "just", "should", "now",
		"и", "в", "во", "не", "на", "с", "со", "что", "как", "а", "но", "по", "к", "у", "из", "за", "о", "об", "от", "для", "это",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
