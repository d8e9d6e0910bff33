package ranking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"unicode"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Similarity scores every pair of texts. The returned matrix is square, symmetric
// and has 1 on the diagonal.
type Similarity interface {
	Name() string
	Pairwise(ctx context.Context, texts []string) ([][]float64, error)
}

// Lexical is TF-IDF over unigrams and bigrams with English stop words removed, compared by cosine.
type Lexical struct{}

func (Lexical) Name() string { return "lexical" }

func (Lexical) Pairwise(_ context.Context, texts []string) ([][]float64, error) {
	docs := make([]map[string]float64, len(texts))
	df := make(map[string]int)
	for i, t := range texts {
		tf := termCounts(t)
		docs[i] = tf
		for term := range tf {
			df[term]++
		}
	}
	n := float64(len(texts))
	vecs := make([][]termWeight, len(texts))
	for i, tf := range docs {
		v := make([]termWeight, 0, len(tf))
		for term, c := range tf {
			// smoothed idf
			v = append(v, termWeight{term: term, w: c * (math.Log((1+n)/(1+float64(df[term]))) + 1)})
		}
		slices.SortFunc(v, func(a, b termWeight) int { return strings.Compare(a.term, b.term) })
		var norm float64
		for _, tw := range v {
			norm += tw.w * tw.w
		}
		norm = math.Sqrt(norm)
		if norm > 0 {
			for k := range v {
				v[k].w /= norm
			}
		}
		vecs[i] = v
	}
	return fill(len(texts), func(i, j int) float64 { return sparseDot(vecs[i], vecs[j]) }), nil
}

// termWeight vectors are sorted by term so sums run in a fixed order.
type termWeight struct {
	term string
	w    float64
}

func termCounts(text string) map[string]float64 {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	kept := words[:0]
	for _, w := range words {
		if len([]rune(w)) < 2 || stopWords[w] {
			continue
		}
		kept = append(kept, w)
	}
	tf := make(map[string]float64, len(kept)*2)
	for i, w := range kept {
		tf[w]++
		if i > 0 {
			tf[kept[i-1]+" "+w]++
		}
	}
	return tf
}

func sparseDot(a, b []termWeight) float64 {
	var s float64
	for i, j := 0, 0; i < len(a) && j < len(b); {
		switch c := strings.Compare(a[i].term, b[j].term); {
		case c == 0:
			s += a[i].w * b[j].w
			i++
			j++
		case c < 0:
			i++
		default:
			j++
		}
	}
	return s
}

// fill builds a symmetric matrix computing only the upper triangle.
func fill(n int, sim func(i, j int) float64) [][]float64 {
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
		m[i][i] = 1
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			s := clamp01(sim(i, j))
			m[i][j], m[j][i] = s, s
		}
	}
	return m
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// Embedding compares texts by cosine of OpenAI embedding vectors.
type Embedding struct {
	Model  string
	client openai.Client
}

func NewEmbedding(apiKey, baseURL, model string) (*Embedding, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key missing")
	}
	if model == "" {
		model = string(openai.EmbeddingModelTextEmbedding3Small)
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Embedding{Model: model, client: openai.NewClient(opts...)}, nil
}

func (e *Embedding) Name() string { return "embedding" }

func (e *Embedding) Pairwise(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(e.Model),
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings: %w", err)
	}
	vecs := make([][]float64, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(texts) {
			return nil, fmt.Errorf("embeddings: index %d out of range", d.Index)
		}
		vecs[d.Index] = d.Embedding
	}
	for i, v := range vecs {
		if len(v) == 0 {
			return nil, fmt.Errorf("embeddings: missing vector %d", i)
		}
	}
	return fill(len(texts), func(i, j int) float64 { return cosine(vecs[i], vecs[j]) }), nil
}

func cosine(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

var stopWords = func() map[string]bool {
	words := strings.Fields(`a about above after again against all am an and any are as at be because been
before being below between both but by can cannot could did do does doing down during each few for
from further had has have having he her here hers herself him himself his how i if in into is it its
itself just me more most my myself no nor not now of off on once only or other our ours ourselves out
over own same she should so some such than that the their theirs them themselves then there these they
this those through to too under until up very was we were what when where which while who whom why will
with would you your yours yourself yourselves also get got new one via amp https http www com`)
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}()
