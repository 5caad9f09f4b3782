package alg

import (
	"math"
	"strings"

	"github.com/bbalet/stopwords"
	"github.com/jdkato/prose/v2"
)

// TermFrequencies returns the normalized frequency of every token in text.
// Stopwords are removed first so that scores reflect content words.
func TermFrequencies(text string) map[string]float64 {
	cleaned := stopwords.CleanString(strings.ToLower(text), "en", false)

	doc, err := prose.NewDocument(cleaned,
		prose.WithTagging(false),
		prose.WithExtraction(false),
		prose.WithSegmentation(false))
	if err != nil {
		return map[string]float64{}
	}

	tokens := doc.Tokens()
	tf := make(map[string]float64, len(tokens))
	for _, token := range tokens {
		tf[token.Text]++
	}
	for token := range tf {
		tf[token] /= float64(len(tokens))
	}
	return tf
}

// CosineSimilarity calculates the cosine similarity between two term frequency maps.
func CosineSimilarity(tf1, tf2 map[string]float64) float32 {
	dotProduct := 0.0
	magnitude1 := 0.0
	magnitude2 := 0.0

	for term, score1 := range tf1 {
		if score2, exists := tf2[term]; exists {
			dotProduct += score1 * score2
		}
		magnitude1 += score1 * score1
	}
	for _, score2 := range tf2 {
		magnitude2 += score2 * score2
	}

	magnitude1 = math.Sqrt(magnitude1)
	magnitude2 = math.Sqrt(magnitude2)

	if magnitude1 != 0 && magnitude2 != 0 {
		return float32(dotProduct / (magnitude1 * magnitude2))
	}
	return 0.0
}

// Relevance scores how closely the context window around a match
// resembles the query, in the range [0, 1].
func Relevance(window, query string) float32 {
	return CosineSimilarity(TermFrequencies(window), TermFrequencies(query))
}
