// Package bm25 implements the BM25 inverted index over the review
// corpus: CJK-aware tokenization, Okapi BM25 scoring, and single-blob
// persistence. The same tokenizer runs at build and query time.
package bm25

import (
	"bufio"
	"os"
	"regexp"
	"strings"

	"github.com/go-ego/gse"
)

// whitespaceRE strips all whitespace before segmentation.
var whitespaceRE = regexp.MustCompile(`\s+`)

// englishStopwords is the built-in English stoplist, applied on top of
// any configured stopword file.
var englishStopwords = []string{
	"a", "about", "above", "after", "again", "against", "all", "am", "an",
	"and", "any", "are", "as", "at", "be", "because", "been", "before",
	"being", "below", "between", "both", "but", "by", "can", "did", "do",
	"does", "doing", "down", "during", "each", "few", "for", "from",
	"further", "had", "has", "have", "having", "he", "her", "here", "hers",
	"herself", "him", "himself", "his", "how", "i", "if", "in", "into",
	"is", "it", "its", "itself", "just", "me", "more", "most", "my",
	"myself", "no", "nor", "not", "now", "of", "off", "on", "once", "only",
	"or", "other", "our", "ours", "ourselves", "out", "over", "own", "s",
	"same", "she", "should", "so", "some", "such", "t", "than", "that",
	"the", "their", "theirs", "them", "themselves", "then", "there",
	"these", "they", "this", "those", "through", "to", "too", "under",
	"until", "up", "very", "was", "we", "were", "what", "when", "where",
	"which", "while", "who", "whom", "why", "will", "with", "you", "your",
	"yours", "yourself", "yourselves",
}

// Tokenizer segments mixed CJK and Latin text into filtered word tokens.
// Tokenization is deterministic: the same text always yields the same
// token sequence, which the index round-trip tests rely on.
type Tokenizer struct {
	seg       gse.Segmenter
	stopwords map[string]struct{}
}

// NewTokenizer loads the segmentation dictionary and the stopword set.
// stopwordFile may be empty; the English stoplist is always included.
func NewTokenizer(stopwordFile string) (*Tokenizer, error) {
	t := &Tokenizer{stopwords: make(map[string]struct{})}
	if err := t.seg.LoadDict(); err != nil {
		return nil, err
	}
	for _, w := range englishStopwords {
		t.stopwords[w] = struct{}{}
	}
	if stopwordFile != "" {
		if err := t.loadStopwordFile(stopwordFile); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *Tokenizer) loadStopwordFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		word := strings.TrimSpace(scanner.Text())
		if word != "" {
			t.stopwords[strings.ToLower(word)] = struct{}{}
		}
	}
	return scanner.Err()
}

// SetStopwords replaces the stopword set. Used when loading a persisted
// index so query-time filtering matches build time exactly.
func (t *Tokenizer) SetStopwords(words []string) {
	t.stopwords = make(map[string]struct{}, len(words))
	for _, w := range words {
		t.stopwords[strings.ToLower(w)] = struct{}{}
	}
}

// Stopwords returns the stopword set as a sorted-insensitive slice for
// persistence.
func (t *Tokenizer) Stopwords() []string {
	words := make([]string, 0, len(t.stopwords))
	for w := range t.stopwords {
		words = append(words, w)
	}
	return words
}

// Tokenize splits text into lowercase word tokens. Whitespace is
// removed before segmentation; tokens containing characters outside
// the CJK unified-ideograph range and the Latin alphabet are dropped,
// as are stopwords.
func (t *Tokenizer) Tokenize(text string) []string {
	text = whitespaceRE.ReplaceAllString(text, "")
	if text == "" {
		return nil
	}

	var tokens []string
	for _, raw := range t.seg.Cut(text, true) {
		if !isCJKOrLatin(raw) {
			continue
		}
		token := strings.ToLower(raw)
		if _, stop := t.stopwords[token]; stop {
			continue
		}
		tokens = append(tokens, token)
	}
	return tokens
}

// isCJKOrLatin reports whether every rune is a CJK unified ideograph
// or an ASCII letter.
func isCJKOrLatin(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 0x4E00 && r <= 0x9FFF:
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		default:
			return false
		}
	}
	return true
}
