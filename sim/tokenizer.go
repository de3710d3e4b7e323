package sim

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer converts text into token ids under one fixed vocabulary.
// Equal text always yields equal tokens within a run.
type Tokenizer interface {
	Encode(text string) ([]int, error)
	Vocabulary() string
}

const (
	VocabBytes = "bytes" // one token per UTF-8 byte
	VocabWords = "words" // whitespace-delimited words, hashed

	// DefaultVocabulary matches the GPT-2 vocabulary used by the collectors.
	DefaultVocabulary = "gpt2"
)

// bpeVocabularies maps accepted vocabulary ids to tiktoken encoding names.
var bpeVocabularies = map[string]string{
	"gpt2":        "r50k_base",
	"r50k_base":   "r50k_base",
	"p50k_base":   "p50k_base",
	"cl100k_base": "cl100k_base",
	"o200k_base":  "o200k_base",
}

// VocabularyIDs lists every accepted vocabulary id, sorted.
func VocabularyIDs() []string {
	ids := []string{VocabBytes, VocabWords}
	for id := range bpeVocabularies {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// NewTokenizer resolves a vocabulary id. BPE vocabularies load their ranks
// once here (cached on disk by tiktoken under TIKTOKEN_CACHE_DIR).
func NewTokenizer(vocabularyID string) (Tokenizer, error) {
	switch vocabularyID {
	case VocabBytes:
		return byteTokenizer{}, nil
	case VocabWords:
		return wordTokenizer{}, nil
	}
	encoding, ok := bpeVocabularies[vocabularyID]
	if !ok {
		return nil, fmt.Errorf("unknown tokenizer vocabulary %q; valid: %s", vocabularyID, strings.Join(VocabularyIDs(), ", "))
	}
	tke, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("loading %s ranks: %w", encoding, err)
	}
	return &bpeTokenizer{id: vocabularyID, tke: tke}, nil
}

func checkUTF8(vocab, text string) error {
	if !utf8.ValidString(text) {
		return &TokenizationError{Vocabulary: vocab, Reason: "input is not valid UTF-8"}
	}
	return nil
}

type bpeTokenizer struct {
	id  string
	tke *tiktoken.Tiktoken
}

func (t *bpeTokenizer) Vocabulary() string { return t.id }

// Encode treats special-token text as ordinary text.
func (t *bpeTokenizer) Encode(text string) ([]int, error) {
	if err := checkUTF8(t.id, text); err != nil {
		return nil, err
	}
	return t.tke.Encode(text, nil, nil), nil
}

type byteTokenizer struct{}

func (byteTokenizer) Vocabulary() string { return VocabBytes }

func (byteTokenizer) Encode(text string) ([]int, error) {
	if err := checkUTF8(VocabBytes, text); err != nil {
		return nil, err
	}
	tokens := make([]int, len(text))
	for i := 0; i < len(text); i++ {
		tokens[i] = int(text[i])
	}
	return tokens, nil
}

type wordTokenizer struct{}

func (wordTokenizer) Vocabulary() string { return VocabWords }

// Encode maps each whitespace-delimited word to a 31-bit id.
func (wordTokenizer) Encode(text string) ([]int, error) {
	if err := checkUTF8(VocabWords, text); err != nil {
		return nil, err
	}
	words := strings.Fields(text)
	tokens := make([]int, len(words))
	for i, w := range words {
		tokens[i] = int(xxhash.Sum64String(w) & 0x7fffffff)
	}
	return tokens, nil
}
