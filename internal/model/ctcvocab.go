package model

import (
	"encoding/json"
	"fmt"
	"os"
)

// CTC special token names, wav2vec2 convention.
const (
	ctcBlankToken = "<pad>"
	ctcWordDelim  = "|"
)

// CTCVocab maps token ids emitted by the ASR head to their string form.
type CTCVocab struct {
	tokens  []string
	blankID int
}

// NewCTCVocab builds a vocabulary from an id-ordered token list.
func NewCTCVocab(tokens []string, blankID int) (*CTCVocab, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("model: empty CTC vocabulary")
	}
	if blankID < 0 || blankID >= len(tokens) {
		return nil, fmt.Errorf("model: blank id %d out of range for %d tokens", blankID, len(tokens))
	}
	return &CTCVocab{tokens: tokens, blankID: blankID}, nil
}

// LoadCTCVocab reads a JSON token→id map (vocab.json). The blank token is
// "<pad>" when present, id 0 otherwise.
func LoadCTCVocab(path string) (*CTCVocab, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("model: read CTC vocab: %w", err)
	}
	var byToken map[string]int
	if err := json.Unmarshal(data, &byToken); err != nil {
		return nil, fmt.Errorf("model: parse CTC vocab: %w", err)
	}
	if len(byToken) == 0 {
		return nil, fmt.Errorf("model: empty CTC vocab %s", path)
	}

	tokens := make([]string, len(byToken))
	for token, id := range byToken {
		if id < 0 || id >= len(tokens) {
			return nil, fmt.Errorf("model: CTC vocab id %d out of range (token %q)", id, token)
		}
		if tokens[id] != "" {
			return nil, fmt.Errorf("model: CTC vocab id %d assigned twice (%q, %q)", id, tokens[id], token)
		}
		tokens[id] = token
	}

	blankID := 0
	if id, ok := byToken[ctcBlankToken]; ok {
		blankID = id
	}
	return NewCTCVocab(tokens, blankID)
}

// Size returns the vocabulary size.
func (v *CTCVocab) Size() int { return len(v.tokens) }

// BlankID returns the CTC blank id.
func (v *CTCVocab) BlankID() int { return v.blankID }

// Token returns the string form of id, or empty for out-of-range ids.
func (v *CTCVocab) Token(id int) string {
	if id < 0 || id >= len(v.tokens) {
		return ""
	}
	return v.tokens[id]
}

// Special reports whether id is a non-lexical token that should not appear in
// a transcription.
func (v *CTCVocab) Special(id int) bool {
	switch v.Token(id) {
	case ctcBlankToken, "<s>", "</s>", "<unk>":
		return true
	}
	return false
}

// WordDelimiter returns the token rendered as a space in transcriptions.
func (v *CTCVocab) WordDelimiter() string { return ctcWordDelim }

// CharVocab returns a compact character-level vocabulary: blank, word
// delimiter, apostrophe, then a-z. The stub ASR head decodes against it, and
// tests use it to exercise the CTC collapse rules.
func CharVocab() *CTCVocab {
	tokens := []string{ctcBlankToken, ctcWordDelim, "'"}
	for c := 'a'; c <= 'z'; c++ {
		tokens = append(tokens, string(c))
	}
	v, err := NewCTCVocab(tokens, 0)
	if err != nil {
		panic(err) // static table, cannot fail
	}
	return v
}
