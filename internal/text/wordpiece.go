// Package text tokenizes decoded transcriptions for the text classifier
// using a WordPiece vocabulary.
package text

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"
)

// Special token names expected in the vocabulary file.
const (
	TokenUnknown = "[UNK]"
	TokenCLS     = "[CLS]"
	TokenSEP     = "[SEP]"
	TokenPad     = "[PAD]"
)

// Tokenizer maps text to the token id sequence the classifier consumes:
// [CLS] wordpieces... [SEP], truncated to MaxLen.
type Tokenizer struct {
	vocab  map[string]int64
	unkID  int64
	clsID  int64
	sepID  int64
	padID  int64
	maxLen int
}

// NewTokenizer loads a vocabulary file (one token per line, line number is
// the token id) and returns a tokenizer that truncates to maxLen ids.
func NewTokenizer(vocabPath string, maxLen int) (*Tokenizer, error) {
	if maxLen < 2 {
		return nil, fmt.Errorf("text: max length %d leaves no room for [CLS]/[SEP]", maxLen)
	}
	f, err := os.Open(vocabPath)
	if err != nil {
		return nil, fmt.Errorf("text: open vocab: %w", err)
	}
	defer f.Close()

	vocab := make(map[string]int64)
	sc := bufio.NewScanner(f)
	var id int64
	for sc.Scan() {
		token := strings.TrimRight(sc.Text(), "\r\n")
		if token == "" {
			id++
			continue
		}
		vocab[token] = id
		id++
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("text: read vocab: %w", err)
	}

	t := &Tokenizer{vocab: vocab, maxLen: maxLen}
	for _, req := range []struct {
		name string
		dst  *int64
	}{
		{TokenUnknown, &t.unkID},
		{TokenCLS, &t.clsID},
		{TokenSEP, &t.sepID},
		{TokenPad, &t.padID},
	} {
		v, ok := vocab[req.name]
		if !ok {
			return nil, fmt.Errorf("text: vocab missing required token %s", req.name)
		}
		*req.dst = v
	}
	return t, nil
}

// PadID returns the padding token id.
func (t *Tokenizer) PadID() int64 { return t.padID }

// Encode returns token ids and a matching attention mask for s. Empty input
// yields the bare [CLS] [SEP] pair, so classification still runs on empty
// transcriptions.
func (t *Tokenizer) Encode(s string) (ids []int64, mask []int64) {
	ids = append(ids, t.clsID)
	for _, word := range basicTokenize(s) {
		for _, id := range t.wordpiece(word) {
			// Reserve the final slot for [SEP].
			if len(ids) >= t.maxLen-1 {
				break
			}
			ids = append(ids, id)
		}
		if len(ids) >= t.maxLen-1 {
			break
		}
	}
	ids = append(ids, t.sepID)

	mask = make([]int64, len(ids))
	for i := range mask {
		mask[i] = 1
	}
	return ids, mask
}

// wordpiece splits one word into subword ids by greedy longest-match, with
// the "##" continuation prefix. Words with no match become [UNK].
func (t *Tokenizer) wordpiece(word string) []int64 {
	runes := []rune(word)
	var out []int64
	start := 0
	for start < len(runes) {
		end := len(runes)
		var matched int64 = -1
		for end > start {
			piece := string(runes[start:end])
			if start > 0 {
				piece = "##" + piece
			}
			if id, ok := t.vocab[piece]; ok {
				matched = id
				break
			}
			end--
		}
		if matched < 0 {
			return []int64{t.unkID}
		}
		out = append(out, matched)
		start = end
	}
	return out
}

// basicTokenize lowercases, splits on whitespace, and breaks punctuation out
// into standalone tokens.
func basicTokenize(s string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.IsPunct(r):
			flush()
			tokens = append(tokens, string(r))
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return tokens
}
