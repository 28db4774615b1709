package pipeline

import (
	"strings"

	"github.com/ooloteam/toxiscan/internal/model"
)

// greedyPath takes the arg-max token id per frame. No beam search.
func greedyPath(logits [][]float32) []int {
	ids := make([]int, len(logits))
	for i, frame := range logits {
		best := 0
		for j, v := range frame[1:] {
			if v > frame[best] {
				best = j + 1
			}
		}
		ids[i] = best
	}
	return ids
}

// collapseCTC applies the standard CTC collapsing rules to a greedy path:
// merge consecutive repeats, drop blanks, render the word delimiter as a
// space.
func collapseCTC(ids []int, vocab *model.CTCVocab) string {
	var sb strings.Builder
	prev := -1
	for _, id := range ids {
		if id == prev {
			continue
		}
		prev = id
		if vocab.Special(id) {
			continue
		}
		token := vocab.Token(id)
		if token == vocab.WordDelimiter() {
			sb.WriteByte(' ')
			continue
		}
		sb.WriteString(token)
	}
	return strings.TrimSpace(sb.String())
}
