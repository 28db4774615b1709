package pipeline

import (
	"context"
	"reflect"
	"testing"

	"github.com/ooloteam/toxiscan/internal/model"
)

func TestGreedyPath(t *testing.T) {
	logits := [][]float32{
		{5, 0, 0},
		{0, 0, 9},
		{1, 2, 1.5},
	}
	got := greedyPath(logits)
	want := []int{0, 2, 1}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("greedy path = %v, want %v", got, want)
	}
}

func TestCollapseCTC(t *testing.T) {
	v := model.CharVocab()
	id := func(token string) int {
		for i := 0; i < v.Size(); i++ {
			if v.Token(i) == token {
				return i
			}
		}
		t.Fatalf("token %q not in char vocab", token)
		return -1
	}
	blank := v.BlankID()
	delim := id(v.WordDelimiter())

	cases := []struct {
		name string
		ids  []int
		want string
	}{
		{"empty", nil, ""},
		{"all blanks", []int{blank, blank, blank}, ""},
		{"merges repeats", []int{id("h"), id("h"), id("i")}, "hi"},
		{"blank separates repeats", []int{id("o"), blank, id("o")}, "oo"},
		{"delimiter renders as space", []int{id("h"), id("i"), delim, id("u")}, "hi u"},
		{"trims edge spaces", []int{delim, id("a"), delim, blank}, "a"},
		{"repeated delimiters collapse", []int{id("a"), delim, delim, id("b")}, "a b"},
	}
	for _, tc := range cases {
		if got := collapseCTC(tc.ids, v); got != tc.want {
			t.Fatalf("%s: collapse = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestGreedyPathThenCollapse(t *testing.T) {
	// A full stub round trip: logits synthesized for a transcript must decode
	// back to it through the greedy path and the collapse rules.
	head := model.NewStubASRHead("waan ku arkaa")
	logits, err := head.Logits(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	got := collapseCTC(greedyPath(logits), head.Vocab())
	if got != "waan ku arkaa" {
		t.Fatalf("decoded %q, want %q", got, "waan ku arkaa")
	}
}
