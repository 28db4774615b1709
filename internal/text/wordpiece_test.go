package text

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

// Vocabulary ids follow line order.
var testVocab = []string{
	"[PAD]",  // 0
	"[UNK]",  // 1
	"[CLS]",  // 2
	"[SEP]",  // 3
	"hello",  // 4
	"world",  // 5
	"play",   // 6
	"##ing",  // 7
	",",      // 8
	"waan",   // 9
	"##ka",   // 10
}

func newTestTokenizer(t *testing.T, maxLen int) *Tokenizer {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vocab.txt")
	if err := os.WriteFile(path, []byte(strings.Join(testVocab, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	tok, err := NewTokenizer(path, maxLen)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func TestEncodeBasic(t *testing.T) {
	tok := newTestTokenizer(t, 128)
	ids, mask := tok.Encode("Hello world")
	want := []int64{2, 4, 5, 3} // [CLS] hello world [SEP]
	if !reflect.DeepEqual(ids, want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	if len(mask) != len(ids) {
		t.Fatalf("mask length %d, ids length %d", len(mask), len(ids))
	}
	for i, m := range mask {
		if m != 1 {
			t.Fatalf("mask[%d] = %d, want 1", i, m)
		}
	}
}

func TestEncodeWordpieceContinuation(t *testing.T) {
	tok := newTestTokenizer(t, 128)
	ids, _ := tok.Encode("playing waanka")
	want := []int64{2, 6, 7, 9, 10, 3} // [CLS] play ##ing waan ##ka [SEP]
	if !reflect.DeepEqual(ids, want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
}

func TestEncodeUnknownWord(t *testing.T) {
	tok := newTestTokenizer(t, 128)
	ids, _ := tok.Encode("zzz")
	want := []int64{2, 1, 3} // [CLS] [UNK] [SEP]
	if !reflect.DeepEqual(ids, want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
}

func TestEncodePunctuationSplit(t *testing.T) {
	tok := newTestTokenizer(t, 128)
	ids, _ := tok.Encode("hello, world")
	want := []int64{2, 4, 8, 5, 3}
	if !reflect.DeepEqual(ids, want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
}

func TestEncodeEmptyStillClassifiable(t *testing.T) {
	tok := newTestTokenizer(t, 128)
	ids, mask := tok.Encode("")
	want := []int64{2, 3} // bare [CLS] [SEP]
	if !reflect.DeepEqual(ids, want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	if len(mask) != 2 {
		t.Fatalf("mask length = %d, want 2", len(mask))
	}
}

func TestEncodeTruncates(t *testing.T) {
	tok := newTestTokenizer(t, 4)
	ids, _ := tok.Encode("hello world hello world")
	if len(ids) != 4 {
		t.Fatalf("ids length = %d, want max 4", len(ids))
	}
	if ids[0] != 2 || ids[len(ids)-1] != 3 {
		t.Fatalf("truncated sequence must keep [CLS]...[SEP], got %v", ids)
	}
}

func TestNewTokenizerMissingSpecial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.txt")
	if err := os.WriteFile(path, []byte("hello\nworld\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewTokenizer(path, 128); err == nil {
		t.Fatal("expected error for vocab without special tokens")
	}
}

func TestNewTokenizerTinyMaxLen(t *testing.T) {
	if _, err := NewTokenizer("irrelevant", 1); err == nil {
		t.Fatal("expected error for max length below 2")
	}
}
