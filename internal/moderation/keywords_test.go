package moderation

import (
	"reflect"
	"testing"
)

func TestMatcherFindsConfiguredWords(t *testing.T) {
	t.Parallel()

	m := NewMatcher([]string{"spam", "bad word"})

	got := m.Match("this is SPAM with a Bad Word inside")
	want := []string{"bad word", "spam"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Match = %v, want %v", got, want)
	}

	if got := m.Match("perfectly fine message"); len(got) != 0 {
		t.Fatalf("unexpected match: %v", got)
	}
}

func TestMatcherTreatsWordsAsLiterals(t *testing.T) {
	t.Parallel()

	m := NewMatcher([]string{"a.b"})
	if got := m.Match("aXb"); len(got) != 0 {
		t.Fatalf("dot must not act as a wildcard, matched %v", got)
	}
	if got := m.Match("contains a.b here"); len(got) != 1 {
		t.Fatalf("literal not matched: %v", got)
	}
}

func TestMatcherAddRemove(t *testing.T) {
	t.Parallel()

	m := NewMatcher(nil)

	if !m.Add("newword") {
		t.Fatal("Add reported no change for a new word")
	}
	if m.Add("newword") {
		t.Fatal("Add reported change for a duplicate")
	}
	if m.Add("  ") {
		t.Fatal("Add accepted a blank word")
	}

	if !m.Remove("newword") {
		t.Fatal("Remove reported no change for a present word")
	}
	if m.Remove("newword") {
		t.Fatal("Remove reported change for an absent word")
	}
	if words := m.Words(); len(words) != 0 {
		t.Fatalf("expected empty list, got %v", words)
	}
}

func TestDefaultWordsLoad(t *testing.T) {
	t.Parallel()

	words := DefaultWords()
	if len(words) == 0 {
		t.Fatal("embedded default keyword list is empty")
	}
}
