package worktree

import "testing"

func TestSlugifyStableUnderIdempotentWhitespace(t *testing.T) {
	a := Slugify("Fix   login   bug", "task-1")
	b := Slugify("fix login bug", "task-1")
	if a != b {
		t.Fatalf("expected stable slug regardless of whitespace run length and case, got %q vs %q", a, b)
	}
}

func TestSlugifyDisambiguatesCollisions(t *testing.T) {
	a := Slugify("Fix login", "task-1")
	b := Slugify("Fix login", "task-2")
	if a == b {
		t.Fatalf("expected different task ids with the same title to produce different slugs, got %q for both", a)
	}
}

func TestSlugifyCapsLength(t *testing.T) {
	long := "this is a very very very very very very very long task title that keeps going and going"
	s := Slugify(long, "task-3")
	if len(s) > maxSlugLength {
		t.Fatalf("expected slug length (hash included) <= %d, got %d (%q)", maxSlugLength, len(s), s)
	}
}
