package blob

import (
	"errors"
	"testing"
)

func TestCleanKey(t *testing.T) {
	valid := map[string]string{
		"receipts/org/r1/a1.json": "receipts/org/r1/a1.json",
		"exports//org/x.jsonl":    "exports/org/x.jsonl",
		"a/./b":                   "a/b",
	}
	for in, want := range valid {
		got, err := CleanKey(in)
		if err != nil {
			t.Fatalf("CleanKey(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("CleanKey(%q) = %q, want %q", in, got, want)
		}
	}
	for _, bad := range []string{"", "   ", "/abs", "../escape", "a/../../b", `a\b`} {
		if _, err := CleanKey(bad); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("CleanKey(%q) = %v, want ErrInvalidKey", bad, err)
		}
	}
}

func TestCloneMetadata(t *testing.T) {
	if CloneMetadata(nil) != nil {
		t.Fatalf("nil metadata should stay nil")
	}
	src := map[string]string{"tenant": "org"}
	cp := CloneMetadata(src)
	cp["tenant"] = "other"
	if src["tenant"] != "org" {
		t.Fatalf("clone shares storage with source")
	}
}
