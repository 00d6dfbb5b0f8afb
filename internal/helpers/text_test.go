package helpers

import "testing"

func TestCountWords(t *testing.T) {
	t.Parallel()
	if got := CountWords("  um  dois\ttres\nquatro "); got != 4 {
		t.Fatalf("CountWords() = %d, want 4", got)
	}
	if got := CountWords(""); got != 0 {
		t.Fatalf("CountWords(empty) = %d, want 0", got)
	}
}

func TestNormalizeSpace(t *testing.T) {
	t.Parallel()
	if got := NormalizeSpace(" a\t b\n\nc  "); got != "a b c" {
		t.Fatalf("NormalizeSpace() = %q", got)
	}
}

func TestFoldText(t *testing.T) {
	t.Parallel()
	if got := FoldText("  Art. 5,\tXXXVI  "); got != "art. 5, xxxvi" {
		t.Fatalf("FoldText() = %q", got)
	}
}

func TestTrimExcerpt(t *testing.T) {
	t.Parallel()
	if got := TrimExcerpt("abcdef", 10); got != "abcdef" {
		t.Fatalf("short input should pass through, got %q", got)
	}
	if got := TrimExcerpt("abcdef", 3); got != "abc..." {
		t.Fatalf("TrimExcerpt() = %q", got)
	}
	// Rune-safe truncation of multi-byte text.
	if got := TrimExcerpt("ação de execução", 4); got != "ação..." {
		t.Fatalf("TrimExcerpt(utf8) = %q", got)
	}
}

func TestSnapRuneStart(t *testing.T) {
	t.Parallel()
	s := "aça" // 'ç' occupies bytes 1-2
	if got := SnapRuneStart(s, 2); got != 1 {
		t.Fatalf("SnapRuneStart mid-rune = %d, want 1", got)
	}
	if got := SnapRuneStart(s, 0); got != 0 {
		t.Fatalf("SnapRuneStart(0) = %d", got)
	}
	if got := SnapRuneStart(s, 99); got != len(s) {
		t.Fatalf("SnapRuneStart(past end) = %d, want %d", got, len(s))
	}
}
