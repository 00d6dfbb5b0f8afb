package helpers

import "testing"

func TestStripCodeFence(t *testing.T) {
	t.Parallel()
	in := "Segue o resultado:\n```json\n{\"aprovado\": true}\n```\nFim."
	got, ok := StripCodeFence(in)
	if !ok {
		t.Fatalf("expected fenced block to be found")
	}
	if got != `{"aprovado": true}` {
		t.Fatalf("StripCodeFence() = %q", got)
	}
}

func TestStripCodeFenceTilde(t *testing.T) {
	t.Parallel()
	got, ok := StripCodeFence("~~~\n{\"a\":1}\n~~~")
	if !ok || got != `{"a":1}` {
		t.Fatalf("StripCodeFence(tilde) = %q ok=%v", got, ok)
	}
}

func TestStripCodeFenceMissing(t *testing.T) {
	t.Parallel()
	if _, ok := StripCodeFence("sem cerca nenhuma"); ok {
		t.Fatalf("expected no fenced block")
	}
}

func TestExtractBalancedJSON(t *testing.T) {
	t.Parallel()
	in := `o parecer segue abaixo {"nota": 8, "obs": "chave } dentro de string"} obrigado`
	got, ok := ExtractBalancedJSON(in)
	if !ok {
		t.Fatalf("expected balanced object")
	}
	want := `{"nota": 8, "obs": "chave } dentro de string"}`
	if got != want {
		t.Fatalf("ExtractBalancedJSON() = %q, want %q", got, want)
	}
}

func TestExtractBalancedJSONNested(t *testing.T) {
	t.Parallel()
	in := `x {"a": {"b": [1, 2, {"c": 3}]}} y`
	got, ok := ExtractBalancedJSON(in)
	if !ok || got != `{"a": {"b": [1, 2, {"c": 3}]}}` {
		t.Fatalf("ExtractBalancedJSON(nested) = %q ok=%v", got, ok)
	}
}

func TestExtractBalancedJSONUnterminated(t *testing.T) {
	t.Parallel()
	if _, ok := ExtractBalancedJSON(`{"aberto": true`); ok {
		t.Fatalf("unterminated object must not match")
	}
}
