package bank

import "testing"

const sampleForms = `
forms:
  A:
    Gf: {items: [gf-1, gf-2], anchors: [gf-2]}
  B:
    fluid: {items: [gf-2], anchors: [gf-2]}
`

func TestFormsAssignDeterministic(t *testing.T) {
	fs, err := ParseForms([]byte(sampleForms))
	if err != nil {
		t.Fatalf("ParseForms: %v", err)
	}
	first := fs.Assign("respondent-17")
	for i := 0; i < 5; i++ {
		if got := fs.Assign("respondent-17"); got != first {
			t.Fatalf("Assign: want=%s got=%s", first, got)
		}
	}
	seen := map[string]bool{}
	for _, seed := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		seen[fs.Assign(seed)] = true
	}
	if len(seen) != 2 {
		t.Fatalf("Assign spread: want both forms got=%v", seen)
	}
}

func TestFormsLookups(t *testing.T) {
	fs, err := ParseForms([]byte(sampleForms))
	if err != nil {
		t.Fatalf("ParseForms: %v", err)
	}
	if got := fs.AllowedItems("B", "Gf"); len(got) != 1 || got[0] != "gf-2" {
		t.Fatalf("AllowedItems: got=%v", got)
	}
	if got := fs.AllowedItems("A", "Gq"); got != nil {
		t.Fatalf("unrestricted domain: want nil got=%v", got)
	}
	if got := fs.Anchors("A", "Gf"); len(got) != 1 {
		t.Fatalf("Anchors: got=%v", got)
	}
	d, ok := fs.Describe("A")
	if !ok || d["Gf"].Items != 2 || d["Gf"].Anchors != 1 {
		t.Fatalf("Describe: got=%v ok=%v", d, ok)
	}
	var empty *FormSet
	if empty.Assign("x") != "" {
		t.Fatalf("nil set: want empty form")
	}
}

func TestFormsValidateAgainstBank(t *testing.T) {
	b, err := Parse([]byte(sampleBank))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	fs, _ := ParseForms([]byte(sampleForms))
	if err := fs.Validate(b); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	bad := NewFormSet(map[string]Form{"X": {"Gq": {Items: []string{"gf-1"}}}})
	if err := bad.Validate(b); err == nil {
		t.Fatalf("Validate: want domain mismatch")
	}
}
