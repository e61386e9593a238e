package domain

import "testing"

func TestParseSource(t *testing.T) {
	for _, name := range []string{"sensor", "mobile", "manual"} {
		if _, err := ParseSource(name); err != nil {
			t.Errorf("ParseSource(%q): %v", name, err)
		}
	}
	if _, err := ParseSource("carrier-pigeon"); err == nil {
		t.Error("expected error for unknown source")
	}
}
