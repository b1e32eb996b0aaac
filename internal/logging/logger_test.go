package logging

import "testing"

func TestNew(t *testing.T) {
	for _, f := range []string{"json", "console", "auto", ""} {
		if _, err := New("debug", f); err != nil {
			t.Fatalf("format %q: %v", f, err)
		}
	}
	if _, err := New("loud", "json"); err == nil {
		t.Fatalf("expected error for bad level")
	}
	if _, err := New("info", "xml"); err == nil {
		t.Fatalf("expected error for bad format")
	}
}
