package plan

import "testing"

func TestSessionWindowForRange(t *testing.T) {
	w, err := SessionWindowFor(1)
	if err != nil {
		t.Fatalf("SessionWindowFor(1): %v", err)
	}
	if w.Start != "06:00" || w.End != "08:15" {
		t.Errorf("unexpected window 1: %+v", w)
	}

	if _, err := SessionWindowFor(0); err == nil {
		t.Fatal("expected error for session index 0")
	}
	if _, err := SessionWindowFor(9); err == nil {
		t.Fatal("expected error for session index 9")
	}
}

func TestSessionWindowCronSpec(t *testing.T) {
	tests := []struct {
		index int
		want  string
	}{
		{1, "0 6 * * *"},
		{2, "15 8 * * *"},
		{8, "45 21 * * *"},
	}
	for _, tt := range tests {
		w, err := SessionWindowFor(tt.index)
		if err != nil {
			t.Fatalf("SessionWindowFor(%d): %v", tt.index, err)
		}
		if got := w.CronSpec(); got != tt.want {
			t.Errorf("window %d CronSpec() = %q, want %q", tt.index, got, tt.want)
		}
	}
}
