package application

import (
	"testing"
	"time"
)

func TestSlidingWindow_TrimDropsExpiredStamps(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w := slidingWindow{span: time.Minute}

	w.note(base)
	w.note(base.Add(10 * time.Second))
	w.note(base.Add(50 * time.Second))

	w.trim(base.Add(55 * time.Second))
	if w.count() != 3 {
		t.Fatalf("nothing expired yet, got count %d", w.count())
	}

	// base sai exatamente em base+60s (janela fechada à esquerda)
	w.trim(base.Add(60 * time.Second))
	if w.count() != 2 {
		t.Fatalf("expected 2 after first stamp expires, got %d", w.count())
	}

	w.trim(base.Add(2 * time.Minute))
	if w.count() != 0 {
		t.Fatalf("expected empty window, got %d", w.count())
	}
}

func TestSlidingWindow_NoteOnlyGrowsOnAccept(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w := slidingWindow{span: time.Minute}

	for i := 0; i < 5; i++ {
		w.trim(base)
		w.note(base.Add(time.Duration(i) * time.Second))
	}
	if w.count() != 5 {
		t.Fatalf("expected 5 stamps, got %d", w.count())
	}
}
