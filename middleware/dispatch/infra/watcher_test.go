package infra

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"admission-gateway/middleware/dispatch/application"
)

func TestWatcher_ReloadsOnFileChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bindings.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	bindings, exempts, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	reg, err := application.NewRegistry(bindings, exempts)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	v1 := reg.Version()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := NewWatcher(path, reg, nil).Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	updated := sampleYAML + `
  - method: GET
    path: /metrics
`
	if err := os.WriteFile(path, []byte(updated), 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for reg.Version() == v1 {
		select {
		case <-deadline:
			t.Fatalf("registry never reloaded after file change")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestWatcher_KeepsSnapshotOnInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bindings.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	bindings, exempts, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	reg, err := application.NewRegistry(bindings, exempts)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	v1 := reg.Version()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := NewWatcher(path, reg, nil).Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := os.WriteFile(path, []byte("bindings: ["), 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	// dá tempo ao watcher de processar e descartar o reload inválido
	time.Sleep(300 * time.Millisecond)
	if reg.Version() != v1 {
		t.Fatalf("invalid file must not replace the snapshot")
	}
}
