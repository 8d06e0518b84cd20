package infra

import (
	"context"
	"fmt"
	"path/filepath"

	"admission-gateway/middleware/audit"
	"admission-gateway/middleware/dispatch/application"

	"github.com/fsnotify/fsnotify"
)

// Watcher observa o arquivo de bindings e recarrega o registry quando o
// arquivo muda. Um reload inválido é descartado com warning: o snapshot
// anterior continua valendo.
type Watcher struct {
	path     string
	registry *application.Registry
	logger   audit.Logger
}

func NewWatcher(path string, registry *application.Registry, logger audit.Logger) *Watcher {
	if logger == nil {
		logger = audit.StdLogger("dispatch: ")
	}
	return &Watcher{path: path, registry: registry, logger: logger}
}

// Start sobe a goroutine de observação. Pare cancelando o contexto.
//
// Observa o diretório (não o arquivo): editores costumam trocar o arquivo por
// rename, o que mataria um watch direto no path.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("dispatch: criando watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		_ = fw.Close()
		return fmt.Errorf("dispatch: observando %q: %w", filepath.Dir(w.path), err)
	}

	go func() {
		defer func() { _ = fw.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-fw.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				w.reload()
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				w.logger.Warn(fmt.Sprintf("watcher error: %v", err))
			}
		}
	}()
	return nil
}

func (w *Watcher) reload() {
	bindings, exempts, err := LoadFile(w.path)
	if err != nil {
		w.logger.Warn(fmt.Sprintf("reload descartado: %v", err))
		return
	}
	if err := w.registry.Reload(bindings, exempts); err != nil {
		w.logger.Warn(fmt.Sprintf("reload descartado: %v", err))
		return
	}
	w.logger.Info(fmt.Sprintf("bindings recarregados de %s (versão %s)", w.path, w.registry.Version()))
}
