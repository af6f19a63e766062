// Package dialog decouples "show this error to the user" from how a host
// actually shows it. The fetcher only knows ErrorPresenter.
package dialog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/itchan-dev/starter/shared/logger"
)

// ErrorDialogKey is the key hosts register their error renderer under.
const ErrorDialogKey = "error-dialog"

// Options describe one dialog.
type Options struct {
	Title        string
	Message      string
	Centered     bool
	Closable     bool // explicit close affordance besides the dialog's own action
	MaskClosable bool // dismissable by clicking the backdrop
}

// ErrorPresenter opens the blocking error dialog.
type ErrorPresenter interface {
	OpenErrorDialog(ctx context.Context, opts Options)
}

// Renderer shows a dialog.
type Renderer func(ctx context.Context, opts Options)

// Registry maps dialog keys to renderers. It is an instance owned by the host,
// not a process-wide table.
type Registry struct {
	mu        sync.RWMutex
	renderers map[string]Renderer
	log       *slog.Logger
}

func NewRegistry() *Registry {
	return &Registry{
		renderers: make(map[string]Renderer),
		log:       logger.Component("dialog"),
	}
}

// Register installs r under key, replacing any previous renderer.
func (reg *Registry) Register(key string, r Renderer) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if r == nil {
		delete(reg.renderers, key)
		return
	}
	reg.renderers[key] = r
}

// Open renders the dialog registered under key.
func (reg *Registry) Open(ctx context.Context, key string, opts Options) error {
	reg.mu.RLock()
	r, ok := reg.renderers[key]
	reg.mu.RUnlock()
	if !ok {
		return fmt.Errorf("dialog: no renderer registered for %q", key)
	}
	r(ctx, opts)
	return nil
}

// OpenErrorDialog implements ErrorPresenter on top of ErrorDialogKey.
func (reg *Registry) OpenErrorDialog(ctx context.Context, opts Options) {
	if err := reg.Open(ctx, ErrorDialogKey, opts); err != nil {
		reg.log.Warn("error dialog dropped", "title", opts.Title, "message", opts.Message, "error", err)
	}
}

// Recorder is an ErrorPresenter that keeps every dialog it was asked to open.
type Recorder struct {
	mu      sync.Mutex
	dialogs []Options
}

func (r *Recorder) OpenErrorDialog(_ context.Context, opts Options) {
	r.mu.Lock()
	r.dialogs = append(r.dialogs, opts)
	r.mu.Unlock()
}

// Dialogs returns a copy of the recorded dialogs in open order.
func (r *Recorder) Dialogs() []Options {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Options(nil), r.dialogs...)
}

// Nop discards every dialog.
type Nop struct{}

func (Nop) OpenErrorDialog(context.Context, Options) {}
