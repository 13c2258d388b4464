package thumb

import (
	"fmt"
	"sort"
	"sync"
)

// Built-in operation names.
const (
	OpResize   = "resize"
	OpCrop     = "crop"
	OpOffset   = "offset"
	OpZoomCrop = "zoom_crop"
	OpQuality  = "quality"
	OpFilter   = "filter"
	OpOverlay  = "overlay"
	OpMerge    = "merge"
	OpCallback = "callback"
)

// Handler applies one queued operation to the processor's current bitmap.
type Handler interface {
	Apply(p *Processor, args []any) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(p *Processor, args []any) error

// Apply calls f(p, args).
func (f HandlerFunc) Apply(p *Processor, args []any) error {
	return f(p, args)
}

// Validator is implemented by handlers that can check their arguments
// without an image.
type Validator interface {
	Validate(args []any) error
}

// Registry maps operation names to handlers.
// Registration normally happens at startup; lookups are safe for
// concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// DefaultRegistry creates a registry with all built-in handlers.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register(OpResize, builtin[resizeArgs]{decodeResize, applyResize})
	r.Register(OpCrop, builtin[cropArgs]{decodeCrop, applyCrop})
	r.Register(OpOffset, builtin[offsetArgs]{decodeOffset, applyOffset})
	r.Register(OpZoomCrop, builtin[zoomCropArgs]{decodeZoomCrop, applyZoomCrop})
	r.Register(OpQuality, builtin[int]{decodeQuality, applyQuality})
	r.Register(OpFilter, builtin[filterArgs]{decodeFilter, applyFilter})
	r.Register(OpOverlay, builtin[overlayArgs]{decodeOverlay, applyOverlay})
	r.Register(OpMerge, builtin[mergeArgs]{decodeMerge, applyMerge})
	r.Register(OpCallback, builtin[callbackArgs]{decodeCallback, applyCallback})

	return r
}

// Register binds name to h, replacing any previous handler.
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[name] = h
}

// Lookup returns the handler registered under name.
func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[name]
	return h, ok
}

// Validate checks that op names a registered handler and, when the
// handler is a Validator, that its arguments are acceptable.
func (r *Registry) Validate(op Operation) error {
	h, ok := r.Lookup(op.Name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownOperation, op.Name)
	}

	if v, ok := h.(Validator); ok {
		if err := v.Validate(op.Args); err != nil {
			return err
		}
	}

	return nil
}

// Names returns the registered operation names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}
