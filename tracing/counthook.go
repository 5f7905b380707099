package tracing

import (
	"sync"

	"github.com/sarchlab/bankfinder/hooking"
)

// CountHook counts how many times each hook position is invoked.
type CountHook struct {
	lock  sync.Mutex
	names []string
	count map[string]uint64
}

// NewCountHook creates a CountHook.
func NewCountHook() *CountHook {
	return &CountHook{count: make(map[string]uint64)}
}

// Func counts the position of ctx.
func (h *CountHook) Func(ctx hooking.HookCtx) {
	h.lock.Lock()
	defer h.lock.Unlock()

	name := ctx.Pos.Name
	if _, ok := h.count[name]; !ok {
		h.names = append(h.names, name)
	}

	h.count[name]++
}

// Names returns the positions seen, in order of first appearance.
func (h *CountHook) Names() []string {
	h.lock.Lock()
	defer h.lock.Unlock()

	return append([]string(nil), h.names...)
}

// Count returns how many times a position was invoked.
func (h *CountHook) Count(pos *hooking.HookPos) uint64 {
	h.lock.Lock()
	defer h.lock.Unlock()

	return h.count[pos.Name]
}
