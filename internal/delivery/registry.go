// internal/delivery/registry.go
package delivery

import (
	"fmt"
	"sync"
)

// Handler sends a message to a chat on one platform.
type Handler func(chatID, text string) error

// Registry routes outbound messages to the adapter for their platform
// (e.g. "telegram"). Scheduled task answers go through here since the
// scheduler knows the platform only as a string.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty delivery registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register adds a handler for a platform.
func (r *Registry) Register(platform string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[platform] = handler
}

// Deliver sends text to a chat via the platform's handler. Returns an
// error if no handler is registered for the platform.
func (r *Registry) Deliver(platform, chatID, text string) error {
	r.mu.RLock()
	handler, ok := r.handlers[platform]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no delivery handler for platform %q", platform)
	}
	return handler(chatID, text)
}
