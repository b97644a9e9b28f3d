package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/feedclip/feedclip/internal/models"
)

// Handler executes one job kind. Handlers never mutate the job row; they
// return a result summary or an error and the queue records the outcome.
type Handler func(ctx context.Context, job *models.Job) (*models.JobResult, error)

// Registry maps job kinds to handlers. It is constructed at startup and
// passed to the worker pool; there is no global handler table.
type Registry struct {
	mu       sync.RWMutex
	handlers map[models.JobKind]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[models.JobKind]Handler)}
}

// Register installs a handler for a kind. Registering the same kind twice
// is a programming error.
func (r *Registry) Register(kind models.JobKind, handler Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[kind]; exists {
		return fmt.Errorf("handler already registered for job kind %q", kind)
	}
	r.handlers[kind] = handler
	return nil
}

// Handler returns the handler for a kind, or an error for unknown kinds.
func (r *Registry) Handler(kind models.JobKind) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.handlers[kind]
	if !ok {
		return nil, fmt.Errorf("no handler registered for job kind %q", kind)
	}
	return handler, nil
}

// Kinds lists the registered kinds, sorted for stable logging.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.handlers))
	for kind := range r.handlers {
		kinds = append(kinds, string(kind))
	}
	sort.Strings(kinds)
	return kinds
}
