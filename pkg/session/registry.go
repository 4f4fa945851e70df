package session

import (
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"weak"
)

var (
	// ErrSessionNotFound reports that no live session matches a specifier.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionAmbiguous reports that a symbolic specifier matches more
	// than one live session.
	ErrSessionAmbiguous = errors.New("session ambiguous")
)

// Registry is the in-process index of live sessions. It holds weak
// references only; the owning endpoint worker keeps the context alive, and
// entries whose context has been collected are dropped lazily on traversal.
type Registry struct {
	mu       sync.Mutex
	sessions map[uint64]weak.Pointer[Context]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[uint64]weak.Pointer[Context])}
}

// Register adds ctx to the registry. It returns false when a live session
// with the same numeric id already exists. Symbolic ids may duplicate.
func (r *Registry) Register(ctx *Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := ctx.NumericID()
	if p, ok := r.sessions[id]; ok && p.Value() != nil {
		return false
	}
	r.sessions[id] = weak.Make(ctx)
	return true
}

// List returns a snapshot of the live sessions ordered by numeric id.
// Entries whose context has expired are removed as a side effect.
func (r *Registry) List() []*Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Context, 0, len(r.sessions))
	for id, p := range r.sessions {
		ctx := p.Value()
		if ctx == nil {
			delete(r.sessions, id)
			continue
		}
		out = append(out, ctx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NumericID() < out[j].NumericID() })
	return out
}

// Find resolves a session specifier, either ":<numeric_id>" or a symbolic
// name. Symbolic lookups that match no session fail with ErrSessionNotFound
// and lookups that match several fail with ErrSessionAmbiguous.
func (r *Registry) Find(spec string) (*Context, error) {
	if strings.HasPrefix(spec, ":") {
		id, err := strconv.ParseUint(spec[1:], 10, 64)
		if err != nil {
			return nil, ErrSessionNotFound
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		p, ok := r.sessions[id]
		if !ok {
			return nil, ErrSessionNotFound
		}
		ctx := p.Value()
		if ctx == nil {
			delete(r.sessions, id)
			return nil, ErrSessionNotFound
		}
		return ctx, nil
	}

	var found *Context
	for _, ctx := range r.List() {
		if ctx.SymbolicID() == spec {
			if found != nil {
				return nil, ErrSessionAmbiguous
			}
			found = ctx
		}
	}
	if found == nil {
		return nil, ErrSessionNotFound
	}
	return found, nil
}
