package recovery

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Bindings maps caller-chosen keys to the identifier of the transaction the
// caller is committing. Callers register before and unregister after; the
// log never infers a binding.
type Bindings struct {
	mu sync.RWMutex
	m  map[uuid.UUID]Identifier
}

func NewBindings() *Bindings {
	return &Bindings{m: make(map[uuid.UUID]Identifier)}
}

func (b *Bindings) Register(key uuid.UUID, id Identifier) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.m[key] = id
}

func (b *Bindings) Unregister(key uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.m, key)
}

// CurrentTxIdentifier returns the identifier bound to key or NoIdentifier.
func (b *Bindings) CurrentTxIdentifier(key uuid.UUID) Identifier {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if id, ok := b.m[key]; ok {
		return id
	}
	return NoIdentifier
}

type bindingKeyCtx struct{}

func WithBindingKey(ctx context.Context, key uuid.UUID) context.Context {
	return context.WithValue(ctx, bindingKeyCtx{}, key)
}

func BindingKeyFrom(ctx context.Context) (uuid.UUID, bool) {
	key, ok := ctx.Value(bindingKeyCtx{}).(uuid.UUID)
	return key, ok
}
