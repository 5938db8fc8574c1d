// Package codec maps frame type discriminators to serializer/deserializer
// pairs. Applications populate a Registry before wiring it into a receive
// loop; unknown or malformed frames are recoverable, per-frame failures.
package codec

import (
    "errors"
    "fmt"
    "sync"
)

var (
    // ErrUnknownType reports a type id with no registered entry.
    ErrUnknownType = errors.New("codec: unknown message type")

    // ErrBadPayload reports payload bytes the registered deserializer
    // rejected.
    ErrBadPayload = errors.New("codec: malformed payload")
)

// Serializer turns a typed message into payload bytes.
type Serializer func(m any) ([]byte, error)

// Deserializer turns payload bytes back into a typed message.
type Deserializer func(p []byte) (any, error)

type entry struct {
    s Serializer
    d Deserializer
}

// Registry maps a frame type id to its serializer/deserializer pair. Safe
// for concurrent registration and lookup. Registration is additive: the
// last entry registered for a type id wins, and there is no removal.
type Registry struct {
    mu      sync.RWMutex
    entries map[uint32]entry
}

// Default is the process-wide registry kept for convenience; components
// always take a *Registry explicitly.
var Default = NewRegistry()

func NewRegistry() *Registry {
    return &Registry{entries: make(map[uint32]entry)}
}

// Register binds the pair to the type id, replacing any prior entry.
func (r *Registry) Register(typeID uint32, s Serializer, d Deserializer) {
    r.mu.Lock()
    r.entries[typeID] = entry{s: s, d: d}
    r.mu.Unlock()
}

func (r *Registry) lookup(typeID uint32) (entry, bool) {
    r.mu.RLock()
    e, ok := r.entries[typeID]
    r.mu.RUnlock()
    return e, ok
}

// Serialize encodes the message under the entry registered for typeID.
func (r *Registry) Serialize(typeID uint32, m any) ([]byte, error) {
    e, ok := r.lookup(typeID)
    if !ok {
        return nil, fmt.Errorf("%w: %d", ErrUnknownType, typeID)
    }
    return e.s(m)
}

// Deserialize decodes payload bytes under the entry registered for typeID.
// Fails with ErrUnknownType when the id is unbound and with ErrBadPayload
// when the deserializer rejects the bytes; both leave the connection usable.
func (r *Registry) Deserialize(typeID uint32, payload []byte) (any, error) {
    e, ok := r.lookup(typeID)
    if !ok {
        return nil, fmt.Errorf("%w: %d", ErrUnknownType, typeID)
    }
    m, err := e.d(payload)
    if err != nil {
        return nil, fmt.Errorf("%w: type %d: %v", ErrBadPayload, typeID, err)
    }
    return m, nil
}
