// Package inproc implements the in-process transport: connection pairs
// backed by unbounded byte queues and a process-wide registry that pairs
// Connect calls with registered accepters, bypassing the network stack.
package inproc

import (
    "fmt"
    "sync"

    "github.com/Dmdv/redfoxmq/pkg/transport"
)

// Registry is the directory of in-process accepters. At most one accepter
// may be registered per endpoint at a time. The zero value is not usable;
// call NewRegistry, or use the package-level Default instance.
type Registry struct {
    mu        sync.Mutex
    accepters map[transport.Endpoint]*Queue
}

// Default is the process-wide registry most callers share. Components that
// want isolation (tests, embedded brokers) construct their own.
var Default = NewRegistry()

func NewRegistry() *Registry {
    return &Registry{accepters: make(map[transport.Endpoint]*Queue)}
}

// RegisterAccepter installs an empty pending-connection queue for the
// endpoint and returns it for the accepter to poll.
func (r *Registry) RegisterAccepter(ep transport.Endpoint) (*Queue, error) {
    if ep.Kind != transport.KindInProc {
        return nil, fmt.Errorf("%w: %s is not inproc", transport.ErrInvalidTransport, ep.Kind)
    }
    if err := ep.Validate(); err != nil {
        return nil, err
    }
    r.mu.Lock()
    defer r.mu.Unlock()
    if _, ok := r.accepters[ep]; ok {
        return nil, fmt.Errorf("%w: %s", transport.ErrAlreadyRegistered, ep)
    }
    q := newQueue()
    r.accepters[ep] = q
    return q, nil
}

// Connect builds a connection pair, hands the accepter-facing end to the
// registered queue and returns the connector-facing end. It never blocks
// the connector: the pending queue is unbounded.
func (r *Registry) Connect(ep transport.Endpoint) (transport.Conn, error) {
    if ep.Kind != transport.KindInProc {
        return nil, fmt.Errorf("%w: %s is not inproc", transport.ErrInvalidTransport, ep.Kind)
    }
    if err := ep.Validate(); err != nil {
        return nil, err
    }
    r.mu.Lock()
    q := r.accepters[ep]
    r.mu.Unlock()
    if q == nil {
        return nil, fmt.Errorf("%w: %s", transport.ErrNotListening, ep)
    }
    accepterEnd, connectorEnd := NewPair(ep.Name)
    q.enqueue(accepterEnd)
    return connectorEnd, nil
}

// UnregisterAccepter removes the registration if present and reports whether
// one existed. Established connections are unaffected; connections still
// pending in the queue remain dequeueable until the queue is drained.
func (r *Registry) UnregisterAccepter(ep transport.Endpoint) bool {
    r.mu.Lock()
    q, ok := r.accepters[ep]
    delete(r.accepters, ep)
    r.mu.Unlock()
    if ok {
        q.close()
    }
    return ok
}
