package inproc

import (
    "context"
    "sync"

    "github.com/Dmdv/redfoxmq/pkg/transport"
)

// Queue holds connections waiting to be accepted for one endpoint. Enqueue
// never blocks, so a connector is never held up by a slow accepter; Dequeue
// blocks until a connection arrives, the context is cancelled or the queue
// is closed and drained.
type Queue struct {
    mu      sync.Mutex
    pending []*Conn
    closed  bool

    readyCh chan struct{} // capacity 1, pulsed on enqueue
    closeCh chan struct{}
}

func newQueue() *Queue {
    return &Queue{
        readyCh: make(chan struct{}, 1),
        closeCh: make(chan struct{}),
    }
}

func (q *Queue) enqueue(c *Conn) {
    q.mu.Lock()
    if q.closed {
        q.mu.Unlock()
        _ = c.Close()
        return
    }
    q.pending = append(q.pending, c)
    q.mu.Unlock()
    select {
    case q.readyCh <- struct{}{}:
    default:
    }
}

// Dequeue returns the next pending accepter-side connection. After the queue
// is closed it keeps draining already-pending connections and then fails
// with transport.ErrNotListening.
func (q *Queue) Dequeue(ctx context.Context) (*Conn, error) {
    for {
        q.mu.Lock()
        if len(q.pending) > 0 {
            c := q.pending[0]
            q.pending = q.pending[1:]
            q.mu.Unlock()
            return c, nil
        }
        closed := q.closed
        q.mu.Unlock()
        if closed {
            return nil, transport.ErrNotListening
        }
        select {
        case <-ctx.Done():
            return nil, ctx.Err()
        case <-q.closeCh:
        case <-q.readyCh:
        }
    }
}

func (q *Queue) close() {
    q.mu.Lock()
    if !q.closed {
        q.closed = true
        close(q.closeCh)
    }
    q.mu.Unlock()
}
