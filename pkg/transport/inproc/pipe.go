package inproc

import (
    "io"
    "sync"
)

// pipeBuf is one direction of an in-process connection: an unbounded byte
// queue with blocking reads. Writes never block; bytes come out in write
// order with no loss or duplication. After the writer closes, reads drain
// whatever is buffered and then report io.EOF.
type pipeBuf struct {
    mu   sync.Mutex
    cond *sync.Cond
    buf  []byte

    wclosed bool // writer hung up: drain then EOF
    rclosed bool // reader gave up: reads and writes fail
}

func newPipeBuf() *pipeBuf {
    b := &pipeBuf{}
    b.cond = sync.NewCond(&b.mu)
    return b
}

func (b *pipeBuf) Write(p []byte) (int, error) {
    b.mu.Lock()
    defer b.mu.Unlock()
    if b.wclosed || b.rclosed {
        return 0, io.ErrClosedPipe
    }
    b.buf = append(b.buf, p...)
    b.cond.Broadcast()
    return len(p), nil
}

func (b *pipeBuf) Read(p []byte) (int, error) {
    b.mu.Lock()
    defer b.mu.Unlock()
    for len(b.buf) == 0 && !b.wclosed && !b.rclosed {
        b.cond.Wait()
    }
    if b.rclosed {
        return 0, io.ErrClosedPipe
    }
    if len(b.buf) == 0 {
        return 0, io.EOF
    }
    n := copy(p, b.buf)
    b.buf = b.buf[n:]
    return n, nil
}

// closeWrite hangs up the writer side; pending and future reads drain the
// remaining bytes and then see EOF.
func (b *pipeBuf) closeWrite() {
    b.mu.Lock()
    b.wclosed = true
    b.cond.Broadcast()
    b.mu.Unlock()
}

// closeRead abandons the reader side, unblocking a pending Read immediately
// and failing subsequent writes.
func (b *pipeBuf) closeRead() {
    b.mu.Lock()
    b.rclosed = true
    b.cond.Broadcast()
    b.mu.Unlock()
}
