// Package protocol implements the wire frame: the single delimited unit
// exchanged over a connection, carrying a type discriminator and a payload.
package protocol

import (
    "bufio"
    "context"
    "encoding/binary"
    "errors"
    "fmt"
    "io"
    "net"

    "github.com/Dmdv/redfoxmq/pkg/transport"
)

// Fixed frame layout. All integer fields are little-endian.
//
//  0 ..3   Type       u32  message type discriminator
//  4 ..7   PayloadLen u32  payload byte count, at most MaxPayload
//  8 ..    Payload    exactly PayloadLen bytes
//
// This layout is a protocol-compatibility contract: changing widths or byte
// order breaks every deployed peer.
const (
    headerSize = 8

    // MaxPayload guards against absurd length fields on a corrupt stream.
    MaxPayload = 1 << 24
)

// ErrFrameTooLarge reports a length field above MaxPayload.
var ErrFrameTooLarge = errors.New("protocol: frame exceeds max payload")

// Frame is one wire unit. It is produced whole by a sender and delivered
// whole to the receiver; the application layer never sees a partial frame.
type Frame struct {
    Type    uint32
    Payload []byte
}

// WriteTo writes header + payload to w.
func (f *Frame) WriteTo(w io.Writer) (int64, error) {
    if len(f.Payload) > MaxPayload {
        return 0, ErrFrameTooLarge
    }
    hb := make([]byte, headerSize)
    binary.LittleEndian.PutUint32(hb[0:4], f.Type)
    binary.LittleEndian.PutUint32(hb[4:8], uint32(len(f.Payload)))
    n1, err := w.Write(hb)
    if err != nil {
        return int64(n1), err
    }
    n2, err := w.Write(f.Payload)
    return int64(n1 + n2), err
}

// ReadFrom reads exactly one frame from r, blocking until header and the
// full payload have arrived.
func (f *Frame) ReadFrom(r io.Reader) (int64, error) {
    hb := make([]byte, headerSize)
    if _, err := io.ReadFull(r, hb); err != nil {
        return 0, err
    }
    f.Type = binary.LittleEndian.Uint32(hb[0:4])
    n := binary.LittleEndian.Uint32(hb[4:8])
    if n > MaxPayload {
        return int64(headerSize), fmt.Errorf("%w: %d", ErrFrameTooLarge, n)
    }
    if n > 0 {
        f.Payload = make([]byte, int(n))
        if _, err := io.ReadFull(r, f.Payload); err != nil {
            return int64(headerSize), err
        }
    } else {
        f.Payload = nil
    }
    return int64(headerSize + int(n)), nil
}

// Write frames the payload under the given type id and sends it over w in
// one buffered flush.
func Write(w io.Writer, typeID uint32, payload []byte) error {
    f := Frame{Type: typeID, Payload: payload}
    bw := bufio.NewWriter(w)
    if _, err := f.WriteTo(bw); err != nil {
        return err
    }
    return bw.Flush()
}

// Receiver reads whole frames from one connection. It buffers the stream,
// so exactly one Receiver must own the connection's read side.
type Receiver struct {
    c  transport.Conn
    br *bufio.Reader
}

func NewReceiver(c transport.Conn) *Receiver {
    return &Receiver{c: c, br: bufio.NewReader(c)}
}

// Receive blocks until a complete frame is available and returns it. It
// never returns a partial frame. On cancellation (the caller unblocked the
// read via ctx plus Conn.CloseRead) it fails with the context's error; on
// stream end, even mid-frame, it fails with transport.ErrConnClosed.
func (r *Receiver) Receive(ctx context.Context) (*Frame, error) {
    var f Frame
    if _, err := f.ReadFrom(r.br); err != nil {
        if ctx != nil && ctx.Err() != nil {
            return nil, ctx.Err()
        }
        if streamClosed(err) {
            return nil, transport.ErrConnClosed
        }
        return nil, err
    }
    return &f, nil
}

func streamClosed(err error) bool {
    return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
        errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed)
}
