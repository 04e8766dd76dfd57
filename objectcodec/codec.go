// Package objectcodec implements the binary value codec used by the disk
// tier to serialize heterogeneous, arbitrarily-typed values into a single
// byte-slice column.
//
// The encoding is gob, self-describing by construction: gob already tags
// every concrete type it writes. Every value is wrapped in a primitiveBox and
// every primitive and collection kind is gob.Registered up front so the
// decoder can recover the original concrete type.
//
// The pool of reusable contexts is a sync.Pool handed out via a small
// acquire/release pair, sized so that acquisition never blocks and
// over-capacity releases are simply discarded by sync.Pool's own
// GC-driven eviction. Only buffers are pooled on the encode side — each
// Encode call gets its own gob.Encoder bound to a pooled buffer, since a
// gob.Encoder is stateful across calls and must not be reused (see Encode).
package objectcodec

import (
	"bytes"
	"encoding/gob"
	"sync"

	"github.com/SivagurunathanV/tier-cache/tiererrors"
)

func init() {
	// Register the primitive and collection kinds a cache value is likely
	// to take on, so gob can round-trip them when boxed in interface{}.
	gob.Register(primitiveBox{})
	gob.Register(int(0))
	gob.Register(int32(0))
	gob.Register(int64(0))
	gob.Register(uint(0))
	gob.Register(uint32(0))
	gob.Register(uint64(0))
	gob.Register(float32(0))
	gob.Register(float64(0))
	gob.Register(bool(false))
	gob.Register(string(""))
	gob.Register([]byte(nil))
	gob.Register([]interface{}(nil))
	gob.Register([]string(nil))
	gob.Register([]int(nil))
	gob.Register([]float64(nil))
	gob.Register(map[string]interface{}(nil))
	gob.Register(map[string]string(nil))
}

// primitiveBox wraps a value so gob always has a concrete, registered
// wrapper type to encode at the top level, regardless of what the caller's
// V happens to be.
type primitiveBox struct {
	V interface{}
}

// Register records a concrete type the codec must be able to round-trip.
// Callers storing their own struct types in the cache must call this once
// (typically from an init func) before any Encode/Decode involving that
// type, exactly as gob itself requires for interface values.
func Register(value interface{}) {
	gob.Register(value)
}

// encoderContext is the unit of pooled, reusable state: just the buffer.
// The gob.Encoder itself is never pooled — it is not safe to reuse across
// Encode calls, since it remembers (in its own internal "sent" map) every
// concrete type it has already transmitted and omits the type descriptor
// from any later message through the same encoder. A fresh *gob.Decoder
// has no such memory, so a second Encode through a reused *gob.Encoder
// would produce bytes only that same encoder's prior output stream could
// decode. A fresh gob.Encoder is therefore constructed per Encode call,
// bound to the pooled buffer. It is never shared across concurrent
// callers; Acquire/Release discipline prevents that.
type encoderContext struct {
	buf *bytes.Buffer
}

// decoderContext mirrors encoderContext for the read path: only the
// bytes.Reader is pooled. Each Decode call resets it onto the new input and
// builds a fresh gob.Decoder over it, since a gob.Decoder keeps the type
// descriptors of the stream it has read and must not be reused.
type decoderContext struct {
	buf *bytes.Reader
}

// Pool is a bounded, thread-safe pool of reusable encode/decode contexts.
// The zero value is not usable; construct with NewPool.
//
// Acquisition never blocks: sync.Pool either returns a retained context or
// allocates a fresh one on the spot. "Bounded" here means retained
// contexts are subject to sync.Pool's own per-GC-cycle eviction, not an
// explicit counted limit.
type Pool struct {
	encoders sync.Pool
	decoders sync.Pool
}

// NewPool constructs a ready-to-use codec pool.
func NewPool() *Pool {
	p := &Pool{}
	p.encoders.New = func() interface{} {
		return &encoderContext{buf: new(bytes.Buffer)}
	}
	p.decoders.New = func() interface{} {
		return &decoderContext{buf: bytes.NewReader(nil)}
	}
	return p
}

// Encode serializes value into a self-describing byte slice.
func (p *Pool) Encode(value interface{}) ([]byte, error) {
	ctx := p.encoders.Get().(*encoderContext)
	defer func() {
		ctx.buf.Reset()
		p.encoders.Put(ctx)
	}()

	enc := gob.NewEncoder(ctx.buf)
	if err := enc.Encode(&primitiveBox{V: value}); err != nil {
		return nil, &tiererrors.SerializationError{Err: err}
	}
	out := make([]byte, ctx.buf.Len())
	copy(out, ctx.buf.Bytes())
	return out, nil
}

// Decode is the inverse of Encode: it yields a value equal to the original
// under the value type's own equality relation. The returned interface{}
// holds the original concrete type.
func (p *Pool) Decode(data []byte) (interface{}, error) {
	ctx := p.decoders.Get().(*decoderContext)
	defer func() {
		p.decoders.Put(ctx)
	}()

	ctx.buf.Reset(data)
	dec := gob.NewDecoder(ctx.buf)

	var box primitiveBox
	if err := dec.Decode(&box); err != nil {
		return nil, &tiererrors.DeserializationError{Err: err}
	}
	return box.V, nil
}
