// Package wire implements the single length-prefixed framing contract
// shared by the client, the server dispatcher, and the proxy frontend: a
// 4-byte big-endian length followed by that many bytes of payload.
package wire

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"io"

	"github.com/EKerSun/rpcgo/internal/rpcerr"
	"github.com/EKerSun/rpcgo/pkg/pool"
)

// bufferPool reuses the *bytes.Buffer values EncodeHeader/EncodeRequestHeader
// gob-encode into, avoiding one allocation per call on the hot request path.
var bufferPool = pool.NewLitePool(func() *bytes.Buffer { return new(bytes.Buffer) })

// MaxFrameSize bounds a single frame's payload to guard against a corrupt
// or hostile length prefix causing an unbounded allocation.
const MaxFrameSize = 64 << 20 // 64 MiB

// MaxResponseRead is the fixed read size used for the unframed response
// path, matching the original protocol's fixed-buffer response read.
const MaxResponseRead = 1024

// RpcHeader is the schema-serialized request envelope: service and method
// name plus the already-serialized request parameters.
type RpcHeader struct {
	ServiceName string
	MethodName  string
	Params      []byte
}

// RequestHeader is the proxy's inbound envelope: a numeric message ID plus
// opaque content bytes the registered handler is expected to decode.
type RequestHeader struct {
	MessageID uint32
	Content   []byte
}

// WriteFrame writes a length-prefixed frame as a single contiguous write,
// so frames are never interleaved on a connection shared across goroutines.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return rpcerr.New(rpcerr.PROTOCOL_ERROR, "", "frame payload too large")
	}

	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(payload)))
	copy(buf[4:], payload)

	if _, err := w.Write(buf); err != nil {
		return rpcerr.New(rpcerr.NETWORK_ERROR, "", err.Error())
	}
	return nil
}

// ReadFrame reads one length-prefixed frame, returning the payload bytes.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, rpcerr.New(rpcerr.PROTOCOL_ERROR, "", "short read on frame length")
		}
		return nil, rpcerr.New(rpcerr.NETWORK_ERROR, "", err.Error())
	}

	length := binary.BigEndian.Uint32(lenBuf[:])
	if length > MaxFrameSize {
		return nil, rpcerr.New(rpcerr.PROTOCOL_ERROR, "", "frame length exceeds maximum")
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, rpcerr.New(rpcerr.PROTOCOL_ERROR, "", "short read on frame payload")
		}
		return nil, rpcerr.New(rpcerr.NETWORK_ERROR, "", err.Error())
	}
	return payload, nil
}

// WriteResponse writes the response payload with no length prefix; the
// server closes the connection immediately afterward, which is how the
// client knows the response is complete.
func WriteResponse(w io.Writer, payload []byte) error {
	if _, err := w.Write(payload); err != nil {
		return rpcerr.New(rpcerr.NETWORK_ERROR, "", err.Error())
	}
	return nil
}

// ReadResponse issues a single bounded read into a MaxResponseRead buffer
// and returns whatever bytes came back, mirroring the original protocol's
// one-shot recv(fd, buf, 1024, 0): it does not loop waiting for EOF or for
// the buffer to fill, so a response this is its own single write is seen
// whole as soon as it arrives, connection-close or not.
func ReadResponse(r io.Reader) ([]byte, error) {
	buf := make([]byte, MaxResponseRead)
	n, err := r.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, rpcerr.New(rpcerr.NETWORK_ERROR, "", err.Error())
	}
	return buf[:n], nil
}

// EncodeHeader gob-encodes an RpcHeader. gob is the idiomatic stdlib stand-in
// for the externally-assumed schema compiler (the same role it plays in
// Go's own net/rpc).
func EncodeHeader(h RpcHeader) ([]byte, error) {
	buf := bufferPool.Get()
	defer bufferPool.Put(buf)

	if err := gob.NewEncoder(buf).Encode(h); err != nil {
		return nil, rpcerr.New(rpcerr.PROTOCOL_ERROR, "", err.Error())
	}

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

// DecodeHeader decodes a gob-encoded RpcHeader.
func DecodeHeader(data []byte) (RpcHeader, error) {
	var h RpcHeader
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&h); err != nil {
		return RpcHeader{}, rpcerr.New(rpcerr.INVALID_RESPONSE, "", err.Error())
	}
	return h, nil
}

// EncodeRequestHeader gob-encodes a proxy RequestHeader.
func EncodeRequestHeader(h RequestHeader) ([]byte, error) {
	buf := bufferPool.Get()
	defer bufferPool.Put(buf)

	if err := gob.NewEncoder(buf).Encode(h); err != nil {
		return nil, rpcerr.New(rpcerr.PROTOCOL_ERROR, "", err.Error())
	}

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

// DecodeRequestHeader decodes a gob-encoded proxy RequestHeader.
func DecodeRequestHeader(data []byte) (RequestHeader, error) {
	var h RequestHeader
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&h); err != nil {
		return RequestHeader{}, rpcerr.New(rpcerr.INVALID_RESPONSE, "", err.Error())
	}
	return h, nil
}
