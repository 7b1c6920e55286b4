package protocol

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// WriteFrame CBOR-encodes v and writes it to w as a 4-byte big-endian
// length prefix followed by the payload (§4.7 wire format).
func WriteFrame(w io.Writer, v any) error {
	payload, err := cbor.Marshal(v)
	if err != nil {
		return fmt.Errorf("protocol: encode frame: %w", err)
	}
	if len(payload) > MaxMessageBytes {
		return fmt.Errorf("protocol: frame of %d bytes exceeds %d byte limit", len(payload), MaxMessageBytes)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("protocol: write frame length: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("protocol: write frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed CBOR frame from r and decodes it
// into v.
func ReadFrame(r io.Reader, v any) error {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return fmt.Errorf("protocol: read frame length: %w", err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxMessageBytes {
		return fmt.Errorf("protocol: frame of %d bytes exceeds %d byte limit", n, MaxMessageBytes)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return fmt.Errorf("protocol: read frame payload: %w", err)
	}
	if err := cbor.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("protocol: decode frame: %w", err)
	}
	return nil
}
