package mdr

import (
	"encoding/binary"
	"fmt"
)

// Frame is a decoded on-wire MDR packet (spec.md §3, §4.1):
//
//	START(1) | KIND(1) | SEQ(1) | LEN_BE(4) | PAYLOAD(LEN) | CHECKSUM(1) | END(1)
//
// Bytes equal to START, END, or the escape byte inside KIND..CHECKSUM are
// escaped on write and un-escaped on read. CHECKSUM is the 8-bit sum of
// KIND|SEQ|LEN|PAYLOAD modulo 256.
type Frame struct {
	Kind    FrameKind
	Seq     byte
	Payload []byte
}

// MaxPayloadSize bounds a single frame's payload (spec.md §8: "For every
// byte string b with len(b) <= 65535").
const MaxPayloadSize = 65535

// encode serialises kind, seq, and payload into wire bytes, escaping any
// START/END/ESCAPE byte found from KIND through CHECKSUM inclusive.
// encode is a pure function: same inputs always produce the same bytes.
func encode(kind FrameKind, seq byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}

	body := make([]byte, 0, 6+len(payload))
	body = append(body, byte(kind), seq)

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	body = append(body, lenBuf[:]...)
	body = append(body, payload...)

	checksum := checksumOf(body)
	body = append(body, checksum)

	out := make([]byte, 0, len(body)+4)
	out = append(out, frameStart)
	for _, b := range body {
		out = append(out, escapeByte(b)...)
	}
	out = append(out, frameEnd)
	return out, nil
}

// checksumOf computes the 8-bit sum of KIND|SEQ|LEN|PAYLOAD modulo 256.
func checksumOf(body []byte) byte {
	var sum byte
	for _, b := range body {
		sum += b
	}
	return sum
}

// escapeByte returns b unchanged, or the two-byte escape sequence if b
// collides with START, END, or the escape byte itself.
func escapeByte(b byte) []byte {
	switch b {
	case frameStart, frameEnd, frameEscape:
		return []byte{frameEscape, b ^ 0xFF}
	default:
		return []byte{b}
	}
}

// decoder is a pull parser over an inbound byte buffer: it either yields a
// decoded Frame, reports ErrNeedMore, or reports ErrBadFrame (which the
// caller recovers from by resyncing to the next START byte).
type decoder struct {
	buf []byte
}

// ErrNeedMore indicates the buffer does not yet contain a complete frame.
// Not a taxonomy error (spec.md §7): it is an internal control-flow signal
// consumed entirely within the link layer.
var ErrNeedMore = fmt.Errorf("mdr: need more bytes")

// feed appends newly read bytes to the decoder's internal buffer.
func (d *decoder) feed(b []byte) {
	d.buf = append(d.buf, b...)
}

// next attempts to decode one frame from the front of the buffer. On
// success it returns the frame and advances past the consumed bytes. On
// ErrNeedMore the buffer is left untouched. On ErrBadFrame the decoder has
// already resynced past the offending START marker; callers should call
// next again immediately to see whether a further frame is available.
func (d *decoder) next() (Frame, error) {
	start := indexByte(d.buf, frameStart)
	if start < 0 {
		d.buf = d.buf[:0]
		return Frame{}, ErrNeedMore
	}
	if start > 0 {
		// Drop garbage that preceded the marker.
		d.buf = d.buf[start:]
	}

	// Un-escape and find END, scanning from just after START.
	unescaped := make([]byte, 0, len(d.buf))
	i := 1
	endFound := false
	for i < len(d.buf) {
		b := d.buf[i]
		if b == frameEnd {
			endFound = true
			i++
			break
		}
		if b == frameEscape {
			if i+1 >= len(d.buf) {
				return Frame{}, ErrNeedMore
			}
			unescaped = append(unescaped, d.buf[i+1]^0xFF)
			i += 2
			continue
		}
		if b == frameStart {
			// A second START before any END: the first frame was truncated
			// or corrupt. Resync to this new START and report BadFrame.
			d.buf = d.buf[i:]
			return Frame{}, fmt.Errorf("%w: unexpected START before END", ErrBadFrame)
		}
		unescaped = append(unescaped, b)
		i++
	}
	if !endFound {
		return Frame{}, ErrNeedMore
	}

	consumed := i
	body := unescaped
	if len(body) < 7 { // KIND(1)+SEQ(1)+LEN(4)+CHECKSUM(1)
		d.buf = d.buf[consumed:]
		return Frame{}, fmt.Errorf("%w: truncated header", ErrBadFrame)
	}

	kind := FrameKind(body[0])
	seq := body[1]
	length := binary.BigEndian.Uint32(body[2:6])
	payload := body[6 : len(body)-1]
	checksum := body[len(body)-1]

	if uint32(len(payload)) != length {
		d.buf = d.buf[consumed:]
		return Frame{}, fmt.Errorf("%w: length mismatch (want %d, got %d)", ErrBadFrame, length, len(payload))
	}
	if checksumOf(body[:len(body)-1]) != checksum {
		d.buf = d.buf[consumed:]
		return Frame{}, fmt.Errorf("%w: checksum mismatch", ErrBadFrame)
	}

	d.buf = d.buf[consumed:]
	return Frame{Kind: kind, Seq: seq, Payload: append([]byte(nil), payload...)}, nil
}

func indexByte(buf []byte, b byte) int {
	for i, c := range buf {
		if c == b {
			return i
		}
	}
	return -1
}
