// Package mdr implements the Sony MDR application-layer protocol carried
// over an already-connected RFCOMM byte stream.
//
// This is the core of the daemon: the frame codec (wire framing, escaping,
// checksum), the link layer (ack/retransmit over a single-bit sequence
// number per direction), the command dispatcher (request/reply correlation
// and notification fan-out), the capability registry (handshake-discovered
// function set), the capability surfaces (one small state machine per
// exposed capability), and the per-device session supervisor that ties them
// together and the process-wide device table that owns every session.
//
// The package runs one goroutine per Session. All mutable session state is
// owned by that goroutine; external readers use atomically-stored snapshot
// fields only, the same discipline gobfd's bfd.Session uses for its FSM
// state.
package mdr
