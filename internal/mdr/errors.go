package mdr

import "errors"

// Sentinel errors for the mdr package. These form the taxonomy of
// spec.md §7: BadFrame is recoverable at the link layer, LinkLost is fatal
// to a session, PeerGone is user-visible, Timeout/InvalidValue/Reject/
// AllocFailure surface to the bus caller.
var (
	// ErrBadFrame indicates a malformed frame was read from the wire.
	// Recoverable: the link layer drops the bytes and resyncs to the next
	// START marker.
	ErrBadFrame = errors.New("mdr: malformed frame")

	// ErrLinkLost indicates the retransmission budget was exhausted without
	// receiving an ACK. Fatal to the session; triggers Draining.
	ErrLinkLost = errors.New("mdr: link lost")

	// ErrPeerGone indicates the session has been torn down. Every pending
	// request fails with this error; every subscriber is detached.
	ErrPeerGone = errors.New("mdr: peer gone")

	// ErrTimeout indicates an application request did not receive a reply
	// within its deadline.
	ErrTimeout = errors.New("mdr: request timeout")

	// ErrInvalidValue indicates a client-supplied argument failed local
	// validation before any wire traffic was generated.
	ErrInvalidValue = errors.New("mdr: invalid value")

	// ErrReject indicates the device replied with a reject packet.
	ErrReject = errors.New("mdr: device rejected request")

	// ErrAllocFailure indicates resources could not be allocated for a new
	// session or a new outstanding request.
	ErrAllocFailure = errors.New("mdr: allocation failure")

	// ErrSessionNotFound indicates no session exists for the given device id.
	ErrSessionNotFound = errors.New("mdr: session not found")

	// ErrDuplicateSession indicates a session already exists for the given
	// device id.
	ErrDuplicateSession = errors.New("mdr: duplicate session for device")

	// ErrPayloadTooLarge indicates a request payload exceeds the maximum
	// frame length and cannot be framed at all.
	ErrPayloadTooLarge = errors.New("mdr: payload exceeds maximum frame size")

	// ErrUnknownCapability indicates a request referenced a capability the
	// device's registry does not advertise.
	ErrUnknownCapability = errors.New("mdr: capability not supported by device")
)
