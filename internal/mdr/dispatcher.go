package mdr

import (
	"log/slog"
	"time"
)

// requestTimeout is the default deadline for an outstanding application
// request once it has actually been submitted to the link (spec.md §4.3:
// "15 s default"). The source left this unenforced; spec.md §9 adds it for
// robustness.
const requestTimeout = 15 * time.Second

// CorrelationKey is the (opcode, inquiry-type) tuple spec.md §4.3 uses to
// pair requests with replies and to route notifications. Opcode records
// which verb originated the request (GET or SET); correlation itself keys
// on InquiryType alone, since a device's REPLY/REJECT/NOTIFY packets carry
// a reply-family opcode rather than echoing GET/SET back (spec.md §4.3:
// "Notifications use a distinct opcode family but the same inquired-type
// namespace").
type CorrelationKey struct {
	Opcode      Opcode
	InquiryType InquiryType
}

// ReplyKind distinguishes a successful reply from a device-issued rejection
// (spec.md §9's "tagged variant over reply payloads").
type ReplyKind int

const (
	ReplyOK ReplyKind = iota
	ReplyRejected
)

// awaiter is one outstanding call() request.
type awaiter struct {
	key       CorrelationKey
	payload   []byte
	onOK      func([]byte)
	onErr     func(error)
	submitted bool
	deadline  time.Time
}

// Dispatcher multiplexes many logical inquiries over one Link (spec.md
// §4.3). It is driven entirely from the owning Session's goroutine.
type Dispatcher struct {
	link   *Link
	logger *slog.Logger

	// queues holds, per inquiry type, the FIFO of awaiters regardless of
	// whether each was a GET or a SET: spec.md §3 requires "exactly one
	// in-flight Request per correlation key", and a device can no more
	// distinguish a queued GET from a queued SET on the same inquiry type
	// than it can run them concurrently. queues[t][0] is the one actually
	// submitted to the link; later entries wait.
	queues map[InquiryType][]*awaiter

	subscribers map[InquiryType][]func([]byte)

	timeoutTimer *time.Timer
}

// NewDispatcher creates a Dispatcher bound to link. logger may be nil.
func NewDispatcher(link *Link, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	t := time.NewTimer(time.Hour)
	if !t.Stop() {
		<-t.C
	}
	return &Dispatcher{
		link:         link,
		logger:       logger.With(slog.String("component", "dispatcher")),
		queues:       make(map[InquiryType][]*awaiter),
		subscribers:  make(map[InquiryType][]func([]byte)),
		timeoutTimer: t,
	}
}

// TimeoutTimerC returns the channel that fires when the longest-outstanding
// submitted request's deadline elapses.
func (d *Dispatcher) TimeoutTimerC() <-chan time.Time { return d.timeoutTimer.C }

// Call enqueues a request for key. If another request for the same inquiry
// type is already in flight, this one queues FIFO behind it. onOK receives
// the reply body; onErr receives ErrTimeout, ErrLinkLost, ErrReject, or
// ErrPeerGone. Returns an error immediately (with neither callback invoked)
// only if payload cannot be framed at all (spec.md §4.3).
func (d *Dispatcher) Call(key CorrelationKey, payload []byte, onOK func([]byte), onErr func(error)) error {
	if len(payload) > MaxPayloadSize-2 {
		return ErrPayloadTooLarge
	}
	aw := &awaiter{key: key, payload: payload, onOK: onOK, onErr: onErr}
	q := d.queues[key.InquiryType]
	d.queues[key.InquiryType] = append(q, aw)
	if len(q) == 0 {
		d.submit(aw)
	}
	return nil
}

// submit actually frames and hands aw's payload to the link, starting its
// timeout.
func (d *Dispatcher) submit(aw *awaiter) {
	wire := make([]byte, 0, 2+len(aw.payload))
	wire = append(wire, byte(aw.key.Opcode), byte(aw.key.InquiryType))
	wire = append(wire, aw.payload...)

	aw.submitted = true
	aw.deadline = time.Now().Add(requestTimeout)
	d.rearmTimeoutTimer()

	d.link.Submit(wire, func(err error) {
		if err != nil {
			// The link itself gave up (ErrLinkLost) or the stream died
			// (ErrPeerGone) before any reply arrived.
			d.completeHead(aw.key.InquiryType, err)
		}
		// On success (err == nil) we wait for the matching REPLY/REJECT
		// packet rather than completing here: the ACK only confirms wire
		// delivery, not that the device has processed the request.
	})
}

// HandleInbound parses a delivered application payload and routes it to
// either the oldest in-flight awaiter for its inquiry type (REPLY/REJECT)
// or the subscriber for its inquiry type (NOTIFY). Packets matching
// neither are logged and discarded (spec.md §4.3 correlation rule).
func (d *Dispatcher) HandleInbound(payload []byte) {
	if len(payload) < 2 {
		d.logger.Debug("dropping short application payload")
		return
	}
	opcode := Opcode(payload[0])
	inquiryType := InquiryType(payload[1])
	body := payload[2:]

	switch opcode {
	case OpcodeReply:
		d.deliverReply(inquiryType, ReplyOK, body)
	case OpcodeReject:
		d.deliverReply(inquiryType, ReplyRejected, body)
	case OpcodeNotify:
		handlers := d.subscribers[inquiryType]
		if len(handlers) == 0 {
			d.logger.Debug("notify with no subscriber", slog.String("type", inquiryType.String()))
			return
		}
		for _, h := range handlers {
			h(body)
		}
	default:
		d.logger.Debug("unsolicited packet with no awaiter or subscriber",
			slog.String("opcode", opcode.String()), slog.String("type", inquiryType.String()))
	}
}

func (d *Dispatcher) deliverReply(inquiryType InquiryType, kind ReplyKind, body []byte) {
	q := d.queues[inquiryType]
	if len(q) == 0 {
		d.logger.Debug("reply with no awaiter", slog.String("type", inquiryType.String()))
		return
	}
	aw := q[0]
	if kind == ReplyRejected {
		d.finishAwaiter(aw, nil, ErrReject)
	} else {
		d.finishAwaiter(aw, body, nil)
	}
	d.advance(inquiryType)
}

// completeHead fails queues[inquiryType][0] (used when the link itself
// reports LinkLost/PeerGone before any reply arrives).
func (d *Dispatcher) completeHead(inquiryType InquiryType, err error) {
	q := d.queues[inquiryType]
	if len(q) == 0 {
		return
	}
	d.finishAwaiter(q[0], nil, err)
	d.advance(inquiryType)
}

func (d *Dispatcher) finishAwaiter(aw *awaiter, body []byte, err error) {
	if err != nil {
		if aw.onErr != nil {
			aw.onErr(err)
		}
		return
	}
	if aw.onOK != nil {
		aw.onOK(body)
	}
}

// advance pops the completed head for inquiryType and submits the next
// queued awaiter, if any.
func (d *Dispatcher) advance(inquiryType InquiryType) {
	q := d.queues[inquiryType]
	if len(q) == 0 {
		return
	}
	q = q[1:]
	if len(q) == 0 {
		delete(d.queues, inquiryType)
		return
	}
	d.queues[inquiryType] = q
	d.submit(q[0])
}

// Subscribe registers handler for unsolicited notifications of inquiryType.
// Multiple handlers may share one inquiry type: on a combined device a single
// wire inquiry type (e.g. NC_AND_ASM) carries state for more than one
// capability surface, and each surface's own decoder needs to see every push
// (spec.md §4.5's combined-device rule). All registered handlers for a type
// run, in registration order, on every matching notification.
func (d *Dispatcher) Subscribe(inquiryType InquiryType, handler func([]byte)) {
	d.subscribers[inquiryType] = append(d.subscribers[inquiryType], handler)
}

// OnLinkDown fails every queued or in-flight request with ErrPeerGone and
// detaches every subscriber (spec.md §4.3).
func (d *Dispatcher) OnLinkDown() {
	for inquiryType, q := range d.queues {
		for _, aw := range q {
			if aw.onErr != nil {
				aw.onErr(ErrPeerGone)
			}
		}
		delete(d.queues, inquiryType)
	}
	d.subscribers = make(map[InquiryType][]func([]byte))
	d.stopTimeoutTimer()
}

// HandleTimeoutTimer fails every submitted awaiter whose deadline has
// elapsed, then rearms the timer for the next deadline (if any).
func (d *Dispatcher) HandleTimeoutTimer() {
	now := time.Now()
	for inquiryType, q := range d.queues {
		if len(q) == 0 || !q[0].submitted {
			continue
		}
		if now.Before(q[0].deadline) {
			continue
		}
		d.finishAwaiter(q[0], nil, ErrTimeout)
		d.advance(inquiryType)
	}
	d.rearmTimeoutTimer()
}

// rearmTimeoutTimer resets the timeout timer to fire at the earliest
// deadline among all submitted awaiters, or leaves it stopped if none are
// outstanding.
func (d *Dispatcher) rearmTimeoutTimer() {
	d.stopTimeoutTimer()
	var next time.Time
	for _, q := range d.queues {
		if len(q) == 0 || !q[0].submitted {
			continue
		}
		if next.IsZero() || q[0].deadline.Before(next) {
			next = q[0].deadline
		}
	}
	if next.IsZero() {
		return
	}
	wait := time.Until(next)
	if wait < 0 {
		wait = 0
	}
	d.timeoutTimer.Reset(wait)
}

func (d *Dispatcher) stopTimeoutTimer() {
	if !d.timeoutTimer.Stop() {
		select {
		case <-d.timeoutTimer.C:
		default:
		}
	}
}
