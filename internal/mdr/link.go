package mdr

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// Stream is the full-duplex byte stream the link layer owns. In production
// this wraps the RFCOMM file descriptor handed to the daemon by
// NewConnection (spec.md §6); in tests it is an in-memory pipe.
type Stream interface {
	io.Reader
	io.Writer
	io.Closer
}

// initialRTO is the first retransmission timeout (spec.md §4.2).
const initialRTO = 1 * time.Second

// maxRTO caps the doubled retransmission timeout.
const maxRTO = 4 * time.Second

// maxRetries is the number of retransmissions attempted after the initial
// send before the link gives up with ErrLinkLost.
const maxRetries = 3

// readBufSize is the chunk size used for each Stream.Read call.
const readBufSize = 4096

// frameOrErr is what the reader goroutine posts to the link's frame
// channel: either a successfully decoded frame or a terminal read error.
type frameOrErr struct {
	frame Frame
	err   error
}

// pendingSend describes the single outstanding outbound DATA frame.
type pendingSend struct {
	seq      byte
	payload  []byte
	retries  int
	onDone   func(error)
}

// LinkMetrics receives link-layer observability events. A nil LinkMetrics
// is never passed to Link; callers use noopLinkMetrics instead.
type LinkMetrics interface {
	FrameSent(kind FrameKind)
	FrameReceived(kind FrameKind)
	FrameDropped(reason string)
	Retransmit()
	LinkLost()
}

type noopLinkMetrics struct{}

func (noopLinkMetrics) FrameSent(FrameKind)  {}
func (noopLinkMetrics) FrameReceived(FrameKind) {}
func (noopLinkMetrics) FrameDropped(string)  {}
func (noopLinkMetrics) Retransmit()          {}
func (noopLinkMetrics) LinkLost()            {}

// Link owns the byte stream and the single-bit sequence number in each
// direction (spec.md §4.2). It is driven entirely from the owning Session's
// goroutine: every exported method except the internal read pump must be
// called from that single goroutine. The only additional goroutine Link
// starts is the blocking read pump, which turns Stream.Read into channel
// sends so the Session's select loop can multiplex it against timers.
type Link struct {
	stream  Stream
	logger  *slog.Logger
	metrics LinkMetrics

	dec Decoder

	frameCh chan frameOrErr

	seqOut byte
	queue  []pendingSend // FIFO of outbound sends; queue[0] is in flight

	retryTimer *time.Timer

	haveLastRecvSeq bool
	lastRecvSeq     byte

	closed bool
}

// Decoder is the pull-parser contract frame.go implements; declared here so
// tests can substitute a fake for fault injection.
type Decoder interface {
	feed(b []byte)
	next() (Frame, error)
}

// NewLink wraps stream and starts its read pump. logger and metrics may be
// nil; metrics defaults to a no-op implementation.
func NewLink(stream Stream, logger *slog.Logger, metrics LinkMetrics) *Link {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = noopLinkMetrics{}
	}
	l := &Link{
		stream:     stream,
		logger:     logger.With(slog.String("component", "link")),
		metrics:    metrics,
		dec:        &decoder{},
		frameCh:    make(chan frameOrErr, 32),
		retryTimer: time.NewTimer(time.Hour),
	}
	if !l.retryTimer.Stop() {
		<-l.retryTimer.C
	}
	go l.readPump()
	return l
}

// Frames returns the channel the Session's select loop reads decoded frames
// (or the terminal read error) from.
func (l *Link) Frames() <-chan frameOrErr { return l.frameCh }

// RetryTimerC returns the channel that fires when the in-flight DATA frame
// is due for retransmission or abandonment.
func (l *Link) RetryTimerC() <-chan time.Time { return l.retryTimer.C }

// readPump reads raw bytes and decodes frames until the stream errors.
// BadFrame errors are logged and do not terminate the pump: the decoder has
// already resynced to the next START marker.
func (l *Link) readPump() {
	buf := make([]byte, readBufSize)
	for {
		n, err := l.stream.Read(buf)
		if n > 0 {
			l.dec.feed(buf[:n])
			for {
				f, ferr := l.dec.next()
				if ferr == nil {
					l.frameCh <- frameOrErr{frame: f}
					continue
				}
				if errors.Is(ferr, ErrNeedMore) {
					break
				}
				// ErrBadFrame: already resynced inside the decoder; log
				// and keep draining in case more frames follow in the
				// same read.
				l.logger.Debug("dropping malformed frame", slog.String("err", ferr.Error()))
				l.metrics.FrameDropped("bad_frame")
				continue
			}
		}
		if err != nil {
			l.frameCh <- frameOrErr{err: err}
			close(l.frameCh)
			return
		}
	}
}

// Submit enqueues payload for transmission as a DATA frame. If no frame is
// currently in flight, it is written immediately and the retry timer
// starts. Otherwise it queues FIFO behind the in-flight frame(s). onDone is
// invoked exactly once, from the Session goroutine, with nil on ACK or
// ErrLinkLost once the retry budget is exhausted.
func (l *Link) Submit(payload []byte, onDone func(error)) {
	if l.closed {
		onDone(ErrPeerGone)
		return
	}
	ps := pendingSend{payload: payload, onDone: onDone}
	l.queue = append(l.queue, ps)
	if len(l.queue) == 1 {
		l.startHead()
	}
}

// startHead transmits queue[0] for the first time, assigning it the
// current outbound sequence bit.
func (l *Link) startHead() {
	l.queue[0].seq = l.seqOut
	l.writeAndArm(l.queue[0])
}

// writeAndArm writes ps.payload as a DATA frame using ps.seq and (re)arms
// the retry timer at the RTO for ps.retries.
func (l *Link) writeAndArm(ps pendingSend) {
	wire, err := encode(KindDataMDR, ps.seq, ps.payload)
	if err != nil {
		l.completeHead(err)
		return
	}
	if _, werr := l.stream.Write(wire); werr != nil {
		l.completeHead(fmt.Errorf("%w: %v", ErrLinkLost, werr))
		return
	}
	l.metrics.FrameSent(KindDataMDR)
	l.resetRetryTimer(nextRTO(ps.retries))
}

// nextRTO implements the 1s/2s/4s(capped) retransmission ladder.
func nextRTO(attempt int) time.Duration {
	d := initialRTO
	for i := 0; i < attempt; i++ {
		d *= 2
		if d > maxRTO {
			d = maxRTO
			break
		}
	}
	return d
}

func (l *Link) resetRetryTimer(d time.Duration) {
	if !l.retryTimer.Stop() {
		select {
		case <-l.retryTimer.C:
		default:
		}
	}
	l.retryTimer.Reset(d)
}

func (l *Link) stopRetryTimer() {
	if !l.retryTimer.Stop() {
		select {
		case <-l.retryTimer.C:
		default:
		}
	}
}

// HandleRetryTimer is called by the Session when RetryTimerC fires. It
// retransmits the in-flight frame, or fails it with ErrLinkLost once
// maxRetries has been exhausted (spec.md §8: "at most 4 times").
func (l *Link) HandleRetryTimer() {
	if len(l.queue) == 0 {
		return
	}
	head := &l.queue[0]
	if head.retries >= maxRetries {
		l.metrics.LinkLost()
		l.completeHead(ErrLinkLost)
		l.reportFatal(ErrLinkLost)
		return
	}
	head.retries++
	l.metrics.Retransmit()
	l.writeAndArm(*head)
}

// reportFatal surfaces a link-fatal error (spec.md §7: LinkLost is "fatal
// to a session") to the Session's Run loop over the same channel a read
// error would use, so retry-budget exhaustion tears the session down
// exactly like a dead socket would.
func (l *Link) reportFatal(err error) {
	if l.closed {
		return
	}
	select {
	case l.frameCh <- frameOrErr{err: err}:
	default:
	}
}

// completeHead finalises queue[0] with err, then advances to the next
// queued send (if any), assigning it the (possibly toggled) sequence bit.
func (l *Link) completeHead(err error) {
	if len(l.queue) == 0 {
		return
	}
	done := l.queue[0].onDone
	l.queue = l.queue[1:]
	l.stopRetryTimer()
	if err == nil {
		// Successful ACK: toggle the outbound sequence bit only now.
		l.seqOut ^= 1
	}
	if done != nil {
		done(err)
	}
	if len(l.queue) > 0 {
		l.startHead()
	}
}

// HandleFrame processes one frame read from Frames(). It returns the
// payload to deliver upstream (nil if none: an ACK, a duplicate DATA frame,
// or a frame with no deliverable payload).
func (l *Link) HandleFrame(f Frame) []byte {
	l.metrics.FrameReceived(f.Kind)

	switch {
	case f.Kind == KindACK:
		l.handleAck(f.Seq)
		return nil

	case f.Kind.IsData():
		return l.handleData(f)

	default:
		l.metrics.FrameDropped("unknown_kind")
		return nil
	}
}

func (l *Link) handleAck(seq byte) {
	if len(l.queue) == 0 {
		return
	}
	if l.queue[0].seq != seq {
		// ACK for a stale/foreign sequence: ignore (spec.md §4.2 implies
		// exactly one in-flight frame, so this should not happen in a
		// conformant peer).
		return
	}
	l.completeHead(nil)
}

// handleData answers every received DATA frame with an ACK before any
// further DATA is transmitted (spec.md §4.2), then returns the payload to
// the caller unless it is a duplicate of the last delivered sequence.
func (l *Link) handleData(f Frame) []byte {
	ackWire, err := encode(KindACK, f.Seq, nil)
	if err != nil {
		l.logger.Error("failed to encode ack", slog.String("err", err.Error()))
		return nil
	}
	if _, err := l.stream.Write(ackWire); err != nil {
		l.logger.Debug("failed to write ack", slog.String("err", err.Error()))
	} else {
		l.metrics.FrameSent(KindACK)
	}

	if l.haveLastRecvSeq && f.Seq == l.lastRecvSeq {
		// Peer retransmit of an already-delivered frame: re-ACK (above),
		// drop the payload.
		l.metrics.FrameDropped("duplicate")
		return nil
	}
	l.haveLastRecvSeq = true
	l.lastRecvSeq = f.Seq
	return f.Payload
}

// OnLinkDown fails every queued send with ErrPeerGone and stops accepting
// new submissions. Called once, when the Session transitions to Draining.
func (l *Link) OnLinkDown() {
	l.closed = true
	l.stopRetryTimer()
	pending := l.queue
	l.queue = nil
	for _, ps := range pending {
		if ps.onDone != nil {
			ps.onDone(ErrPeerGone)
		}
	}
}

// Close closes the underlying stream. The read pump's next Read returns an
// error, which the Session observes via Frames().
func (l *Link) Close() error {
	return l.stream.Close()
}
