package mdr

import (
	"errors"
	"net"
	"sync"
	"testing"
	"testing/synctest"
	"time"
)

// -------------------------------------------------------------------------
// Test Helpers
// -------------------------------------------------------------------------

// recordingLinkMetrics captures every LinkMetrics call for assertion.
type recordingLinkMetrics struct {
	mu           sync.Mutex
	sent         []FrameKind
	received     []FrameKind
	dropped      []string
	retransmits  int
	linksLost    int
}

func (r *recordingLinkMetrics) FrameSent(kind FrameKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, kind)
}

func (r *recordingLinkMetrics) FrameReceived(kind FrameKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.received = append(r.received, kind)
}

func (r *recordingLinkMetrics) FrameDropped(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped = append(r.dropped, reason)
}

func (r *recordingLinkMetrics) Retransmit() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retransmits++
}

func (r *recordingLinkMetrics) LinkLost() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.linksLost++
}

func (r *recordingLinkMetrics) retransmitCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.retransmits
}

func (r *recordingLinkMetrics) linkLostCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.linksLost
}

// newTestLink returns a Link wrapping one end of an in-memory pipe, and the
// peer's raw net.Conn for injecting/observing wire bytes directly.
func newTestLink(t *testing.T) (*Link, net.Conn, *recordingLinkMetrics) {
	t.Helper()
	local, peer := net.Pipe()
	metrics := &recordingLinkMetrics{}
	l := NewLink(local, nil, metrics)
	t.Cleanup(func() { _ = l.Close() })
	return l, peer, metrics
}

// readFrame reads and decodes exactly one frame from conn.
func readFrame(t *testing.T, conn net.Conn) Frame {
	t.Helper()
	d := &decoder{}
	buf := make([]byte, 256)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			t.Fatalf("read frame: %v", err)
		}
		d.feed(buf[:n])
		f, err := d.next()
		if err == nil {
			return f
		}
		if !errors.Is(err, ErrNeedMore) {
			t.Fatalf("decode frame: %v", err)
		}
	}
}

func writeFrame(t *testing.T, conn net.Conn, kind FrameKind, seq byte, payload []byte) {
	t.Helper()
	wire, err := encode(kind, seq, payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := conn.Write(wire); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

// -------------------------------------------------------------------------
// TestLinkSubmitAndAck
// -------------------------------------------------------------------------

func TestLinkSubmitCompletesOnAck(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		l, peer, metrics := newTestLink(t)
		defer peer.Close()

		var doneErr error
		done := make(chan struct{})
		l.Submit([]byte("hello"), func(err error) {
			doneErr = err
			close(done)
		})

		f := readFrame(t, peer)
		if f.Kind != KindDataMDR {
			t.Fatalf("Kind = %v, want KindDataMDR", f.Kind)
		}
		if string(f.Payload) != "hello" {
			t.Fatalf("Payload = %q, want %q", f.Payload, "hello")
		}

		writeFrame(t, peer, KindACK, f.Seq, nil)

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("onDone never called")
		}
		if doneErr != nil {
			t.Fatalf("onDone err = %v, want nil", doneErr)
		}
		if got := len(metrics.sent); got != 1 {
			t.Errorf("FrameSent calls = %d, want 1", got)
		}
	})
}

func TestLinkSubmitQueuesFIFOBehindInFlight(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		l, peer, _ := newTestLink(t)
		defer peer.Close()

		var order []string
		var mu sync.Mutex
		record := func(name string) func(error) {
			return func(error) {
				mu.Lock()
				order = append(order, name)
				mu.Unlock()
			}
		}

		l.Submit([]byte("first"), record("first"))
		l.Submit([]byte("second"), record("second"))

		f1 := readFrame(t, peer)
		if string(f1.Payload) != "first" {
			t.Fatalf("first wire payload = %q, want %q", f1.Payload, "first")
		}
		writeFrame(t, peer, KindACK, f1.Seq, nil)

		f2 := readFrame(t, peer)
		if string(f2.Payload) != "second" {
			t.Fatalf("second wire payload = %q, want %q", f2.Payload, "second")
		}
		if f2.Seq == f1.Seq {
			t.Errorf("second frame reused seq %d, want toggled", f2.Seq)
		}
		writeFrame(t, peer, KindACK, f2.Seq, nil)

		synctest.Wait()
		mu.Lock()
		defer mu.Unlock()
		if len(order) != 2 || order[0] != "first" || order[1] != "second" {
			t.Errorf("completion order = %v, want [first second]", order)
		}
	})
}

// -------------------------------------------------------------------------
// TestLinkRetransmission
// -------------------------------------------------------------------------

func TestLinkRetransmitsOnTimeout(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		l, peer, metrics := newTestLink(t)
		defer peer.Close()

		l.Submit([]byte("x"), func(error) {})
		first := readFrame(t, peer)

		// Drive the retry timer ourselves: the Session normally does this,
		// but the Link's timer channel is exported for exactly that.
		go func() {
			for {
				select {
				case <-l.RetryTimerC():
					l.HandleRetryTimer()
				}
			}
		}()

		time.Sleep(initialRTO + 100*time.Millisecond)
		retransmitted := readFrame(t, peer)
		if retransmitted.Seq != first.Seq {
			t.Errorf("retransmit Seq = %d, want %d (same as original)", retransmitted.Seq, first.Seq)
		}
		synctest.Wait()
		if got := metrics.retransmitCount(); got != 1 {
			t.Errorf("retransmit count = %d, want 1", got)
		}
	})
}

func TestLinkGivesUpAfterMaxRetries(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		l, peer, metrics := newTestLink(t)
		defer peer.Close()

		var doneErr error
		done := make(chan struct{})
		l.Submit([]byte("x"), func(err error) {
			doneErr = err
			close(done)
		})
		readFrame(t, peer) // initial send

		go func() {
			for range l.RetryTimerC() {
				l.HandleRetryTimer()
			}
		}()

		// Drain every retransmission the peer receives without ever ACKing.
		go func() {
			for i := 0; i < maxRetries; i++ {
				readFrame(t, peer)
			}
		}()

		synctest.Wait()
		select {
		case <-done:
		default:
			t.Fatal("onDone not yet called after draining retries")
		}
		if !errors.Is(doneErr, ErrLinkLost) {
			t.Errorf("onDone err = %v, want ErrLinkLost", doneErr)
		}
		if got := metrics.linkLostCount(); got != 1 {
			t.Errorf("LinkLost calls = %d, want 1", got)
		}
	})
}

// -------------------------------------------------------------------------
// TestLinkHandleFrame
// -------------------------------------------------------------------------

func TestLinkHandleDataAcksAndDeliversPayload(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		l, peer, _ := newTestLink(t)
		defer peer.Close()

		inbound, err := encode(KindDataMDR, 0, []byte("inbound"))
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		go func() {
			if _, werr := peer.Write(inbound); werr != nil {
				t.Errorf("write inbound: %v", werr)
			}
		}()

		fe := <-l.Frames()
		if fe.err != nil {
			t.Fatalf("Frames() err: %v", fe.err)
		}
		payload := l.HandleFrame(fe.frame)
		if string(payload) != "inbound" {
			t.Fatalf("payload = %q, want %q", payload, "inbound")
		}

		ack := readFrame(t, peer)
		if ack.Kind != KindACK || ack.Seq != 0 {
			t.Errorf("ack = %+v, want Kind=ACK Seq=0", ack)
		}
	})
}

func TestLinkHandleDataDropsDuplicate(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		l, peer, metrics := newTestLink(t)
		defer peer.Close()

		send := func(seq byte) []byte {
			wire, err := encode(KindDataMDR, seq, []byte("p"))
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			go func() {
				if _, werr := peer.Write(wire); werr != nil {
					t.Errorf("write: %v", werr)
				}
			}()
			fe := <-l.Frames()
			if fe.err != nil {
				t.Fatalf("Frames() err: %v", fe.err)
			}
			payload := l.HandleFrame(fe.frame)
			readFrame(t, peer) // consume the ACK Link sends back
			return payload
		}

		if payload := send(0); string(payload) != "p" {
			t.Fatalf("first delivery = %q, want %q", payload, "p")
		}
		if payload := send(0); payload != nil {
			t.Fatalf("duplicate delivery = %q, want nil", payload)
		}

		synctest.Wait()
		metrics.mu.Lock()
		defer metrics.mu.Unlock()
		found := false
		for _, reason := range metrics.dropped {
			if reason == "duplicate" {
				found = true
			}
		}
		if !found {
			t.Errorf("dropped reasons = %v, want to contain %q", metrics.dropped, "duplicate")
		}
	})
}

func TestLinkHandleAckForStaleSeqIgnored(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		l, peer, _ := newTestLink(t)
		defer peer.Close()

		called := false
		l.Submit([]byte("x"), func(error) { called = true })
		f := readFrame(t, peer)
		staleSeq := f.Seq ^ 1

		writeFrame(t, peer, KindACK, staleSeq, nil)
		synctest.Wait()
		if called {
			t.Error("onDone called for ACK with mismatched seq")
		}

		writeFrame(t, peer, KindACK, f.Seq, nil)
		synctest.Wait()
		if !called {
			t.Error("onDone never called after matching ACK")
		}
	})
}

// -------------------------------------------------------------------------
// TestLinkOnLinkDown
// -------------------------------------------------------------------------

func TestLinkOnLinkDownFailsQueuedSends(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		l, peer, _ := newTestLink(t)
		defer peer.Close()

		var firstErr, secondErr error
		l.Submit([]byte("a"), func(err error) { firstErr = err })
		l.Submit([]byte("b"), func(err error) { secondErr = err })
		readFrame(t, peer) // drain the in-flight send so OnLinkDown has a queue to fail

		l.OnLinkDown()

		if !errors.Is(firstErr, ErrPeerGone) {
			t.Errorf("firstErr = %v, want ErrPeerGone", firstErr)
		}
		if !errors.Is(secondErr, ErrPeerGone) {
			t.Errorf("secondErr = %v, want ErrPeerGone", secondErr)
		}

		called := false
		l.Submit([]byte("c"), func(err error) {
			called = true
			if !errors.Is(err, ErrPeerGone) {
				t.Errorf("post-close submit err = %v, want ErrPeerGone", err)
			}
		})
		if !called {
			t.Error("Submit after OnLinkDown must call onDone synchronously")
		}
	})
}

// -------------------------------------------------------------------------
// TestNextRTO
// -------------------------------------------------------------------------

func TestNextRTOLadder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 4 * time.Second}, // capped at maxRTO
		{10, 4 * time.Second},
	}
	for _, tt := range tests {
		if got := nextRTO(tt.attempt); got != tt.want {
			t.Errorf("nextRTO(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
