package mdr

import (
	"errors"
	"net"
	"sync"
	"testing"
	"testing/synctest"
)

// newTestDispatcher wires a Dispatcher to a Link over an in-memory pipe,
// returning the peer end for injecting wire frames.
func newTestDispatcher(t *testing.T) (*Dispatcher, net.Conn) {
	t.Helper()
	local, peer := net.Pipe()
	link := NewLink(local, nil, nil)
	t.Cleanup(func() { _ = link.Close() })
	d := NewDispatcher(link, nil)
	return d, peer
}

// drainSubmittedRequest reads the wire DATA frame the dispatcher just
// submitted to the link and ACKs it, mirroring what a real peer does
// immediately on receipt.
func drainSubmittedRequest(t *testing.T, peer net.Conn) Frame {
	t.Helper()
	f := readFrame(t, peer)
	writeFrame(t, peer, KindACK, f.Seq, nil)
	return f
}

func TestDispatcherCallReceivesReply(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		d, peer := newTestDispatcher(t)
		defer peer.Close()

		var gotBody []byte
		var gotErr error
		done := make(chan struct{})
		err := d.Call(CorrelationKey{Opcode: OpcodeGet, InquiryType: InquiryBattery},
			nil,
			func(body []byte) { gotBody = body; close(done) },
			func(err error) { gotErr = err; close(done) },
		)
		if err != nil {
			t.Fatalf("Call: %v", err)
		}

		f := drainSubmittedRequest(t, peer)
		// Application payload begins with opcode+inquiryType.
		if Opcode(f.Payload[0]) != OpcodeGet || InquiryType(f.Payload[1]) != InquiryBattery {
			t.Fatalf("submitted payload header = % X, want GET/BATTERY", f.Payload[:2])
		}

		// Deliver the application payload as Session would after HandleFrame
		// extracts it from an inbound DATA frame.
		d.HandleInbound(append([]byte{byte(OpcodeReply), byte(InquiryBattery)}, 0x42))

		<-done
		if gotErr != nil {
			t.Fatalf("gotErr = %v, want nil", gotErr)
		}
		if len(gotBody) != 1 || gotBody[0] != 0x42 {
			t.Errorf("gotBody = % X, want [42]", gotBody)
		}
	})
}

func TestDispatcherQueuesSameInquiryTypeFIFO(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		d, peer := newTestDispatcher(t)
		defer peer.Close()

		var order []string
		var mu sync.Mutex
		record := func(name string) func([]byte) {
			return func([]byte) {
				mu.Lock()
				order = append(order, name)
				mu.Unlock()
			}
		}

		if err := d.Call(CorrelationKey{OpcodeGet, InquiryBattery}, nil, record("first"), func(error) {}); err != nil {
			t.Fatalf("Call first: %v", err)
		}
		if err := d.Call(CorrelationKey{OpcodeSet, InquiryBattery}, nil, record("second"), func(error) {}); err != nil {
			t.Fatalf("Call second: %v", err)
		}

		f1 := drainSubmittedRequest(t, peer)
		synctest.Wait()
		d.HandleInbound(append([]byte{byte(OpcodeReply), byte(InquiryBattery)}, 0x01))

		f2 := drainSubmittedRequest(t, peer)
		synctest.Wait()
		d.HandleInbound(append([]byte{byte(OpcodeReply), byte(InquiryBattery)}, 0x02))

		if f1.Seq == f2.Seq {
			t.Errorf("second submit reused seq %d", f2.Seq)
		}
		synctest.Wait()
		mu.Lock()
		defer mu.Unlock()
		if len(order) != 2 || order[0] != "first" || order[1] != "second" {
			t.Errorf("completion order = %v, want [first second]", order)
		}
	})
}

func TestDispatcherRejectReportsErrReject(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		d, peer := newTestDispatcher(t)
		defer peer.Close()

		var gotErr error
		done := make(chan struct{})
		if err := d.Call(CorrelationKey{OpcodeSet, InquiryEqualizer}, []byte{0x01},
			func([]byte) { close(done) },
			func(err error) { gotErr = err; close(done) },
		); err != nil {
			t.Fatalf("Call: %v", err)
		}
		drainSubmittedRequest(t, peer)

		d.HandleInbound(append([]byte{byte(OpcodeReject), byte(InquiryEqualizer)}, 0x01))
		<-done
		if !errors.Is(gotErr, ErrReject) {
			t.Errorf("gotErr = %v, want ErrReject", gotErr)
		}
	})
}

func TestDispatcherNotifyRoutesToSubscriber(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		d, peer := newTestDispatcher(t)
		defer peer.Close()

		var got []byte
		d.Subscribe(InquiryBattery, func(body []byte) { got = body })
		d.HandleInbound(append([]byte{byte(OpcodeNotify), byte(InquiryBattery)}, 0x55))

		if len(got) != 1 || got[0] != 0x55 {
			t.Errorf("got = % X, want [55]", got)
		}
	})
}

func TestDispatcherOnLinkDownFailsEverythingOutstanding(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		d, peer := newTestDispatcher(t)
		defer peer.Close()

		var err1, err2 error
		if err := d.Call(CorrelationKey{OpcodeGet, InquiryBattery}, nil, nil, func(e error) { err1 = e }); err != nil {
			t.Fatalf("Call: %v", err)
		}
		if err := d.Call(CorrelationKey{OpcodeSet, InquiryBattery}, nil, nil, func(e error) { err2 = e }); err != nil {
			t.Fatalf("Call: %v", err)
		}
		readFrame(t, peer) // drain the submitted request, never ACKing it

		d.OnLinkDown()

		if !errors.Is(err1, ErrPeerGone) {
			t.Errorf("err1 = %v, want ErrPeerGone", err1)
		}
		if !errors.Is(err2, ErrPeerGone) {
			t.Errorf("err2 = %v, want ErrPeerGone", err2)
		}
	})
}

func TestDispatcherCallRejectsOversizedPayload(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		d, peer := newTestDispatcher(t)
		defer peer.Close()

		err := d.Call(CorrelationKey{OpcodeSet, InquiryEqualizer}, make([]byte, MaxPayloadSize), nil, nil)
		if !errors.Is(err, ErrPayloadTooLarge) {
			t.Fatalf("err = %v, want ErrPayloadTooLarge", err)
		}
	})
}
