package mdr

import (
	"errors"
	"net"
	"testing"
	"testing/synctest"
)

// -------------------------------------------------------------------------
// Combined NC_AND_ASM fan-out
// -------------------------------------------------------------------------

// TestCombinedNCAndASMNotificationUpdatesBothSurfaces covers a combined
// device where NoiseCancelling and AmbientSoundMode share one wire inquiry
// type (spec.md §4.5): both surfaces must observe every push, not just
// whichever of them subscribed last.
func TestCombinedNCAndASMNotificationUpdatesBothSurfaces(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		local, peer := net.Pipe()
		link := NewLink(local, nil, nil)
		defer link.Close()
		d := NewDispatcher(link, nil)

		nc := NewNoiseCancellingSurface(d, true)
		asm := NewAmbientSoundModeSurface(d, true)

		ncDone := make(chan struct{})
		asmDone := make(chan struct{})
		nc.Seed(func(bool) { close(ncDone) })
		asm.Seed(func(bool) { close(asmDone) })

		f := drainSubmittedRequest(t, peer)
		if InquiryType(f.Payload[1]) != InquiryNCAndASM {
			t.Fatalf("first submitted inquiry = %v, want InquiryNCAndASM", InquiryType(f.Payload[1]))
		}
		d.HandleInbound(append([]byte{byte(OpcodeReply), byte(InquiryNCAndASM)}, combinedStateNC, 0, 0))
		<-ncDone

		f = drainSubmittedRequest(t, peer)
		if InquiryType(f.Payload[1]) != InquiryNCAndASM {
			t.Fatalf("second submitted inquiry = %v, want InquiryNCAndASM", InquiryType(f.Payload[1]))
		}
		d.HandleInbound(append([]byte{byte(OpcodeReply), byte(InquiryNCAndASM)}, combinedStateNC, 0, 0))
		<-asmDone

		if !nc.Value().Enabled {
			t.Fatalf("after seed, NoiseCancelling.Enabled = false, want true")
		}

		d.HandleInbound(append([]byte{byte(OpcodeNotify), byte(InquiryNCAndASM)}, combinedStateASM, 40, 1))
		synctest.Wait()

		if nc.Value().Enabled {
			t.Errorf("after combined ASM push, NoiseCancelling.Enabled = true, want false")
		}
		gotASM := asm.Value()
		if gotASM.Amount != 40 || gotASM.Mode != asmModeVoice {
			t.Errorf("AmbientSoundMode value = %+v, want {40 voice}", gotASM)
		}
	})
}

func TestPollablePropertySeedsToLiveOnSuccess(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		local, peer := net.Pipe()
		link := NewLink(local, nil, nil)
		defer link.Close()
		d := NewDispatcher(link, nil)

		surf := NewBatterySurface(d)
		if surf.State() != SurfaceUninitialised {
			t.Fatalf("initial state = %v, want Uninitialised", surf.State())
		}

		var seedOK bool
		done := make(chan struct{})
		surf.Seed(func(ok bool) { seedOK = ok; close(done) })

		if surf.State() != SurfaceSeeding {
			t.Errorf("state during Seed = %v, want Seeding", surf.State())
		}

		f := drainSubmittedRequest(t, peer)
		if InquiryType(f.Payload[1]) != InquiryBattery {
			t.Fatalf("submitted inquiry type = %v, want InquiryBattery", InquiryType(f.Payload[1]))
		}

		d.HandleInbound(append([]byte{byte(OpcodeReply), byte(InquiryBattery)}, 77, 1))
		<-done

		if !seedOK {
			t.Error("seed callback ok = false, want true")
		}
		if surf.State() != SurfaceLive {
			t.Fatalf("state = %v, want Live", surf.State())
		}
		v := surf.Value()
		if v.Level != 77 || !v.Charging {
			t.Errorf("Value() = %+v, want {77 true}", v)
		}
	})
}

func TestPollablePropertySeedsToDeadOnReject(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		local, peer := net.Pipe()
		link := NewLink(local, nil, nil)
		defer link.Close()
		d := NewDispatcher(link, nil)

		surf := NewBatterySurface(d)

		var seedOK bool
		done := make(chan struct{})
		surf.Seed(func(ok bool) { seedOK = ok; close(done) })
		drainSubmittedRequest(t, peer)

		d.HandleInbound(append([]byte{byte(OpcodeReject), byte(InquiryBattery)}, 0x01))
		<-done

		if seedOK {
			t.Error("seed callback ok = true, want false")
		}
		if surf.State() != SurfaceDead {
			t.Fatalf("state = %v, want Dead", surf.State())
		}
	})
}

func TestPollablePropertyClampsOutOfRangeBatteryLevel(t *testing.T) {
	t.Parallel()

	v, err := decodeBatteryState([]byte{250, 0})
	if err != nil {
		t.Fatalf("decodeBatteryState: %v", err)
	}
	if v.Level != 100 {
		t.Errorf("Level = %d, want clamped to 100", v.Level)
	}
}

func TestPollablePropertyDecodeTooShortIsBadFrame(t *testing.T) {
	t.Parallel()

	if _, err := decodeBatteryState([]byte{1}); !errors.Is(err, ErrBadFrame) {
		t.Errorf("err = %v, want ErrBadFrame", err)
	}
}

func TestPollablePropertyOnChangeFiresOnPushNotify(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		local, peer := net.Pipe()
		link := NewLink(local, nil, nil)
		defer link.Close()
		d := NewDispatcher(link, nil)

		surf := NewBatterySurface(d)

		var changed BatteryState
		changes := 0
		surf.OnChange(func(v BatteryState) { changed = v; changes++ })

		done := make(chan struct{})
		surf.Seed(func(bool) { close(done) })
		drainSubmittedRequest(t, peer)
		d.HandleInbound(append([]byte{byte(OpcodeReply), byte(InquiryBattery)}, 50, 0))
		<-done

		if changes != 1 {
			t.Fatalf("changes after seed = %d, want 1", changes)
		}

		d.HandleInbound(append([]byte{byte(OpcodeNotify), byte(InquiryBattery)}, 10, 1))
		synctest.Wait()

		if changes != 2 {
			t.Fatalf("changes after notify = %d, want 2", changes)
		}
		if changed.Level != 10 || !changed.Charging {
			t.Errorf("changed = %+v, want {10 true}", changed)
		}
	})
}

// -------------------------------------------------------------------------
// Equalizer-specific validation (pure logic, no dispatcher traffic)
// -------------------------------------------------------------------------

func TestEqualizerSetPresetRejectsUnknownName(t *testing.T) {
	t.Parallel()

	local, peer := net.Pipe()
	link := NewLink(local, nil, nil)
	defer link.Close()
	defer peer.Close()
	d := NewDispatcher(link, nil)
	surf := NewEqualizerSurface(d)

	var gotErr error
	surf.SetPreset("NotAPreset", func() { t.Fatal("onOK called") }, func(err error) { gotErr = err })
	if !errors.Is(gotErr, ErrInvalidValue) {
		t.Errorf("err = %v, want ErrInvalidValue", gotErr)
	}
}

func TestEqualizerSetLevelsRejectsWrongBandCount(t *testing.T) {
	t.Parallel()

	local, peer := net.Pipe()
	link := NewLink(local, nil, nil)
	defer link.Close()
	defer peer.Close()
	d := NewDispatcher(link, nil)
	surf := NewEqualizerSurface(d)
	surf.setValue(EqualizerState{BandCount: 5, LevelSteps: 20})

	var gotErr error
	surf.SetLevels([]uint32{1, 2}, func() { t.Fatal("onOK called") }, func(err error) { gotErr = err })
	if !errors.Is(gotErr, ErrInvalidValue) {
		t.Errorf("err = %v, want ErrInvalidValue", gotErr)
	}
}

func TestEqualizerSetLevelsRejectsOutOfRange(t *testing.T) {
	t.Parallel()

	local, peer := net.Pipe()
	link := NewLink(local, nil, nil)
	defer link.Close()
	defer peer.Close()
	d := NewDispatcher(link, nil)
	surf := NewEqualizerSurface(d)
	surf.setValue(EqualizerState{BandCount: 2, LevelSteps: 10})

	var gotErr error
	surf.SetLevels([]uint32{10, 0}, func() { t.Fatal("onOK called") }, func(err error) { gotErr = err })
	if !errors.Is(gotErr, ErrInvalidValue) {
		t.Errorf("err = %v, want ErrInvalidValue", gotErr)
	}
}

func TestEqualizerSetLevelsSendsSetRequest(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		local, peer := net.Pipe()
		link := NewLink(local, nil, nil)
		defer link.Close()
		d := NewDispatcher(link, nil)
		surf := NewEqualizerSurface(d)
		surf.setValue(EqualizerState{BandCount: 2, LevelSteps: 10})

		var okCalled bool
		done := make(chan struct{})
		surf.SetLevels([]uint32{3, 8}, func() { okCalled = true; close(done) }, func(err error) {
			t.Fatalf("onErr: %v", err)
		})

		f := drainSubmittedRequest(t, peer)
		if Opcode(f.Payload[0]) != OpcodeSet || InquiryType(f.Payload[1]) != InquiryEqualizer {
			t.Fatalf("submitted header = % X, want SET/EQUALIZER", f.Payload[:2])
		}
		d.HandleInbound(append([]byte{byte(OpcodeReply), byte(InquiryEqualizer)}))
		<-done
		if !okCalled {
			t.Error("onOK never called")
		}
	})
}
