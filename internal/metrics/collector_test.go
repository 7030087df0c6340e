package mdrmetrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/sony-mdr/mdrd/internal/mdr"
	mdrmetrics "github.com/sony-mdr/mdrd/internal/metrics"
)

func TestNewCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := mdrmetrics.NewCollector(reg)

	if c.FramesSent == nil {
		t.Error("FramesSent is nil")
	}
	if c.FramesReceived == nil {
		t.Error("FramesReceived is nil")
	}
	if c.FramesDropped == nil {
		t.Error("FramesDropped is nil")
	}
	if c.Retransmits == nil {
		t.Error("Retransmits is nil")
	}
	if c.LinksLost == nil {
		t.Error("LinksLost is nil")
	}
	if c.HandshakeFailures == nil {
		t.Error("HandshakeFailures is nil")
	}
	if c.SurfaceSeeds == nil {
		t.Error("SurfaceSeeds is nil")
	}
	if c.Sessions == nil {
		t.Error("Sessions is nil")
	}
	if c.Connects == nil {
		t.Error("Connects is nil")
	}
	if c.Disconnects == nil {
		t.Error("Disconnects is nil")
	}

	// Registration must not panic; gathering with no data yet is fine.
	if _, err := reg.Gather(); err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
}

func TestForDeviceImplementsSessionMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := mdrmetrics.NewCollector(reg)

	var _ mdr.SessionMetrics = c.ForDevice("aa:bb:cc:dd:ee:ff")
}

func TestFrameCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := mdrmetrics.NewCollector(reg)
	dm := c.ForDevice("dev-1")

	dm.FrameSent(mdr.KindACK)
	dm.FrameSent(mdr.KindACK)
	dm.FrameReceived(mdr.KindDataMDR)
	dm.FrameDropped("checksum")

	if v := counterValue(t, c.FramesSent, "dev-1", mdr.KindACK.String()); v != 2 {
		t.Errorf("FramesSent = %v, want 2", v)
	}
	if v := counterValue(t, c.FramesReceived, "dev-1", mdr.KindDataMDR.String()); v != 1 {
		t.Errorf("FramesReceived = %v, want 1", v)
	}
	if v := counterValue(t, c.FramesDropped, "dev-1", "checksum"); v != 1 {
		t.Errorf("FramesDropped = %v, want 1", v)
	}
}

func TestRetransmitAndLinkLost(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := mdrmetrics.NewCollector(reg)
	dm := c.ForDevice("dev-2")

	dm.Retransmit()
	dm.Retransmit()
	dm.LinkLost()

	if v := counterValue(t, c.Retransmits, "dev-2"); v != 2 {
		t.Errorf("Retransmits = %v, want 2", v)
	}
	if v := counterValue(t, c.LinksLost, "dev-2"); v != 1 {
		t.Errorf("LinksLost = %v, want 1", v)
	}
}

func TestHandshakeAndSurfaceSeeds(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := mdrmetrics.NewCollector(reg)
	dm := c.ForDevice("dev-3")

	dm.HandshakeFailed("timeout")
	dm.SurfaceSeeded("Battery", true)
	dm.SurfaceSeeded("Equalizer", false)

	if v := counterValue(t, c.HandshakeFailures, "dev-3", "timeout"); v != 1 {
		t.Errorf("HandshakeFailures = %v, want 1", v)
	}
	if v := counterValue(t, c.SurfaceSeeds, "dev-3", "Battery", "ok"); v != 1 {
		t.Errorf("SurfaceSeeds(Battery, ok) = %v, want 1", v)
	}
	if v := counterValue(t, c.SurfaceSeeds, "dev-3", "Equalizer", "fail"); v != 1 {
		t.Errorf("SurfaceSeeds(Equalizer, fail) = %v, want 1", v)
	}
}

func TestConnectedDisconnected(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := mdrmetrics.NewCollector(reg)
	dm := c.ForDevice("dev-4")

	dm.Connected()
	if v := gaugeValue(t, c.Sessions); v != 1 {
		t.Errorf("Sessions = %v, want 1", v)
	}
	if v := counterValue(t, c.Connects); v != 1 {
		t.Errorf("Connects = %v, want 1", v)
	}

	dm.Disconnected()
	if v := gaugeValue(t, c.Sessions); v != 0 {
		t.Errorf("Sessions = %v, want 0", v)
	}
	if v := counterValue(t, c.Disconnects); v != 1 {
		t.Errorf("Disconnects = %v, want 1", v)
	}
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}
	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, c prometheus.Collector, labels ...string) float64 {
	t.Helper()

	switch v := c.(type) {
	case *prometheus.CounterVec:
		counter, err := v.GetMetricWithLabelValues(labels...)
		if err != nil {
			t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
		}
		m := &dto.Metric{}
		if err := counter.Write(m); err != nil {
			t.Fatalf("Write metric: %v", err)
		}
		return m.GetCounter().GetValue()
	case prometheus.Counter:
		m := &dto.Metric{}
		if err := v.Write(m); err != nil {
			t.Fatalf("Write metric: %v", err)
		}
		return m.GetCounter().GetValue()
	default:
		t.Fatalf("counterValue: unsupported collector type %T", c)
		return 0
	}
}
