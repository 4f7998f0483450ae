package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ObserveCommand("DESCRIBE", "ok", 0.01)
		c.IncAuthRetry()
		c.ObserveRTPPacket(128)
		c.AddRTPLost(1)
		c.IncReorderForcedRelease()
		c.SetPendingCommands(3)
	})
}

func TestCollectorRecordsCounters(t *testing.T) {
	c := NewUnregistered()

	c.IncAuthRetry()
	c.IncAuthRetry()
	assert.Equal(t, float64(2), counterValue(t, c.authRetriesTotal))

	c.ObserveRTPPacket(100)
	c.ObserveRTPPacket(50)
	assert.Equal(t, float64(2), counterValue(t, c.rtpPacketsTotal))
	assert.Equal(t, float64(150), counterValue(t, c.rtpBytesTotal))

	c.AddRTPLost(3)
	assert.Equal(t, float64(3), counterValue(t, c.rtpLostTotal))

	c.IncReorderForcedRelease()
	assert.Equal(t, float64(1), counterValue(t, c.reorderForcedTotal))
}

func TestNewRegistersWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)
	c.IncAuthRetry()

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
