package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.Frame()
	m.Dropped("invalid_value")
	m.UnknownTag()
	m.Send(true)
	m.Send(false)
	m.Send(false)
	m.Failsafe()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConnectionsActive))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ConnectionsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ParserDropped.WithLabelValues("invalid_value")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UnknownTags))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OSCSends.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.OSCSends.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FailsafeTotal))
}

func TestMetrics_Nil(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ConnectionOpened()
		m.ConnectionClosed()
		m.Frame()
		m.Dropped("x")
		m.UnknownTag()
		m.Send(true)
		m.Failsafe()
	})
}
