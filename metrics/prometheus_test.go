package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestMetrics(t *testing.T) {
	gm.ConnectionOnlineGaugeVec.WithLabelValues("sync").Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(gm.ConnectionOnlineGaugeVec.WithLabelValues("sync")))
	gm.ConnectionOnlineGaugeVec.WithLabelValues("sync").Dec()

	before := testutil.ToFloat64(gm.DroppedReplyCounterVec.WithLabelValues(DropNoTicket))
	gm.DroppedReplyCounterVec.WithLabelValues(DropNoTicket).Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(gm.DroppedReplyCounterVec.WithLabelValues(DropNoTicket)))

	gm.CommandCallHistogramVec.WithLabelValues("sync", "get").Observe(0.001)
	gm.ReplyCounterVec.WithLabelValues("status").Inc()
	gm.PendingGauge.Set(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(gm.PendingGauge))
	gm.PendingGauge.Set(0)
}

func TestMeasure(t *testing.T) {
	label := "test_info"
	before := testutil.ToFloat64(gm.LogMetricsCounterVec.WithLabelValues(label))
	assert.NoError(t, Measure(zapcore.Entry{LoggerName: "test", Level: zapcore.InfoLevel}))
	assert.Equal(t, before+1, testutil.ToFloat64(gm.LogMetricsCounterVec.WithLabelValues(label)))
}
