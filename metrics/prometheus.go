package metrics

import (
	"net/http"

	"go.uber.org/zap/zapcore"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	//promethus default namespace
	namespace = "hiredis"

	//promethues default label key
	mode      = "mode"
	command   = "command"
	kind      = "kind"
	reason    = "reason"
	labelName = "level"
)

// Reasons a reply is dropped
const (
	DropNoCallback = "no_callback"
	DropNoTicket   = "no_ticket"
	DropCancelled  = "cancelled"
)

var (
	//Label value slice when creating prometheus object
	modeLabel   = []string{mode}
	kindLabel   = []string{kind}
	reasonLabel = []string{reason}
	multiLabel  = []string{mode, command}

	// global prometheus object
	gm *Metrics
)

//Metrics prometheus statistics
type Metrics struct {
	//connection
	ConnectionOnlineGaugeVec *prometheus.GaugeVec
	PendingGauge             prometheus.Gauge
	FaultCounterVec          *prometheus.CounterVec

	//command
	CommandCallHistogramVec *prometheus.HistogramVec
	ReplyCounterVec         *prometheus.CounterVec
	DroppedReplyCounterVec  *prometheus.CounterVec

	//logger
	LogMetricsCounterVec *prometheus.CounterVec
}

//init create global object
func init() {
	gm = &Metrics{}

	gm.CommandCallHistogramVec = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_call_seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 20),
			Help:      "The cost times of command call",
		}, multiLabel)
	prometheus.MustRegister(gm.CommandCallHistogramVec)

	gm.ReplyCounterVec = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_total",
			Help:      "The total of decoded replies by kind",
		}, kindLabel)
	prometheus.MustRegister(gm.ReplyCounterVec)

	gm.DroppedReplyCounterVec = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_replies_total",
			Help:      "The total of replies discarded without a callback",
		}, reasonLabel)
	prometheus.MustRegister(gm.DroppedReplyCounterVec)

	gm.PendingGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_replies",
			Help:      "The number of replies queued and not taken yet",
		})
	prometheus.MustRegister(gm.PendingGauge)

	gm.ConnectionOnlineGaugeVec = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connect_online_number",
			Help:      "The number of online connection",
		}, modeLabel)
	prometheus.MustRegister(gm.ConnectionOnlineGaugeVec)

	gm.FaultCounterVec = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "faults_total",
			Help:      "The total of connection faults by kind",
		}, kindLabel)
	prometheus.MustRegister(gm.FaultCounterVec)

	gm.LogMetricsCounterVec = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logs_entries_total",
			Help:      "Number of logs of certain level",
		},
		[]string{labelName},
	)
	prometheus.MustRegister(gm.LogMetricsCounterVec)

	http.Handle("/hiredis/metrics", promhttp.Handler())
}

//GetMetrics return metrics object
func GetMetrics() *Metrics {
	return gm
}

//Measure logger level rate
func Measure(e zapcore.Entry) error {
	label := e.LoggerName + "_" + e.Level.String()
	gm.LogMetricsCounterVec.WithLabelValues(label).Inc()
	return nil
}
