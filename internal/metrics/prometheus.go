package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements the Collector interface using Prometheus metrics.
type PrometheusCollector struct {
	connectionsTotal   prometheus.Counter
	connectionsActive  prometheus.Gauge
	tlsConnectionTotal prometheus.Counter

	authAttemptsTotal *prometheus.CounterVec

	commandsTotal *prometheus.CounterVec

	selectsTotal *prometheus.CounterVec

	fetchesTotal          prometheus.Counter
	fetchMessagesTotal    prometheus.Counter
	searchesTotal         prometheus.Counter
	searchMatchesTotal    prometheus.Counter
	idleSessionsActive    prometheus.Gauge
	messagesAppendedTotal prometheus.Counter
	messagesAppendedBytes prometheus.Histogram
	messagesExpungedTotal prometheus.Counter
}

// NewPrometheusCollector creates a new PrometheusCollector with all metrics registered.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	c := &PrometheusCollector{
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "imapd_connections_total",
			Help: "Total number of IMAP connections opened.",
		}),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "imapd_connections_active",
			Help: "Number of currently active IMAP connections.",
		}),
		tlsConnectionTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "imapd_tls_connections_total",
			Help: "Total number of TLS connections established, via implicit TLS or STARTTLS.",
		}),

		authAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "imapd_auth_attempts_total",
			Help: "Total number of authentication attempts.",
		}, []string{"mechanism", "result"}),

		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "imapd_commands_total",
			Help: "Total number of IMAP commands processed.",
		}, []string{"command"}),

		selectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "imapd_mailbox_selects_total",
			Help: "Total number of SELECT/EXAMINE completions.",
		}, []string{"mode"}),

		fetchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "imapd_fetches_total",
			Help: "Total number of FETCH/UID FETCH commands processed.",
		}),
		fetchMessagesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "imapd_fetch_messages_total",
			Help: "Total number of messages covered by FETCH/UID FETCH commands.",
		}),
		searchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "imapd_searches_total",
			Help: "Total number of SEARCH/UID SEARCH commands processed.",
		}),
		searchMatchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "imapd_search_matches_total",
			Help: "Total number of messages matched by SEARCH/UID SEARCH commands.",
		}),
		idleSessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "imapd_idle_sessions_active",
			Help: "Number of connections currently inside an IDLE command.",
		}),
		messagesAppendedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "imapd_messages_appended_total",
			Help: "Total number of messages stored via APPEND.",
		}),
		messagesAppendedBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "imapd_messages_appended_bytes",
			Help:    "Size of messages stored via APPEND, in bytes.",
			Buckets: []float64{1024, 10240, 102400, 1048576, 10485760, 26214400, 52428800},
		}),
		messagesExpungedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "imapd_messages_expunged_total",
			Help: "Total number of messages removed via EXPUNGE or CLOSE.",
		}),
	}

	reg.MustRegister(
		c.connectionsTotal,
		c.connectionsActive,
		c.tlsConnectionTotal,
		c.authAttemptsTotal,
		c.commandsTotal,
		c.selectsTotal,
		c.fetchesTotal,
		c.fetchMessagesTotal,
		c.searchesTotal,
		c.searchMatchesTotal,
		c.idleSessionsActive,
		c.messagesAppendedTotal,
		c.messagesAppendedBytes,
		c.messagesExpungedTotal,
	)

	return c
}

// ConnectionOpened increments the connection counter and active gauge.
func (c *PrometheusCollector) ConnectionOpened() {
	c.connectionsTotal.Inc()
	c.connectionsActive.Inc()
}

// ConnectionClosed decrements the active connections gauge.
func (c *PrometheusCollector) ConnectionClosed() {
	c.connectionsActive.Dec()
}

// TLSConnectionEstablished increments the TLS connection counter.
func (c *PrometheusCollector) TLSConnectionEstablished() {
	c.tlsConnectionTotal.Inc()
}

// AuthAttempt increments the authentication attempts counter.
func (c *PrometheusCollector) AuthAttempt(mechanism string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.authAttemptsTotal.WithLabelValues(mechanism, result).Inc()
}

// CommandProcessed increments the command counter.
func (c *PrometheusCollector) CommandProcessed(command string) {
	c.commandsTotal.WithLabelValues(command).Inc()
}

// SelectedMailbox increments the mailbox-select counter, labeled by mode.
func (c *PrometheusCollector) SelectedMailbox(readOnly bool) {
	mode := "read-write"
	if readOnly {
		mode = "read-only"
	}
	c.selectsTotal.WithLabelValues(mode).Inc()
}

// FetchProcessed increments the FETCH counters.
func (c *PrometheusCollector) FetchProcessed(messageCount int) {
	c.fetchesTotal.Inc()
	c.fetchMessagesTotal.Add(float64(messageCount))
}

// SearchProcessed increments the SEARCH counters.
func (c *PrometheusCollector) SearchProcessed(matchCount int) {
	c.searchesTotal.Inc()
	c.searchMatchesTotal.Add(float64(matchCount))
}

// IdleStarted increments the active-IDLE gauge.
func (c *PrometheusCollector) IdleStarted() {
	c.idleSessionsActive.Inc()
}

// IdleEnded decrements the active-IDLE gauge.
func (c *PrometheusCollector) IdleEnded() {
	c.idleSessionsActive.Dec()
}

// MessageAppended increments the APPEND counter and observes message size.
func (c *PrometheusCollector) MessageAppended(sizeBytes int64) {
	c.messagesAppendedTotal.Inc()
	c.messagesAppendedBytes.Observe(float64(sizeBytes))
}

// MessageExpunged increments the expunged-messages counter.
func (c *PrometheusCollector) MessageExpunged() {
	c.messagesExpungedTotal.Inc()
}
