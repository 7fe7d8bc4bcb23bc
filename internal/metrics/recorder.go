package metrics

import "github.com/prometheus/client_golang/prometheus"

// Outcome and reason label values.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeDelivered = "delivered"
	OutcomeDropped   = "dropped"

	ReasonUnmatched = "unmatched"
	ReasonInvalid   = "invalid"
	ReasonStale     = "stale"
)

// Recorder receives client events. Implementations must be safe for
// concurrent use.
type Recorder interface {
	CallIssued(method string)
	ReplyDispatched(outcome string)
	EventDispatched(outcome string)
	FrameDiscarded(reason string)
	ConnectAttempt(outcome string)
	PendingCalls(delta int)
}

// Nop discards everything.
type Nop struct{}

func (Nop) CallIssued(string)      {}
func (Nop) ReplyDispatched(string) {}
func (Nop) EventDispatched(string) {}
func (Nop) FrameDiscarded(string)  {}
func (Nop) ConnectAttempt(string)  {}
func (Nop) PendingCalls(int)       {}

// Prometheus records into Prometheus collectors.
type Prometheus struct {
	calls     *prometheus.CounterVec
	replies   *prometheus.CounterVec
	events    *prometheus.CounterVec
	discarded *prometheus.CounterVec
	connects  *prometheus.CounterVec
	pending   prometheus.Gauge
}

// NewPrometheus creates the collectors and registers them with reg.
func NewPrometheus(reg prometheus.Registerer, namespace string) (*Prometheus, error) {
	p := &Prometheus{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "calls_total",
			Help:      "Total number of calls issued",
		}, []string{"method"}),
		replies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "replies_total",
			Help:      "Replies dispatched to pending calls",
		}, []string{"outcome"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "events_total",
			Help:      "Subscription events delivered or dropped",
		}, []string{"outcome"}),
		discarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "frames_discarded_total",
			Help:      "Inbound messages discarded by the receive path",
		}, []string{"reason"}),
		connects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "connects_total",
			Help:      "Connect attempts by outcome",
		}, []string{"outcome"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "pending_calls",
			Help:      "Calls waiting for a reply",
		}),
	}

	for _, c := range []prometheus.Collector{p.calls, p.replies, p.events, p.discarded, p.connects, p.pending} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Prometheus) CallIssued(method string) {
	p.calls.WithLabelValues(method).Inc()
}

func (p *Prometheus) ReplyDispatched(outcome string) {
	p.replies.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) EventDispatched(outcome string) {
	p.events.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) FrameDiscarded(reason string) {
	p.discarded.WithLabelValues(reason).Inc()
}

func (p *Prometheus) ConnectAttempt(outcome string) {
	p.connects.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) PendingCalls(delta int) {
	p.pending.Add(float64(delta))
}
