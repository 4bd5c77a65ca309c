package listener

import (
	"context"

	"github.com/finch-technologies/go-sqs-listener/metrics"
)

const (
	metricReceived        = "messages_received_total"
	metricProcessed       = "messages_processed_total"
	metricEmptyPolls      = "empty_polls_total"
	metricReceiveErrors   = "receive_errors_total"
	metricHandlerDuration = "handler_duration_seconds"
	metricBatchSize       = "receive_batch_size"
	metricState           = "listener_state"
)

// Outcomes recorded on messages_processed_total.
const (
	OutcomeDeleted      = "deleted"
	OutcomeFailed       = "failed"
	OutcomeSkipped      = "skipped"
	OutcomeDeleteFailed = "delete_failed"
)

var listenerMetrics = []metrics.CustomMetric{
	{Name: metricReceived, Description: "Messages received from the queue", Type: metrics.Counter, Labels: []string{"queue"}},
	{Name: metricProcessed, Description: "Messages processed, by outcome", Type: metrics.Counter, Labels: []string{"queue", "outcome"}},
	{Name: metricEmptyPolls, Description: "Receives that returned no messages", Type: metrics.Counter, Labels: []string{"queue"}},
	{Name: metricReceiveErrors, Description: "Failed receive calls", Type: metrics.Counter, Labels: []string{"queue"}},
	{Name: metricHandlerDuration, Description: "Time spent in the message handler", Type: metrics.Histogram, Labels: []string{"queue"}},
	{Name: metricBatchSize, Description: "Messages per non-empty receive", Type: metrics.Summary, Labels: []string{"queue"}},
	{Name: metricState, Description: "Current loop state (0 idle, 1 receiving, 2 processing, 3 sleeping)", Type: metrics.Gauge, Labels: []string{"queue"}},
}

func (l *Listener) increment(name string, value float64, extra ...string) {
	if l.metrics == nil {
		return
	}
	labels := map[string]string{"queue": l.identity.Name}
	for i := 0; i+1 < len(extra); i += 2 {
		labels[extra[i]] = extra[i+1]
	}
	l.metrics.IncrementCounter(context.Background(), name, labels, value)
}

func (l *Listener) observeHandler(seconds float64) {
	if l.metrics == nil {
		return
	}
	l.metrics.ObserveHistogram(context.Background(), metricHandlerDuration, map[string]string{"queue": l.identity.Name}, seconds)
}

func (l *Listener) observeBatch(size int) {
	if l.metrics == nil {
		return
	}
	l.metrics.ObserveSummary(context.Background(), metricBatchSize, map[string]string{"queue": l.identity.Name}, float64(size))
}

func (l *Listener) setState(s State) {
	l.state.Store(int32(s))
	if l.metrics == nil {
		return
	}
	l.metrics.SetGauge(context.Background(), metricState, map[string]string{"queue": l.identity.Name}, float64(s))
}
