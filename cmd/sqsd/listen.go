package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/finch-technologies/go-sqs-listener/listener"
	"github.com/finch-technologies/go-sqs-listener/log"
	"github.com/finch-technologies/go-sqs-listener/metrics"
	"github.com/finch-technologies/go-sqs-listener/queue"
	"github.com/finch-technologies/go-sqs-listener/queue/types"
	"github.com/spf13/cobra"
)

func newListenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Consume messages until interrupted",
		Long:  "Starts one listener per queue and logs every message it receives. Queues default to SQS_QUEUE.",
		Args:  usageArgs(cobra.NoArgs),
		RunE:  runListen,
	}
	cmd.Flags().StringSlice("queue", nil, "Queue to consume; repeat for several queues")
	cmd.Flags().String("metrics-addr", "", "Admin server address for /metrics and /healthz (default METRICS_ADDR, empty string disables it)")
	return cmd
}

// logHandler logs every message. It stands in for application handlers when
// sqsd runs on its own.
func logHandler(logger log.LoggerInterface, queueName string) listener.Handler {
	return listener.HandlerFunc(func(ctx context.Context, body any, messageAttributes map[string]types.AttributeValue, attributes map[string]string) error {
		logger.InfoFields("message received", map[string]any{
			"queue":              queueName,
			"body":               body,
			"message_attributes": messageAttributes,
			"attributes":         attributes,
		})
		return nil
	})
}

func runListen(cmd *cobra.Command, args []string) error {
	rt, err := setup(cmd)
	if err != nil {
		return err
	}

	queues, _ := cmd.Flags().GetStringSlice("queue")
	if len(queues) == 0 {
		queues = []string{""}
	}

	metricsAddr := rt.config.MetricsAddr
	if cmd.Flags().Changed("metrics-addr") {
		metricsAddr, _ = cmd.Flags().GetString("metrics-addr")
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	tracerProvider, shutdownTracing, err := newTracerProvider(ctx, rt.config)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := shutdownTracing(shutdownCtx); err != nil {
			rt.logger.Errorf("failed to flush traces: %v", err)
		}
	}()

	collector := metrics.NewPrometheusCollector("sqsd")

	listeners := make([]*listener.Listener, 0, len(queues))
	for _, name := range queues {
		cfg := rt.config.ListenerConfig(name)
		l, err := listener.New(ctx, rt.backend, logHandler(rt.logger, cfg.Queue), cfg,
			listener.WithLogger(rt.logger),
			listener.WithMetrics(collector),
			listener.WithTracerProvider(tracerProvider),
		)
		if err != nil {
			if errors.Is(err, queue.ErrConfiguration) {
				return usageError{err: err}
			}
			return err
		}
		listeners = append(listeners, l)
	}

	if metricsAddr != "" {
		srv := &http.Server{
			Addr:              metricsAddr,
			Handler:           newAdminRouter(collector, listeners),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			rt.logger.Infof("admin server listening on %s", metricsAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				rt.logger.Errorf("admin server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for _, l := range listeners {
		wg.Add(1)
		go func(l *listener.Listener) {
			defer wg.Done()
			if err := l.Listen(ctx); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("listener for queue %s stopped: %w", l.Identity(), err)
				}
				mu.Unlock()
				cancel()
			}
		}(l)
	}
	wg.Wait()

	return firstErr
}
