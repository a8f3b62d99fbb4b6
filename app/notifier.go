package app

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/artpar/fetchvault/adapters/metrics"
	"github.com/artpar/fetchvault/domain/batch"
	"github.com/artpar/fetchvault/domain/webhook"
	"github.com/artpar/fetchvault/ports"
	"github.com/rs/zerolog"
)

// notifyClaimTTL bounds how long a delivered (batch, outcome) pair is
// remembered. One batch reaches one terminal outcome exactly once, so
// the TTL only matters for marker storage growth.
const notifyClaimTTL = 7 * 24 * time.Hour

// Notifier delivers completion webhooks. Delivery is at-most-once per
// (batch, outcome): the event marker is claimed before the attempt, so
// a failed POST is not retried and a concurrent duplicate never fires.
type Notifier struct {
	marker  ports.EventMarker
	client  *http.Client
	clock   ports.Clock
	metrics *metrics.Collector
	logger  zerolog.Logger

	wg          sync.WaitGroup
	shutdownCtx context.Context
	shutdownFn  context.CancelFunc
}

// NewNotifier creates a webhook notifier.
func NewNotifier(marker ports.EventMarker, clock ports.Clock, collector *metrics.Collector, logger zerolog.Logger) *Notifier {
	shutdownCtx, shutdownFn := context.WithCancel(context.Background())
	return &Notifier{
		marker: marker,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		clock:       clock,
		metrics:     collector,
		logger:      logger,
		shutdownCtx: shutdownCtx,
		shutdownFn:  shutdownFn,
	}
}

// Notify dispatches the terminal webhook for a batch in the background.
// Batches without a callback URL, non-terminal batches, and already
// claimed (batch, outcome) pairs are all no-ops.
func (n *Notifier) Notify(b batch.Batch, secret string) {
	if b.CallbackURL == "" || secret == "" {
		return
	}

	event, ok := webhook.EventFor(b.Status)
	if !ok {
		return
	}
	claimed, err := n.marker.Claim(n.shutdownCtx,
		"notify:"+b.ID+":"+string(event), notifyClaimTTL)
	if err != nil {
		n.logger.Error().Err(err).
			Str("batch_id", b.ID).
			Msg("webhook claim failed, skipping delivery")
		return
	}
	if !claimed {
		return
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.deliver(b, event, secret)
	}()
}

// Flush blocks until in-flight deliveries finish. Used by tests and
// shutdown.
func (n *Notifier) Flush() {
	n.wg.Wait()
}

// Shutdown cancels in-flight deliveries and waits for them to return.
func (n *Notifier) Shutdown() {
	n.shutdownFn()
	n.wg.Wait()
}

func (n *Notifier) deliver(b batch.Batch, event webhook.EventType, secret string) {
	payload := webhook.BuildPayload(event, b, n.clock.Now())
	body, err := webhook.Serialize(payload)
	if err != nil {
		n.logger.Error().Err(err).
			Str("batch_id", b.ID).
			Msg("failed to serialize webhook payload")
		return
	}
	signature := webhook.Sign(body, secret)

	ctx, cancel := context.WithTimeout(n.shutdownCtx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.CallbackURL, bytes.NewReader(body))
	if err != nil {
		n.logger.Error().Err(err).
			Str("batch_id", b.ID).
			Msg("failed to build webhook request")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(webhook.HeaderEvent, string(event))
	req.Header.Set(webhook.HeaderSignature, signature)

	resp, err := n.client.Do(req)
	if err != nil {
		if n.metrics != nil {
			n.metrics.WebhookDeliveries.WithLabelValues("error").Inc()
		}
		n.logger.Warn().Err(err).
			Str("batch_id", b.ID).
			Str("url", b.CallbackURL).
			Msg("webhook delivery failed")
		return
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()

	result := "ok"
	if resp.StatusCode >= 300 {
		result = "rejected"
	}
	if n.metrics != nil {
		n.metrics.WebhookDeliveries.WithLabelValues(result).Inc()
	}
	n.logger.Info().
		Str("batch_id", b.ID).
		Str("event", string(event)).
		Int("status", resp.StatusCode).
		Msg("webhook delivered")
}
