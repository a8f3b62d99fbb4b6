package app

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/artpar/fetchvault/adapters/metrics"
	"github.com/artpar/fetchvault/domain/archive"
	"github.com/artpar/fetchvault/domain/batch"
	"github.com/artpar/fetchvault/domain/credit"
	"github.com/artpar/fetchvault/domain/fetch"
	"github.com/artpar/fetchvault/ports"
	"github.com/rs/zerolog"
)

// maxItemError caps the stored per-item error message.
const maxItemError = 500

// OrchestratorConfig tunes batch processing.
type OrchestratorConfig struct {
	WorkDir     string
	ItemWorkers int           // concurrent downloads per batch
	Retention   time.Duration // how long finished batches are kept
	SweepEvery  time.Duration
}

// Orchestrator drives admitted batches through the download, pack and
// notify phases. Each batch is claimed exactly once; the claim makes a
// duplicate StartBatch call a no-op, so crash-recovery requeues and
// racing callers cannot double-process.
type Orchestrator struct {
	batches  ports.BatchStore
	tenants  ports.TenantStore
	credits  ports.CreditStore
	fetcher  ports.Fetcher
	packer   *Packer
	notifier *Notifier
	clock    ports.Clock
	metrics  *metrics.Collector
	logger   zerolog.Logger

	cfg OrchestratorConfig

	wg          sync.WaitGroup
	shutdownCtx context.Context
	shutdownFn  context.CancelFunc
}

// NewOrchestrator creates a batch orchestrator.
func NewOrchestrator(
	batches ports.BatchStore,
	tenants ports.TenantStore,
	credits ports.CreditStore,
	fetcher ports.Fetcher,
	packer *Packer,
	notifier *Notifier,
	clock ports.Clock,
	collector *metrics.Collector,
	logger zerolog.Logger,
	cfg OrchestratorConfig,
) *Orchestrator {
	if cfg.ItemWorkers <= 0 {
		cfg.ItemWorkers = 3
	}
	if cfg.Retention <= 0 {
		cfg.Retention = time.Hour
	}
	if cfg.SweepEvery <= 0 {
		cfg.SweepEvery = 10 * time.Minute
	}
	shutdownCtx, shutdownFn := context.WithCancel(context.Background())
	return &Orchestrator{
		batches:     batches,
		tenants:     tenants,
		credits:     credits,
		fetcher:     fetcher,
		packer:      packer,
		notifier:    notifier,
		clock:       clock,
		metrics:     collector,
		logger:      logger,
		cfg:         cfg,
		shutdownCtx: shutdownCtx,
		shutdownFn:  shutdownFn,
	}
}

// StartBatch begins processing a batch in the background.
func (o *Orchestrator) StartBatch(batchID string) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.run(batchID)
	}()
}

// Run starts the retention sweeper and blocks until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.SweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-o.shutdownCtx.Done():
			return
		case <-ticker.C:
			cutoff := o.clock.Now().Add(-o.cfg.Retention)
			n, err := o.batches.Sweep(ctx, cutoff)
			if err != nil {
				o.logger.Error().Err(err).Msg("batch sweep failed")
				continue
			}
			if n > 0 {
				o.logger.Info().Int("swept", n).Msg("expired batches removed")
			}
		}
	}
}

// Shutdown stops in-flight batches and waits for workers to return.
func (o *Orchestrator) Shutdown() {
	o.shutdownFn()
	o.wg.Wait()
}

// Wait blocks until all started batches finish. Used by tests.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) run(batchID string) {
	ctx := o.shutdownCtx
	logger := o.logger.With().Str("batch_id", batchID).Logger()

	claimed, err := o.batches.Claim(ctx, batchID)
	if err != nil {
		logger.Error().Err(err).Msg("batch claim failed")
		return
	}
	if !claimed {
		logger.Debug().Msg("batch already claimed, skipping")
		return
	}

	if o.metrics != nil {
		o.metrics.BatchesInFlight.Inc()
		defer o.metrics.BatchesInFlight.Dec()
	}

	b, err := o.batches.Get(ctx, batchID)
	if err != nil {
		logger.Error().Err(err).Msg("batch vanished before start")
		return
	}
	// A batch with no items has nothing to drive; it stays queued at
	// progress 0 until the retention sweep removes it.
	if len(b.Items) == 0 {
		logger.Warn().Msg("batch has no items, leaving it queued")
		return
	}

	b, err = o.transition(ctx, batchID, batch.StatusDownloading)
	if err != nil {
		logger.Error().Err(err).Msg("cannot start batch")
		return
	}

	mediaDir := filepath.Join(o.cfg.WorkDir, batchID, "media")
	defer os.RemoveAll(filepath.Join(o.cfg.WorkDir, batchID))

	o.downloadAll(ctx, b, mediaDir, logger)

	b, err = o.batches.Get(ctx, batchID)
	if err != nil {
		logger.Error().Err(err).Msg("batch vanished mid-run")
		return
	}

	succeeded, failedItems := batch.CountByStatus(b)
	logger.Info().
		Int("succeeded", succeeded).
		Int("failed", failedItems).
		Msg("downloads finished")

	if succeeded == 0 {
		o.finish(ctx, batchID, batch.StatusFailed, nil, logger)
		return
	}

	b, err = o.transition(ctx, batchID, batch.StatusProcessing)
	if err != nil {
		logger.Error().Err(err).Msg("cannot enter processing")
		return
	}

	files, totalBytes := archiveInputs(b)
	if err := o.credits.AddBandwidth(ctx, b.TenantID, credit.PeriodStart(o.clock.Now()), totalBytes); err != nil {
		logger.Error().Err(err).Msg("bandwidth accounting failed")
	}

	refs, err := o.packer.Pack(ctx, batchID, files)
	if err != nil {
		logger.Error().Err(err).Msg("packing failed")
		o.finish(ctx, batchID, batch.StatusFailed, nil, logger)
		return
	}

	o.finish(ctx, batchID, batch.StatusCompleted, refs, logger)
}

// downloadAll runs the per-batch worker pool. Item failures are
// isolated; the pool always drains.
func (o *Orchestrator) downloadAll(ctx context.Context, b batch.Batch, mediaDir string, logger zerolog.Logger) {
	sem := make(chan struct{}, o.cfg.ItemWorkers)
	var wg sync.WaitGroup

	for i := range b.Items {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			o.downloadItem(ctx, b.ID, idx, b.Items[idx], mediaDir, logger)
		}(i)
	}
	wg.Wait()
}

func (o *Orchestrator) downloadItem(ctx context.Context, batchID string, idx int, item batch.Item, mediaDir string, logger zerolog.Logger) {
	o.updateItem(ctx, batchID, idx, func(it *batch.Item) {
		it.Status = batch.StatusDownloading
	})

	req := fetch.Request{
		URL:      item.URL,
		TargetID: item.TargetID,
		Name:     item.Name,
		Format:   item.Format,
		Quality:  item.Quality,
	}

	started := o.clock.Now()
	lastReported := 0
	onProgress := func(pct float64) {
		// Throttle store writes to whole-point movements.
		p := int(pct)
		if p <= lastReported {
			return
		}
		lastReported = p
		o.updateItem(ctx, batchID, idx, func(it *batch.Item) {
			if p > it.Progress {
				it.Progress = p
			}
		})
	}

	path, err := o.fetcher.Fetch(ctx, req, mediaDir, onProgress)
	elapsed := o.clock.Now().Sub(started)

	if err != nil {
		msg := err.Error()
		if len(msg) > maxItemError {
			msg = msg[:maxItemError]
		}
		o.updateItem(ctx, batchID, idx, func(it *batch.Item) {
			it.Status = batch.StatusFailed
			it.Error = msg
		})
		if o.metrics != nil {
			o.metrics.ItemsTotal.WithLabelValues("failed").Inc()
			o.metrics.ItemDuration.WithLabelValues("failed").Observe(elapsed.Seconds())
		}
		logger.Warn().Err(err).Str("url", item.URL).Msg("item download failed")
		return
	}

	o.updateItem(ctx, batchID, idx, func(it *batch.Item) {
		it.Status = batch.StatusCompleted
		it.Progress = 100
		it.OutputPath = path
	})
	if o.metrics != nil {
		o.metrics.ItemsTotal.WithLabelValues("completed").Inc()
		o.metrics.ItemDuration.WithLabelValues("completed").Observe(elapsed.Seconds())
	}
}

func (o *Orchestrator) updateItem(ctx context.Context, batchID string, idx int, fn func(*batch.Item)) {
	_, err := o.batches.Update(ctx, batchID, func(b *batch.Batch) {
		if idx >= 0 && idx < len(b.Items) {
			fn(&b.Items[idx])
		}
	})
	if err != nil {
		o.logger.Error().Err(err).
			Str("batch_id", batchID).
			Int("item", idx).
			Msg("item update failed")
	}
}

// transition moves the batch to the target status, refusing moves the
// state machine forbids.
func (o *Orchestrator) transition(ctx context.Context, batchID string, to batch.Status) (batch.Batch, error) {
	return o.batches.Update(ctx, batchID, func(b *batch.Batch) {
		if batch.CanTransition(b.Status, to) {
			b.Status = to
		}
	})
}

// finish records the terminal state and fires the completion webhook.
func (o *Orchestrator) finish(ctx context.Context, batchID string, status batch.Status, parts []batch.PartRef, logger zerolog.Logger) {
	b, err := o.batches.Update(ctx, batchID, func(b *batch.Batch) {
		if batch.CanTransition(b.Status, status) {
			b.Status = status
		}
		if parts != nil {
			b.Parts = parts
		}
	})
	if err != nil {
		logger.Error().Err(err).Msg("terminal update failed")
		return
	}

	if o.metrics != nil {
		o.metrics.BatchesTotal.WithLabelValues(string(b.Status)).Inc()
	}
	logger.Info().Str("status", string(b.Status)).Msg("batch finished")

	tenant, err := o.tenants.Get(ctx, b.TenantID)
	if err != nil {
		logger.Error().Err(err).Msg("tenant lookup for webhook failed")
		return
	}
	o.notifier.Notify(b, tenant.WebhookSecret)
}

// archiveInputs maps the batch's successful items to archive files and
// sums their on-disk sizes for bandwidth accounting.
func archiveInputs(b batch.Batch) ([]archive.File, int64) {
	var files []archive.File
	var total int64
	for _, item := range b.Items {
		if item.Status != batch.StatusCompleted || item.OutputPath == "" {
			continue
		}
		size := int64(0)
		if info, err := os.Stat(item.OutputPath); err == nil {
			size = info.Size()
		}
		total += size
		files = append(files, archive.File{
			Path: item.OutputPath,
			Name: filepath.Base(item.OutputPath),
			Size: size,
		})
	}
	return files, total
}
