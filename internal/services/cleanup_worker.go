package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"zalo-hub/internal/metrics"
	"zalo-hub/internal/repository"
	"zalo-hub/internal/storage"

	"go.uber.org/zap"
)

// FileRemover deletes stored attachments; storage.ErrFileMissing marks a file
// that is already gone.
type FileRemover interface {
	Delete(ctx context.Context, path string) error
}

type CleanupResult struct {
	Scanned int
	Deleted int
	Missing int
	Failed  int
}

// CleanupWorker purges expired dead-letter attachments on a fixed interval.
type CleanupWorker struct {
	failedRepo  repository.FailedFileRepository
	messageRepo repository.MessageRepository
	files       FileRemover
	interval    time.Duration
	retention   time.Duration
	logger      *zap.Logger

	mu       sync.Mutex
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
}

func NewCleanupWorker(failedRepo repository.FailedFileRepository, messageRepo repository.MessageRepository, files FileRemover, interval, retention time.Duration, logger *zap.Logger) *CleanupWorker {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CleanupWorker{
		failedRepo:  failedRepo,
		messageRepo: messageRepo,
		files:       files,
		interval:    interval,
		retention:   retention,
		logger:      logger.With(zap.String("component", "cleanup")),
	}
}

// Start begins the worker loop
func (w *CleanupWorker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	w.running = true
	w.stopChan = make(chan struct{})
	w.wg.Add(1)
	go w.run(w.stopChan)
}

// Stop gracefully shuts down
func (w *CleanupWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopChan)
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *CleanupWorker) run(stop <-chan struct{}) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			w.runOnce()
		}
	}
}

func (w *CleanupWorker) runOnce() {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("cleanup panicked", zap.Any("panic", r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), w.interval)
	defer cancel()
	res, err := w.Sweep(ctx, time.Now())
	if err != nil {
		w.logger.Error("cleanup sweep failed", zap.Error(err))
		return
	}
	if res.Scanned > 0 {
		w.logger.Info("cleanup sweep finished",
			zap.Int("scanned", res.Scanned),
			zap.Int("deleted", res.Deleted),
			zap.Int("missing", res.Missing),
			zap.Int("failed", res.Failed))
	}
}

// Sweep removes every dead-letter row older than the retention window. Each
// file is deleted independently; rows whose file could not be deleted stay
// for the next run.
func (w *CleanupWorker) Sweep(ctx context.Context, now time.Time) (CleanupResult, error) {
	rows, err := w.failedRepo.ListOlderThan(ctx, now.Add(-w.retention), 0)
	if err != nil {
		return CleanupResult{}, fmt.Errorf("list expired files: %w", err)
	}
	res := CleanupResult{Scanned: len(rows)}
	if len(rows) == 0 {
		return res, nil
	}

	rowIDs := make([]uint, 0, len(rows))
	messageIDs := make([]uint, 0, len(rows))
	seen := make(map[uint]struct{}, len(rows))
	for _, row := range rows {
		err := w.files.Delete(ctx, row.FilePath)
		switch {
		case err == nil:
			res.Deleted++
			metrics.CleanupFiles.WithLabelValues(metrics.OutcomeOK).Inc()
		case errors.Is(err, storage.ErrFileMissing):
			res.Missing++
			metrics.CleanupFiles.WithLabelValues(metrics.OutcomeMissing).Inc()
			w.logger.Warn("expired file already missing", zap.String("path", row.FilePath))
		default:
			res.Failed++
			metrics.CleanupFiles.WithLabelValues(metrics.OutcomeRetained).Inc()
			w.logger.Error("delete expired file failed", zap.String("path", row.FilePath), zap.Error(err))
			continue
		}
		rowIDs = append(rowIDs, row.ID)
		if _, ok := seen[row.MessageID]; !ok {
			seen[row.MessageID] = struct{}{}
			messageIDs = append(messageIDs, row.MessageID)
		}
	}

	// a message keeps its marker while any of its files is still parked
	parked, err := w.failedRepo.ParkedMessageIDs(ctx, messageIDs, rowIDs)
	if err != nil {
		return res, fmt.Errorf("find parked messages: %w", err)
	}
	messageIDs = without(messageIDs, parked)

	if err := w.messageRepo.SetExpired(ctx, messageIDs, false); err != nil {
		return res, fmt.Errorf("clear expired flags: %w", err)
	}
	if err := w.failedRepo.DeleteByIDs(ctx, rowIDs); err != nil {
		return res, fmt.Errorf("delete dead-letter rows: %w", err)
	}
	return res, nil
}

func without(ids, drop []uint) []uint {
	if len(drop) == 0 {
		return ids
	}
	skip := make(map[uint]struct{}, len(drop))
	for _, id := range drop {
		skip[id] = struct{}{}
	}
	out := ids[:0]
	for _, id := range ids {
		if _, ok := skip[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
