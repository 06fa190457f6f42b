package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/yourusername/reel-extract-go/internal/domain"
	"github.com/yourusername/reel-extract-go/internal/infrastructure"
	"github.com/yourusername/reel-extract-go/pkg/logger"
	"go.uber.org/zap"
)

// FetchOrchestrator runs a platform's strategy chain until one produces a video
type FetchOrchestrator struct {
	chains map[domain.Platform][]domain.Strategy
	temps  *infrastructure.TempFileManager
	repo   domain.FetchRepository
	config *domain.FetchConfig
	logger *zap.Logger
	events *logger.MultiLogger
	sem    chan struct{}
}

// NewFetchOrchestrator creates an orchestrator. repo and events may be nil.
func NewFetchOrchestrator(
	chains map[domain.Platform][]domain.Strategy,
	temps *infrastructure.TempFileManager,
	repo domain.FetchRepository,
	config *domain.FetchConfig,
	logger *zap.Logger,
	events *logger.MultiLogger,
) *FetchOrchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}

	var sem chan struct{}
	if config.ConcurrentLimit > 0 {
		sem = make(chan struct{}, config.ConcurrentLimit)
	}

	return &FetchOrchestrator{
		chains: chains,
		temps:  temps,
		repo:   repo,
		config: config,
		logger: logger,
		events: events,
		sem:    sem,
	}
}

// ChainNames returns the ordered strategy names for a platform
func (o *FetchOrchestrator) ChainNames(platform domain.Platform) []string {
	chain := o.chains[platform]
	names := make([]string, 0, len(chain))
	for _, s := range chain {
		names = append(names, s.Name())
	}
	return names
}

// Ready reports whether the orchestrator can serve requests
func (o *FetchOrchestrator) Ready() error {
	if len(o.chains) == 0 {
		return fmt.Errorf("no fetch chains configured")
	}
	if err := o.temps.Writable(); err != nil {
		return fmt.Errorf("temp directory not writable: %w", err)
	}
	return nil
}

// Fetch downloads the video for req and lends it to consume. The file is
// deleted when consume returns; consume is never called for a failed fetch.
// Failures are returned as *domain.FetchError, except errors from consume
// which are returned unchanged. A panic in consume is recorded as a failed
// fetch and then re-raised.
func (o *FetchOrchestrator) Fetch(ctx context.Context, req domain.DownloadRequest, consume domain.Consumer) (err error) {
	start := time.Now()
	run := &fetchRun{req: req}

	defer func() {
		if r := recover(); r != nil {
			o.record(run, time.Since(start), fmt.Errorf("consumer panicked: %v", r))
			panic(r)
		}
		o.record(run, time.Since(start), err)
	}()

	return o.fetch(ctx, run, consume)
}

// fetchRun tracks one Fetch call for history and logs
type fetchRun struct {
	req      domain.DownloadRequest
	artifact *domain.Artifact
	attempts int
}

func (o *FetchOrchestrator) fetch(ctx context.Context, run *fetchRun, consume domain.Consumer) error {
	req := run.req
	chain := o.chains[req.Platform]
	if !req.IsSupported() || len(chain) == 0 {
		return &domain.FetchError{Reason: domain.ReasonUnsupportedPlatform, Detail: req.SourceURL}
	}

	parent := ctx
	if o.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.RequestTimeout)
		defer cancel()
	}

	if o.sem != nil {
		select {
		case o.sem <- struct{}{}:
			defer func() { <-o.sem }()
		case <-ctx.Done():
			return abandoned(parent, ctx, nil)
		}
	}

	var failures []domain.AttemptFailure
	for _, strategy := range chain {
		if ctx.Err() != nil {
			return abandoned(parent, ctx, failures)
		}
		run.attempts++

		delivered := false
		err := o.temps.WithTempFile(req, strategy.Name(), func(path string) error {
			media, err := o.attempt(ctx, strategy, req, path)
			if err != nil {
				return err
			}
			if media.SizeBytes > o.config.MaxSizeBytes {
				return &domain.FetchError{
					Reason:   domain.ReasonTooLarge,
					Strategy: strategy.Name(),
					Detail:   fmt.Sprintf("%d bytes exceeds limit of %d", media.SizeBytes, o.config.MaxSizeBytes),
				}
			}

			run.artifact = &domain.Artifact{
				Request:   req,
				Path:      path,
				SizeBytes: media.SizeBytes,
				Metadata:  media.Metadata,
				Strategy:  strategy.Name(),
			}
			delivered = true
			o.logger.Info("Fetch succeeded",
				zap.String("request_id", req.ID),
				zap.String("platform", string(req.Platform)),
				zap.String("strategy", strategy.Name()),
				zap.Int64("size_bytes", media.SizeBytes))
			if consume == nil {
				return nil
			}
			return consume(run.artifact)
		})

		if delivered {
			return err
		}
		if domain.IsReason(err, domain.ReasonTooLarge) {
			o.logger.Warn("Video exceeds size limit",
				zap.String("request_id", req.ID),
				zap.String("strategy", strategy.Name()),
				zap.Error(err))
			return err
		}
		if ctx.Err() != nil {
			failures = append(failures, domain.AttemptFailure{Strategy: strategy.Name(), Detail: err.Error()})
			return abandoned(parent, ctx, failures)
		}

		failures = append(failures, domain.AttemptFailure{Strategy: strategy.Name(), Detail: err.Error()})
		o.logger.Warn("Strategy failed, trying next",
			zap.String("request_id", req.ID),
			zap.String("strategy", strategy.Name()),
			zap.Error(err))
		o.event("attempt_failed", zap.String("request_id", req.ID),
			zap.String("strategy", strategy.Name()), zap.String("error", err.Error()))
	}

	last := failures[len(failures)-1]
	return &domain.FetchError{
		Reason:   domain.ReasonAllMethodsExhausted,
		Strategy: last.Strategy,
		Detail:   last.Detail,
		Attempts: failures,
	}
}

// attempt runs one strategy under the per-attempt timeout and converts panics into errors
func (o *FetchOrchestrator) attempt(ctx context.Context, strategy domain.Strategy, req domain.DownloadRequest, dest string) (media *domain.Media, err error) {
	if o.config.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.AttemptTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Strategy panicked",
				zap.String("request_id", req.ID),
				zap.String("strategy", strategy.Name()),
				zap.Any("panic", r))
			if o.events != nil {
				o.events.LogAppError("Strategy panicked",
					zap.String("request_id", req.ID),
					zap.String("strategy", strategy.Name()),
					zap.Any("panic", r))
			}
			media = nil
			err = domain.ExtractorErrorf(strategy.Name(), "panic: %v", r)
		}
	}()

	media, err = strategy.Attempt(ctx, req, dest)
	if err != nil {
		if domain.ReasonOf(err) == "" {
			err = domain.NewExtractorError(strategy.Name(), err)
		}
		return nil, err
	}

	// size is measured on disk rather than trusted from the strategy
	info, statErr := os.Stat(dest)
	if statErr != nil {
		return nil, domain.ExtractorErrorf(strategy.Name(), "reported success but wrote no file")
	}
	if media == nil {
		media = &domain.Media{}
	}
	media.Path = dest
	media.SizeBytes = info.Size()
	return media, nil
}

// abandoned builds the failure for a request stopped before any strategy
// succeeded. Hitting the request timeout counts as exhausting the chain;
// only the caller ending parent counts as a cancellation.
func abandoned(parent, ctx context.Context, failures []domain.AttemptFailure) error {
	if parent.Err() == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		fetchErr := &domain.FetchError{
			Reason:   domain.ReasonAllMethodsExhausted,
			Detail:   "request timed out",
			Attempts: failures,
			Err:      ctx.Err(),
		}
		if len(failures) > 0 {
			fetchErr.Strategy = failures[len(failures)-1].Strategy
		}
		return fetchErr
	}
	return &domain.FetchError{Reason: domain.ReasonCancelled, Attempts: failures, Err: ctx.Err()}
}

// record logs the outcome and stores it in history
func (o *FetchOrchestrator) record(run *fetchRun, elapsed time.Duration, err error) {
	fields := []zap.Field{
		zap.String("request_id", run.req.ID),
		zap.String("url", run.req.SourceURL),
		zap.String("platform", string(run.req.Platform)),
		zap.Int("attempts", run.attempts),
		zap.Duration("elapsed", elapsed),
	}

	var fetchErr *domain.FetchError
	switch {
	case err == nil:
		o.event("fetch_succeeded", append(fields,
			zap.String("strategy", run.artifact.Strategy),
			zap.Int64("size_bytes", run.artifact.SizeBytes))...)
	case errors.As(err, &fetchErr):
		o.event("fetch_"+string(fetchErr.Reason), append(fields, zap.String("error", err.Error()))...)
		if fetchErr.Reason == domain.ReasonAllMethodsExhausted {
			o.logger.Error("All fetch strategies failed", append(fields, zap.Error(err))...)
		}
	default:
		o.event("delivery_failed", append(fields, zap.String("error", err.Error()))...)
	}

	if o.repo == nil {
		return
	}
	if repoErr := o.repo.Create(domain.NewFetchRecord(run.req, run.artifact, run.attempts, elapsed, err)); repoErr != nil {
		o.logger.Warn("Failed to record fetch history", zap.String("request_id", run.req.ID), zap.Error(repoErr))
	}
}

func (o *FetchOrchestrator) event(name string, fields ...zap.Field) {
	if o.events != nil {
		o.events.LogFetchEvent(name, fields...)
	}
}
