package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/soundsift/soundsift/pkg/analysis/metrics"
	"github.com/soundsift/soundsift/pkg/analysis/signal"
)

// Engine orchestrates one batch run: it enumerates eligible files, skips the
// ones the state store already marks complete, dispatches the rest to a
// bounded worker pool, and assembles completions (in arbitrary order) into a
// DirectoryAnalysisResults. Per-file failures are absorbed into the result
// tree; only state store failures and cancellation propagate to the caller.
type Engine struct {
	opts             *Options
	logger           *slog.Logger
	stateStore       StateStore
	registry         MetricRegistry
	loader           signal.Loader
	processorFactory ProcessorFactory
	scannerFactory   ScannerFactory
	processor        *FileProcessor
	progress         *ProgressCounter

	ctx         context.Context
	cancelFunc  context.CancelFunc
	concurrency int

	processedCount atomic.Int64
	skippedCount   atomic.Int64
	failedCount    atomic.Int64

	stateErrOnce sync.Once
	stateErr     error
}

// fileOutcome carries one completed unit of work from a worker to the
// aggregator.
type fileOutcome struct {
	item     WorkItem
	results  *FileAnalysisResults
	duration time.Duration
}

// NewEngine validates options, fills in defaults, and prepares an Engine.
func NewEngine(ctx context.Context, opts Options) (*Engine, error) {
	if opts.Logger == nil {
		return nil, fmt.Errorf("%w: Logger implementation (slog.Handler) cannot be nil", ErrConfigValidation)
	}
	if opts.EventHooks == nil {
		opts.EventHooks = NoOpHooks{}
	}

	logger := slog.New(opts.Logger).With(slog.String("component", "engine"))

	info, err := os.Stat(opts.InputPath)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot access input path %q: %w", ErrConfigValidation, opts.InputPath, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: input path %q is not a directory", ErrConfigValidation, opts.InputPath)
	}

	registry := opts.Registry
	if registry == nil {
		registry = metrics.DefaultRegistry()
		logger.Debug("Registry not provided, using default built-in registry.")
	}
	loader := opts.Loader
	if loader == nil {
		loader = signal.NewWavLoader(opts.Logger)
		logger.Debug("Loader not provided, using default WAV loader.")
	}

	stateStore := opts.StateStore
	if stateStore == nil {
		if opts.ResumeEnabled {
			return nil, fmt.Errorf("%w: resume enabled but no StateStore provided", ErrConfigValidation)
		}
		stateStore = NoOpStateStore{}
	}
	if opts.ResumeEnabled && opts.StateFilePath == "" {
		opts.StateFilePath = filepath.Join(opts.InputPath, ".soundsift.state")
		logger.Debug("StateFilePath not set, defaulting", "path", opts.StateFilePath)
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
		opts.Concurrency = concurrency
	}

	processorFactory := opts.ProcessorFactory
	if processorFactory == nil {
		processorFactory = NewFileProcessor
	}
	scannerFactory := opts.ScannerFactory
	if scannerFactory == nil {
		scannerFactory = NewScanner
	}

	engineCtx, cancelFunc := context.WithCancel(ctx)

	return &Engine{
		opts:             &opts,
		logger:           logger,
		stateStore:       stateStore,
		registry:         registry,
		loader:           loader,
		processorFactory: processorFactory,
		scannerFactory:   scannerFactory,
		ctx:              engineCtx,
		cancelFunc:       cancelFunc,
		concurrency:      concurrency,
	}, nil
}

// Run executes the batch and blocks until every dispatched unit has
// completed. There is no early return on per-file failure; the returned
// Report describes every enumerated file's outcome. A non-nil error means
// the run itself could not complete: enumeration failure, a state store
// failure, or cancellation.
func (e *Engine) Run() (Report, error) {
	startTime := time.Now()
	e.logger.Info("Starting batch analysis run",
		"input", e.opts.InputPath,
		"concurrency", e.concurrency,
		"resume", e.opts.ResumeEnabled,
		"force", e.opts.Force,
	)

	results := NewDirectoryAnalysisResults(e.opts.InputPath)
	var finalErr error
	stateLoaded := false

	defer func() {
		e.cancelFunc()

		// Persist only after a successful Load; writing an empty index over
		// an unreadable state file would destroy the prior run's record.
		if e.opts.ResumeEnabled && stateLoaded {
			if err := e.stateStore.Persist(e.opts.StateFilePath); err != nil {
				e.logger.Error("Failed to persist processing state",
					slog.String("path", e.opts.StateFilePath), slog.String("error", err.Error()))
				if finalErr == nil {
					finalErr = fmt.Errorf("%w: %w", ErrStateStore, err)
				}
			}
		}
	}()

	// Load prior state before any dispatch decision. A store that cannot be
	// read makes resumability undecidable, so the run does not start.
	if e.opts.ResumeEnabled {
		if err := e.stateStore.Load(e.opts.StateFilePath); err != nil {
			finalErr = fmt.Errorf("%w: %w", ErrStateStore, err)
			return e.report(results, startTime, 0), finalErr
		}
		stateLoaded = true
	}

	scanner := e.scannerFactory(e.opts, e.opts.Logger)
	items, err := scanner.Scan(e.ctx)
	if err != nil {
		finalErr = err
		return e.report(results, startTime, 0), finalErr
	}

	e.progress = NewProgressCounter(int64(len(items)), e.opts.ProgressLabel)
	e.processor = e.processorFactory(e.opts, e.opts.Logger, e.registry)

	workChan := make(chan WorkItem, e.concurrency)
	resultsChan := make(chan fileOutcome, e.concurrency)
	var wg sync.WaitGroup

	for i := 0; i < e.concurrency; i++ {
		wg.Add(1)
		go e.worker(&wg, i, workChan, resultsChan)
	}

	go e.dispatch(items, workChan)

	aggregatorDone := make(chan struct{})
	go e.aggregate(results, resultsChan, aggregatorDone)

	wg.Wait()
	close(resultsChan)
	<-aggregatorDone

	if ctxErr := e.ctx.Err(); ctxErr != nil && e.stateErr == nil {
		e.logger.Info("Batch run cancelled", slog.String("reason", ctxErr.Error()))
		finalErr = ctxErr
	} else if e.stateErr != nil {
		finalErr = fmt.Errorf("%w: %w", ErrStateStore, e.stateErr)
	}

	report := e.report(results, startTime, len(items))
	e.logger.Info("Batch analysis run finished",
		slog.Duration("duration", time.Since(startTime)),
		slog.Int("discovered", report.Summary.TotalDiscovered),
		slog.Int("processed", report.Summary.ProcessedCount),
		slog.Int("skipped", report.Summary.SkippedCount),
		slog.Int("failed", report.Summary.FailedCount),
	)

	if hookErr := e.opts.EventHooks.OnRunComplete(report); hookErr != nil {
		e.logger.Warn("OnRunComplete hook returned an error", slog.String("error", hookErr.Error()))
	}

	return report, finalErr
}

// dispatch makes the per-file skip/submit decision and feeds the worker
// pool. Submission blocks when the pool has no free capacity; that implicit
// backpressure is the only throttle.
func (e *Engine) dispatch(items []WorkItem, workChan chan<- WorkItem) {
	defer close(workChan)
	for _, item := range items {
		select {
		case <-e.ctx.Done():
			return
		default:
		}

		if e.opts.ResumeEnabled && !e.opts.Force && e.stateStore.IsComplete(item.ID) {
			e.logger.Info("Skipping already processed file", slog.String("id", item.ID))
			e.skippedCount.Add(1)
			e.emitStatus(item.ID, StatusSkipped, "already processed", 0)
			e.tickProgress()
			continue
		}

		select {
		case workChan <- item:
		case <-e.ctx.Done():
			return
		}
	}
}

// worker pulls items until the channel closes. A panic inside one file's
// analysis is converted into an error-only result for that file; it never
// takes down the engine or siblings' in-flight work.
func (e *Engine) worker(wg *sync.WaitGroup, workerID int, workChan <-chan WorkItem, resultsChan chan<- fileOutcome) {
	defer wg.Done()
	wLogger := e.logger.With(slog.Int("workerID", workerID))
	wLogger.Debug("Worker started")

	for {
		select {
		case item, ok := <-workChan:
			if !ok {
				wLogger.Debug("Worker shutting down (channel closed)")
				return
			}
			start := time.Now()
			e.emitStatus(item.ID, StatusProcessing, "", 0)
			res := e.processItem(item, wLogger)
			resultsChan <- fileOutcome{item: item, results: res, duration: time.Since(start)}
		case <-e.ctx.Done():
			wLogger.Debug("Worker shutting down (context cancelled)")
			return
		}
	}
}

// processItem loads, optionally calibrates, and analyzes one file. Loader
// and calibration failures produce an error-only result; the processor
// itself never lets a failure escape its boundary.
func (e *Engine) processItem(item WorkItem, wLogger *slog.Logger) (res *FileAnalysisResults) {
	defer func() {
		if r := recover(); r != nil {
			wLogger.Error("Panic recovered while processing file",
				slog.String("id", item.ID), slog.Any("panicValue", r))
			if res == nil {
				res = NewFileAnalysisResults(item.Path)
			}
			res.AddError(fmt.Sprintf("panic: %v", r))
		}
	}()

	sig, err := e.loader.Load(item.Path)
	if err != nil {
		wLogger.Error("Failed to load file", slog.String("id", item.ID), slog.String("error", err.Error()))
		res = NewFileAnalysisResults(item.Path)
		res.AddError(fmt.Errorf("%w: %w", ErrLoadFailed, err).Error())
		return res
	}

	if levels, ok := e.opts.Calibration[recordingStem(item.Path)]; ok {
		if err := sig.CalibrateTo(levels); err != nil {
			wLogger.Error("Failed to calibrate file", slog.String("id", item.ID), slog.String("error", err.Error()))
			res = NewFileAnalysisResults(item.Path)
			res.AddError(fmt.Errorf("%w: %w", ErrLoadFailed, err).Error())
			return res
		}
		wLogger.Debug("Signal calibrated", slog.String("id", item.ID), slog.Any("levels", levels))
	}

	return e.processor.Process(e.ctx, sig, e.opts.ParallelChannels)
}

// aggregate is the single consumer of completions: it records results,
// mutates the state store (one writer, one mutation per success), and
// advances progress exactly once per completed unit.
func (e *Engine) aggregate(results *DirectoryAnalysisResults, resultsChan <-chan fileOutcome, done chan<- struct{}) {
	defer close(done)
	for outcome := range resultsChan {
		results.AddFileResult(outcome.item.ID, outcome.results)

		if outcome.results.Failed() {
			e.failedCount.Add(1)
			msg := strings.Join(outcome.results.Errors(), "; ")
			e.logger.Error("File failed", slog.String("id", outcome.item.ID), slog.String("errors", msg))
			e.emitStatus(outcome.item.ID, StatusFailed, msg, outcome.duration)
		} else {
			e.processedCount.Add(1)
			e.emitStatus(outcome.item.ID, StatusSuccess, "", outcome.duration)
			if e.opts.ResumeEnabled {
				if err := e.markComplete(outcome.item.ID); err != nil {
					e.stateErrOnce.Do(func() {
						e.stateErr = err
						e.cancelFunc()
					})
				}
			}
		}

		e.tickProgress()
	}
}

// markComplete records a success durably. Failure is not recorded at all;
// only success is durable, so failed files are retried on the next run.
func (e *Engine) markComplete(id string) error {
	if err := e.stateStore.MarkComplete(id); err != nil {
		e.logger.Error("Failed to mark file complete", slog.String("id", id), slog.String("error", err.Error()))
		return err
	}
	if err := e.stateStore.Persist(e.opts.StateFilePath); err != nil {
		e.logger.Error("Failed to persist processing state",
			slog.String("path", e.opts.StateFilePath), slog.String("error", err.Error()))
		return err
	}
	return nil
}

// tickProgress advances the monotonic counter and notifies the sink. Every
// enumerated file accounts for exactly one tick.
func (e *Engine) tickProgress() {
	n := e.progress.Increment()
	e.logger.Debug("Progress",
		slog.Int64("completed", n),
		slog.Int64("total", e.progress.Total()),
		slog.String("label", e.progress.Label()))
	if err := e.opts.EventHooks.OnProgress(n, e.progress.Total(), e.progress.Label()); err != nil {
		e.logger.Warn("OnProgress hook returned an error", slog.String("error", err.Error()))
	}
}

// emitStatus forwards a per-file status change to the hooks sink.
func (e *Engine) emitStatus(id string, status Status, message string, duration time.Duration) {
	if err := e.opts.EventHooks.OnFileStatusUpdate(id, status, message, duration); err != nil {
		e.logger.Warn("OnFileStatusUpdate hook returned an error",
			slog.String("id", id), slog.String("error", err.Error()))
	}
}

// report assembles the final Report.
func (e *Engine) report(results *DirectoryAnalysisResults, startTime time.Time, discovered int) Report {
	return Report{
		Summary: Summary{
			InputPath:       e.opts.InputPath,
			StateFilePath:   e.opts.StateFilePath,
			TotalDiscovered: discovered,
			ProcessedCount:  int(e.processedCount.Load()),
			SkippedCount:    int(e.skippedCount.Load()),
			FailedCount:     int(e.failedCount.Load()),
			DurationSeconds: time.Since(startTime).Seconds(),
			Concurrency:     e.concurrency,
			ResumeEnabled:   e.opts.ResumeEnabled,
			Timestamp:       time.Now().UTC(),
		},
		Results: results,
	}
}

// recordingStem returns the file name without directory or extension; it is
// the key calibration levels are looked up by.
func recordingStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
