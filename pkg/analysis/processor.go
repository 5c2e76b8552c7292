package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/soundsift/soundsift/pkg/analysis/metrics"
	"github.com/soundsift/soundsift/pkg/analysis/signal"
)

// FileProcessor applies every enabled metric, in configuration order, to one
// loaded signal. It owns the per-channel fan-out and the partial-failure
// policy: a metric that cannot be resolved, or an error surfaced from the
// parallel channel path, aborts the file's *remaining* metrics while results
// already recorded are preserved and returned. Nothing is ever raised past
// the Process boundary.
type FileProcessor struct {
	opts               *Options
	registry           MetricRegistry
	logger             *slog.Logger
	channelConcurrency int
}

// NewFileProcessor creates a FileProcessor. It is stateless across files and
// safe to share between workers.
func NewFileProcessor(opts *Options, loggerHandler slog.Handler, registry MetricRegistry) *FileProcessor {
	logger := slog.New(loggerHandler).With(slog.String("component", "processor"))
	cc := opts.ChannelConcurrency
	if cc <= 0 {
		cc = DefaultChannelConcurrency
	}
	return &FileProcessor{
		opts:               opts,
		registry:           registry,
		logger:             logger,
		channelConcurrency: cc,
	}
}

// Process runs the configured metrics over the signal and returns the file's
// results. parallel enables the bounded concurrent channel fan-out.
func (p *FileProcessor) Process(ctx context.Context, sig *signal.Signal, parallel bool) *FileAnalysisResults {
	start := time.Now()
	results := NewFileAnalysisResults(sig.Path)

	for _, cfg := range p.opts.Metrics {
		if !cfg.Enabled {
			p.logger.Debug("Metric disabled, skipping", slog.String("metric", cfg.Name))
			continue
		}

		metric, err := p.registry.Get(cfg.Name)
		if err != nil {
			resErr := fmt.Errorf("%w: %w", ErrMetricResolution, err)
			p.logger.Error("Metric resolution failed, aborting remaining metrics for file",
				slog.String("path", sig.Path), slog.String("metric", cfg.Name), slog.String("error", err.Error()))
			results.AddError(resErr.Error())
			return results
		}
		if err := metric.Configure(cfg.Options); err != nil {
			resErr := fmt.Errorf("%w: configure %q: %w", ErrMetricResolution, cfg.Name, err)
			p.logger.Error("Metric configuration failed, aborting remaining metrics for file",
				slog.String("path", sig.Path), slog.String("metric", cfg.Name), slog.String("error", err.Error()))
			results.AddError(resErr.Error())
			return results
		}

		mcr, fatal := p.runMetric(ctx, sig, metric, parallel)
		// The per-channel entries are recorded even when the metric failed;
		// one entry per attempted channel, success or not.
		results.AddMetricResult(cfg.Name, mcr)
		if fatal != nil {
			p.logger.Error("Metric aborted remaining metrics for file",
				slog.String("path", sig.Path), slog.String("metric", cfg.Name), slog.String("error", fatal.Error()))
			results.AddError(fmt.Sprintf("metric %q: %s", cfg.Name, fatal.Error()))
			return results
		}
		p.logger.Debug("Metric completed",
			slog.String("path", sig.Path), slog.String("metric", cfg.Name),
			slog.Int("channels", mcr.Len()))
	}

	p.logger.Debug("File processed",
		slog.String("path", sig.Path),
		slog.Duration("duration", time.Since(start)),
		slog.Bool("failed", results.Failed()))
	return results
}

// runMetric fans one configured metric out over the signal's channels and
// returns the merged per-channel results. The returned error, when non-nil,
// aborts the file's remaining metrics: on the sequential path that happens
// only for panics and cancellation (a plain calculation error stays isolated
// at the channel level); on the parallel path the join surfaces the first
// channel error of any kind, mirroring a pool join re-raising.
func (p *FileProcessor) runMetric(ctx context.Context, sig *signal.Signal, metric metrics.Metric, parallel bool) (*MultiChannelResult, error) {
	channels := sig.Channels()
	mcr := NewMultiChannelResult()

	if parallel && channels > 1 {
		p.logger.Debug("Running channels in parallel",
			slog.Int("channels", channels), slog.Int("bound", p.channelConcurrency))
		results := make([]ChannelResult, channels)
		fatals := make([]error, channels)
		sem := make(chan struct{}, p.channelConcurrency)
		var wg sync.WaitGroup
		for i := 0; i < channels; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()
				label := ChannelLabel(i, channels, true)
				ch, err := sig.Channel(i)
				if err != nil {
					results[i] = ChannelResult{Channel: label, Err: err.Error()}
					fatals[i] = err
					return
				}
				results[i], fatals[i] = p.processChannel(ctx, metric, ch, label)
			}(i)
		}
		wg.Wait()

		var first error
		for i := range results {
			mcr.Add(results[i])
			if first != nil {
				continue
			}
			if fatals[i] != nil {
				first = fatals[i]
			} else if results[i].Err != "" {
				first = errors.New(results[i].Err)
			}
		}
		return mcr, first
	}

	for i := 0; i < channels; i++ {
		label := ChannelLabel(i, channels, false)
		ch, err := sig.Channel(i)
		if err != nil {
			mcr.Add(ChannelResult{Channel: label, Err: err.Error()})
			return mcr, err
		}
		res, fatal := p.processChannel(ctx, metric, ch, label)
		mcr.Add(res)
		if fatal != nil {
			return mcr, fatal
		}
	}
	return mcr, nil
}

// processChannel is the unit of retryable work: one metric applied to one
// channel. The channel is segmented (currently the whole channel is a single
// segment; sub-window segmentation is an extension point), the metric runs
// once per segment, and the per-segment outputs reduce to the first
// segment's result. Panics are recovered here and reported as the fatal
// return; they never propagate into the worker pool.
func (p *FileProcessor) processChannel(ctx context.Context, metric metrics.Metric, ch *signal.Channel, label string) (res ChannelResult, fatal error) {
	res = ChannelResult{Channel: label}
	defer func() {
		if r := recover(); r != nil {
			fatal = fmt.Errorf("%w: panic: %v", ErrCalculation, r)
			res.Err = fatal.Error()
		}
	}()

	segments := segmentChannel(ch)
	values := make([]metrics.Value, 0, len(segments))
	for _, seg := range segments {
		// Cancellation is observed between segments only; a started
		// calculation runs to completion.
		if err := ctx.Err(); err != nil {
			res.Err = err.Error()
			return res, err
		}
		v, err := metric.Calculate(seg)
		if err != nil {
			res.Err = fmt.Errorf("%w: %w", ErrCalculation, err).Error()
			return res, nil
		}
		values = append(values, v)
	}

	res.Value = values[0]
	return res, nil
}

// segmentChannel splits a channel into analysis segments. The core treats
// the whole channel as one segment; windowed segmentation (and with it a
// multi-segment reduction policy) is a documented extension point.
func segmentChannel(ch *signal.Channel) []*signal.Channel {
	return []*signal.Channel{ch}
}
