// Package batch splits large collections into fixed-size chunks, applies a
// caller-supplied transform per chunk in order, and periodically yields to
// the scheduler so long-running processing cannot monopolize the host.
package batch

import (
	"context"
	"fmt"
	"runtime"

	"github.com/seuros/geoviz/src/logging"
)

const (
	// DefaultChunkSize is the chunk size used by ProcessLargeDataset.
	DefaultChunkSize = 1000
	// DefaultYieldEvery yields to the scheduler after this many chunks.
	DefaultYieldEvery = 10
	// LargeDatasetThreshold is the input size above which ProcessLargeDataset
	// switches from a single direct transform to chunked processing.
	LargeDatasetThreshold = 10000
)

// Transform converts one chunk of inputs into outputs. A per-item-preserving
// transform returns exactly one output per input; the processor itself only
// requires that chunk results concatenate in input order.
type Transform[T, R any] func(chunk []T) ([]R, error)

// ProgressFunc is invoked after each chunk with the fraction of items
// completed (0..1] and the absolute count processed so far.
type ProgressFunc func(fraction float64, processed int)

// Options control chunking behavior.
type Options struct {
	// ChunkSize is the number of items per chunk. Must be >= 1.
	ChunkSize int
	// YieldEvery yields to the scheduler after this many chunks.
	// Zero means DefaultYieldEvery.
	YieldEvery int
	// OnProgress, if set, is called after every chunk.
	OnProgress ProgressFunc
	// OnYield, if set, is called at each yield point after the scheduler
	// yield. Used by hosts (and tests) to observe that processing is not
	// atomic for large inputs.
	OnYield func()
}

// TransformError reports which chunk a failing transform was processing.
type TransformError struct {
	Chunk int
	Err   error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("batch transform failed on chunk %d: %v", e.Chunk, e.Err)
}

func (e *TransformError) Unwrap() error {
	return e.Err
}

// Process applies transform to consecutive chunks of items and concatenates
// the results in input order. The last chunk may be shorter than ChunkSize.
// Chunk i+1 begins only after chunk i's transform and progress callback have
// completed. A transform failure aborts the whole run with a *TransformError;
// no partial results are returned.
func Process[T, R any](ctx context.Context, items []T, transform Transform[T, R], opts Options) ([]R, error) {
	if opts.ChunkSize < 1 {
		return nil, fmt.Errorf("batch: chunk size %d, must be >= 1", opts.ChunkSize)
	}
	yieldEvery := opts.YieldEvery
	if yieldEvery <= 0 {
		yieldEvery = DefaultYieldEvery
	}

	out := make([]R, 0, len(items))
	total := len(items)

	for chunkIdx, start := 0, 0; start < total; chunkIdx, start = chunkIdx+1, start+opts.ChunkSize {
		end := start + opts.ChunkSize
		if end > total {
			end = total
		}

		transformed, err := transform(items[start:end])
		if err != nil {
			return nil, &TransformError{Chunk: chunkIdx, Err: err}
		}
		out = append(out, transformed...)

		if opts.OnProgress != nil {
			opts.OnProgress(float64(end)/float64(total), end)
		}

		// Yield between every Nth chunk so interleaved work (input
		// handling, other renders) gets scheduled.
		if (chunkIdx+1)%yieldEvery == 0 && end < total {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			runtime.Gosched()
			if opts.OnYield != nil {
				opts.OnYield()
			}
		}
	}

	return out, nil
}

// ProcessLargeDataset transforms items, chunking through Process when the
// input exceeds LargeDatasetThreshold and applying transform directly
// otherwise, avoiding chunking overhead for small inputs. Progress on the
// chunked path is reported through logger at debug level.
func ProcessLargeDataset[T, R any](ctx context.Context, items []T, transform Transform[T, R], logger logging.Logger) ([]R, error) {
	if logger == nil {
		logger = &logging.NoOpLogger{}
	}

	if len(items) <= LargeDatasetThreshold {
		out, err := transform(items)
		if err != nil {
			return nil, &TransformError{Chunk: 0, Err: err}
		}
		return out, nil
	}

	logger.Debug("Processing large dataset in chunks", "items", len(items), "chunk_size", DefaultChunkSize)
	return Process(ctx, items, transform, Options{
		ChunkSize: DefaultChunkSize,
		OnProgress: func(fraction float64, processed int) {
			if logger.IsDebugEnabled() {
				logger.Debug("Batch progress", "percent", int(fraction*100), "processed", processed)
			}
		},
	})
}

// Map is a convenience for per-item transforms: it lifts fn over a chunk.
func Map[T, R any](fn func(T) (R, error)) Transform[T, R] {
	return func(chunk []T) ([]R, error) {
		out := make([]R, 0, len(chunk))
		for _, item := range chunk {
			r, err := fn(item)
			if err != nil {
				return nil, err
			}
			out = append(out, r)
		}
		return out, nil
	}
}
