package detector

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"

	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/metaop/internal/oplog"
)

// BatchResult is the outcome of ProcessAll.
type BatchResult struct {
	// Reports is aligned with the input slice; nil where processing failed.
	Reports []*Report

	// Errors is aligned with the input slice; nil where processing succeeded.
	Errors []error

	// Succeeded and Failed count operations by outcome.
	Succeeded int
	Failed    int
}

// ProcessAll runs detection over independent operations concurrently, at
// most limit at a time (limit <= 0 means GOMAXPROCS). Every operation gets
// its own Detector from src for the duration of its pass.
//
// A failure on one operation is recorded in the result and does not abort
// the batch. Cancelling ctx stops scheduling further operations; passes
// already running finish normally. The returned error is non-nil only
// when ctx was cancelled.
func ProcessAll(ctx context.Context, ops []*oplog.Operation, src Source, limit int) (*BatchResult, error) {
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	result := &BatchResult{
		Reports: make([]*Report, len(ops)),
		Errors:  make([]error, len(ops)),
	}
	if len(ops) == 0 {
		return result, nil
	}

	slog.Info("processing operations",
		"operations", len(ops),
		"concurrency", limit,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	var succeeded, failed atomic.Int64
	for i, op := range ops {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			report, err := processOne(gctx, op, src)
			if err != nil {
				failed.Add(1)
				result.Errors[i] = err
				slog.Error("operation processing failed",
					"index", i,
					"error", err,
				)
				return nil // don't abort batch on individual failure
			}
			succeeded.Add(1)
			result.Reports[i] = report
			return nil
		})
	}

	err := g.Wait()
	result.Succeeded = int(succeeded.Load())
	result.Failed = int(failed.Load())

	slog.Info("batch complete",
		"succeeded", result.Succeeded,
		"failed", result.Failed,
	)
	if err != nil {
		return result, fmt.Errorf("process operations: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("process operations: %w", err)
	}
	return result, nil
}

func processOne(ctx context.Context, op *oplog.Operation, src Source) (*Report, error) {
	if op == nil {
		return nil, &RuntimeError{Code: ErrCodeInvalidOperation, Message: "operation is nil"}
	}
	d, err := src.Acquire()
	if err != nil {
		return nil, fmt.Errorf("acquire detector for %s: %w", op.ID, err)
	}
	defer src.Release(d)

	if d.telemetry == nil {
		return d.RunContext(ctx, op)
	}
	ctx, span := d.telemetry.startSpan(ctx, op)
	defer span.End()

	report, err := d.RunContext(ctx, op)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	setSpanResult(span, report)
	return report, nil
}
