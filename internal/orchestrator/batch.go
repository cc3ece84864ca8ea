package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/loykin/jarmgr/internal/lifecycle"
)

// Inter-item delays of a batch, per operation.
var batchDelays = map[Op]time.Duration{
	OpStart: 500 * time.Millisecond,
	OpStop:  300 * time.Millisecond,
	OpQuick: 200 * time.Millisecond,
	OpKill:  100 * time.Millisecond,
}

// BatchRestartPause separates the stop and start phases of a batch restart.
const BatchRestartPause = 2 * time.Second

// Batch runs one operation over an unordered list, continuing past
// failures. There is no rollback.
type Batch struct {
	lc    Lifecycle
	sleep Sleeper
	log   *slog.Logger
	// OnOutcome, when set, is called after every item.
	OnOutcome func(op Op, index, total int, o Outcome)
}

func NewBatch(lc Lifecycle, sleep Sleeper, log *slog.Logger) *Batch {
	if sleep == nil {
		sleep = lifecycle.Sleep
	}
	if log == nil {
		log = slog.Default()
	}
	return &Batch{lc: lc, sleep: sleep, log: log}
}

// Run applies op to every id. A restart is a full stop pass, a pause and a
// full start pass. The returned error is only ever the context's.
func (b *Batch) Run(ctx context.Context, op Op, ids []string) (Summary, error) {
	if op == OpRestart {
		sum := Summary{Op: OpRestart}
		stopped, err := b.pass(ctx, OpStop, ids)
		sum.merge(stopped)
		if err != nil {
			return sum, err
		}
		if err := b.sleep(ctx, BatchRestartPause); err != nil {
			return sum, err
		}
		started, err := b.pass(ctx, OpStart, ids)
		sum.merge(started)
		return sum, err
	}
	return b.pass(ctx, op, ids)
}

func (b *Batch) pass(ctx context.Context, op Op, ids []string) (Summary, error) {
	sum := Summary{Op: op}
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		res, err := b.apply(ctx, op, id)
		o := Outcome{ID: id, Result: res, Err: err}
		sum.add(o)
		if err != nil {
			b.log.Warn("batch item failed", "op", string(op), "id", id, "error", err)
		}
		if b.OnOutcome != nil {
			b.OnOutcome(op, i+1, len(ids), o)
		}
		if i < len(ids)-1 {
			if err := b.sleep(ctx, batchDelays[op]); err != nil {
				return sum, err
			}
		}
	}
	b.log.Info("batch complete", "op", string(op), "succeeded", sum.Succeeded, "failed", sum.Failed)
	return sum, nil
}

func (b *Batch) apply(ctx context.Context, op Op, id string) (lifecycle.Result, error) {
	switch op {
	case OpStart:
		return b.lc.Start(ctx, id, nil)
	case OpStop:
		return b.lc.Stop(ctx, id)
	case OpKill:
		return b.lc.Kill(ctx, id)
	case OpQuick:
		return b.lc.Quick(ctx, id)
	default:
		return b.lc.Restart(ctx, id, nil)
	}
}
