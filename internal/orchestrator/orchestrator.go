// Package orchestrator applies lifecycle operations across many units:
// batches, which treat every identifier independently, and sequences,
// named ordered lists that start forward and stop in reverse.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/loykin/jarmgr/internal/lifecycle"
)

// Lifecycle is the per-identifier controller the orchestrator drives.
type Lifecycle interface {
	Start(ctx context.Context, id string, args []string) (lifecycle.Result, error)
	Stop(ctx context.Context, id string) (lifecycle.Result, error)
	Restart(ctx context.Context, id string, args []string) (lifecycle.Result, error)
	Kill(ctx context.Context, id string) (lifecycle.Result, error)
	Quick(ctx context.Context, id string) (lifecycle.Result, error)
	Running(id string) bool
}

// Op names a batch operation.
type Op string

const (
	OpStart   Op = "start"
	OpStop    Op = "stop"
	OpRestart Op = "restart"
	OpKill    Op = "kill"
	OpQuick   Op = "quick"
)

// ParseOp validates a user-supplied operation name.
func ParseOp(s string) (Op, error) {
	switch op := Op(s); op {
	case OpStart, OpStop, OpRestart, OpKill, OpQuick:
		return op, nil
	}
	return "", fmt.Errorf("unsupported batch operation %q (want start, stop, restart, quick or kill)", s)
}

// Outcome is the result of one identifier within a batch or sequence.
type Outcome struct {
	ID      string
	Result  lifecycle.Result
	Err     error
	Skipped bool
}

// Summary aggregates outcomes. Skipped entries count as neither.
type Summary struct {
	Op        Op
	Succeeded int
	Failed    int
	Skipped   int
	Outcomes  []Outcome
	// Aborted is set when a decision policy stopped a sequence early.
	Aborted bool
}

func (s *Summary) add(o Outcome) {
	switch {
	case o.Skipped:
		s.Skipped++
	case o.Err != nil:
		s.Failed++
	default:
		s.Succeeded++
	}
	s.Outcomes = append(s.Outcomes, o)
}

func (s *Summary) merge(o Summary) {
	s.Succeeded += o.Succeeded
	s.Failed += o.Failed
	s.Skipped += o.Skipped
	s.Outcomes = append(s.Outcomes, o.Outcomes...)
	s.Aborted = s.Aborted || o.Aborted
}

// Sleeper pauses between items; it returns early with ctx's error.
type Sleeper func(ctx context.Context, d time.Duration) error
