package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/loykin/jarmgr"
	"github.com/loykin/jarmgr/internal/config"
	"github.com/loykin/jarmgr/internal/orchestrator"
)

// progress prints one line per finished item of a batch or sequence.
func (c *command) progress(op jarmgr.Op, i, n int, o jarmgr.Outcome) {
	switch {
	case o.Skipped:
		c.printf("[%d/%d] %s %s: skipped\n", i, n, op, o.ID)
	case o.Err != nil:
		c.printf("[%d/%d] %s %s: FAILED: %v\n", i, n, op, o.ID, o.Err)
	case o.Result.PID > 0:
		c.printf("[%d/%d] %s %s: ok (PID %d)\n", i, n, op, o.ID, o.Result.PID)
	default:
		c.printf("[%d/%d] %s %s: ok\n", i, n, op, o.ID)
	}
}

func (c *command) summary(s jarmgr.Summary) {
	c.printf("%s: %d succeeded, %d failed", s.Op, s.Succeeded, s.Failed)
	if s.Skipped > 0 {
		c.printf(", %d skipped", s.Skipped)
	}
	if s.Aborted {
		c.printf(" (aborted)")
	}
	c.printf("\n")
}

// Batch applies one operation to every named unit independently.
func (c *command) Batch(ctx context.Context, f BatchFlags) error {
	op, err := orchestrator.ParseOp(f.Op)
	if err != nil {
		return err
	}
	if len(f.Names) == 0 {
		return fmt.Errorf("batch %s needs at least one jar", op)
	}
	return c.with(func(m *jarmgr.Manager) error {
		s, err := m.Batch(ctx, op, f.Names, c.progress)
		c.summary(s)
		return err
	})
}

func (c *command) SequenceCreate(f SequenceFlags) error {
	ids := make([]string, 0, len(f.Names))
	for _, n := range f.Names {
		id := config.UnitID(n)
		if err := config.ValidateID(id); err != nil {
			return err
		}
		ids = append(ids, id)
	}
	return c.with(func(m *jarmgr.Manager) error {
		if err := m.Sequences().Create(f.Name, ids); err != nil {
			return err
		}
		c.printf("Sequence %s: %s\n", f.Name, strings.Join(ids, " -> "))
		return nil
	})
}

func (c *command) runner(m *jarmgr.Manager, f SequenceFlags) (*orchestrator.Runner, error) {
	policy, err := orchestrator.ParsePolicy(f.OnFailure, c.in, c.out)
	if err != nil {
		return nil, err
	}
	return m.SequenceRunner(policy, c.progress), nil
}

func (c *command) SequenceStart(ctx context.Context, f SequenceFlags) error {
	return c.with(func(m *jarmgr.Manager) error {
		r, err := c.runner(m, f)
		if err != nil {
			return err
		}
		s, err := r.Start(ctx, f.Name)
		c.summary(s)
		return err
	})
}

func (c *command) SequenceStop(ctx context.Context, f SequenceFlags) error {
	return c.with(func(m *jarmgr.Manager) error {
		s, err := m.SequenceRunner(orchestrator.ContinueOnFailure, c.progress).Stop(ctx, f.Name)
		c.summary(s)
		return err
	})
}

func (c *command) SequenceRestart(ctx context.Context, f SequenceFlags) error {
	return c.with(func(m *jarmgr.Manager) error {
		r, err := c.runner(m, f)
		if err != nil {
			return err
		}
		s, err := r.Restart(ctx, f.Name)
		c.summary(s)
		return err
	})
}

func (c *command) SequenceList() error {
	return c.with(func(m *jarmgr.Manager) error {
		seqs, err := m.Sequences().List()
		if err != nil {
			return err
		}
		if len(seqs) == 0 {
			c.printf("No sequences\n")
			return nil
		}
		for _, s := range seqs {
			c.printf("%s (%d units)\n", s.Name, s.Count)
		}
		return nil
	})
}

func (c *command) SequenceShow(f SequenceFlags) error {
	return c.with(func(m *jarmgr.Manager) error {
		ids, err := m.Sequences().Load(f.Name)
		if err != nil {
			return err
		}
		for i, id := range ids {
			c.printf("%d. %s\n", i+1, id)
		}
		return nil
	})
}

func (c *command) SequenceDelete(f SequenceFlags) error {
	return c.with(func(m *jarmgr.Manager) error {
		if err := m.Sequences().Delete(f.Name); err != nil {
			return err
		}
		c.printf("Deleted sequence %s\n", f.Name)
		return nil
	})
}

func (c *command) SequenceStatus(f SequenceFlags) error {
	return c.with(func(m *jarmgr.Manager) error {
		states, err := m.SequenceRunner(orchestrator.ContinueOnFailure, nil).Status(f.Name)
		if err != nil {
			return err
		}
		running := 0
		for i, s := range states {
			mark := "stopped"
			if s.Running {
				mark = "running"
				running++
			}
			c.printf("%d. %-30s %s\n", i+1, s.ID, mark)
		}
		c.printf("%d/%d running\n", running, len(states))
		return nil
	})
}
