package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Branch is one node of an in-stage fan-out. A branch runs once all of its
// Deps have finished, on a clone of the state merged so far. Merge folds its
// result back into the shared state.
type Branch[S any] struct {
	Name  string
	Deps  []string
	Run   func(ctx context.Context, st S) (S, error)
	Merge func(dst *S, src S)

	// Optional branches may fail without failing the fan-out; dependents still run.
	Optional bool
}

// Fanout runs branches in dependency waves; branches within a wave run
// concurrently. Results are merged in declaration order so the outcome does
// not depend on scheduling. Dependents of a failed required branch are skipped.
func Fanout[S any](ctx context.Context, clone func(S) S, st S, branches []Branch[S]) (S, *RunState, error) {
	rs := &RunState{}
	rs.ensure()
	if _, err := validateDAG(branches); err != nil {
		return st, rs, err
	}
	if clone == nil {
		clone = func(s S) S { return s }
	}
	for _, b := range branches {
		rs.EnsureStage(b.Name)
	}

	var errs []error
	for {
		wave := readyBranches(rs, branches)
		if len(wave) == 0 {
			break
		}
		results := make([]S, len(wave))
		failures := make([]error, len(wave))
		var g errgroup.Group
		for i, b := range wave {
			ss := rs.Stages[b.Name]
			ss.Status = StageRunning
			ss.Attempts++
			markStarted(ss)
			work := clone(st)
			g.Go(func() error {
				results[i], failures[i] = safeBranch(ctx, b, work)
				return nil
			})
		}
		_ = g.Wait()

		for i, b := range wave {
			ss := rs.Stages[b.Name]
			if err := failures[i]; err != nil {
				markFinished(ss, errString(err))
				if b.Optional {
					ss.Status = StageSkipped
					continue
				}
				ss.Status = StageFailed
				if rs.FailedStage == "" {
					rs.FailedStage = b.Name
				}
				errs = append(errs, fmt.Errorf("branch %q: %w", b.Name, err))
				continue
			}
			ss.Status = StageSucceeded
			markFinished(ss, "")
			if b.Merge != nil {
				b.Merge(&st, results[i])
			}
		}
	}

	for _, b := range branches {
		if ss := rs.Stages[b.Name]; ss.Status == StagePending {
			ss.Status = StageSkipped
			ss.LastError = "dependency failed"
		}
	}
	return st, rs, errors.Join(errs...)
}

// readyBranches returns pending branches whose deps have all finished without
// a required failure. Pending branches blocked by a failure stay pending.
func readyBranches[S any](rs *RunState, branches []Branch[S]) []Branch[S] {
	var out []Branch[S]
	for _, b := range branches {
		if rs.Status(b.Name) != StagePending {
			continue
		}
		ok := true
		for _, dep := range b.Deps {
			switch rs.Status(dep) {
			case StageSucceeded, StageSkipped:
			default:
				ok = false
			}
		}
		if ok {
			out = append(out, b)
		}
	}
	return out
}

func safeBranch[S any](ctx context.Context, b Branch[S], st S) (out S, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("branch %q panicked: %v", b.Name, r)
		}
	}()
	if b.Run == nil {
		return st, fmt.Errorf("branch %q: Run is nil", b.Name)
	}
	return b.Run(ctx, st)
}

func validateDAG[S any](branches []Branch[S]) ([]string, error) {
	if len(branches) == 0 {
		return nil, nil
	}
	seen := map[string]bool{}
	for _, b := range branches {
		name := strings.TrimSpace(b.Name)
		if name == "" {
			return nil, fmt.Errorf("branch missing Name")
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate branch name %q", name)
		}
		seen[name] = true
	}
	for _, b := range branches {
		for _, dep := range b.Deps {
			if !seen[dep] {
				return nil, fmt.Errorf("branch %q depends on unknown branch %q", b.Name, dep)
			}
		}
	}

	// Kahn topological sort, stable by input order.
	deg := map[string]int{}
	out := map[string][]string{}
	for _, b := range branches {
		deg[b.Name] = 0
	}
	for _, b := range branches {
		for _, dep := range b.Deps {
			deg[b.Name]++
			out[dep] = append(out[dep], b.Name)
		}
	}

	order := make([]string, 0, len(branches))
	added := map[string]bool{}
	for {
		progressed := false
		for _, b := range branches {
			if added[b.Name] || deg[b.Name] != 0 {
				continue
			}
			added[b.Name] = true
			order = append(order, b.Name)
			for _, n := range out[b.Name] {
				deg[n]--
			}
			progressed = true
		}
		if !progressed {
			break
		}
	}
	if len(order) != len(branches) {
		return nil, fmt.Errorf("cycle detected in branch graph")
	}
	return order, nil
}
