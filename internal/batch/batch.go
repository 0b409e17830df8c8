// Package batch discovers assembled documents in the outbox and drives
// their delivery, sequentially or in bounded concurrent blocks.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/gridforge-lab/gridforge/internal/delivery"
)

// Document name prefixes discovered in the outbox. Files already renamed
// with DONE_ are skipped.
const (
	PrefixMasterData       = "mp_"
	PrefixAccountingSeries = "ts_"
	PrefixExchangeSeries   = "ex_"
	PrefixContract         = "contract_"

	donePrefix = "DONE_"
)

const (
	DefaultBlockSize     = 10
	DefaultPhaseCooldown = 30 * time.Second
)

// Summary reports one dispatch run.
type Summary struct {
	RunID     string
	Succeeded int
	Failed    int
	Skipped   int
	Elapsed   time.Duration
}

// Runner sends a batch of documents through a delivery sender. Master data
// and time series go first; contracts form a second phase that only starts
// when the first phase finished clean, after a cooldown that gives the hub
// time to settle the registrations the contracts refer to.
type Runner struct {
	sender        Sender
	outbox        string
	blockSize     int
	phaseCooldown time.Duration
	sleep         func(context.Context, time.Duration) error

	mu         sync.Mutex
	failedKeys map[string]struct{}
}

// Sender is the delivery surface the runner drives.
type Sender interface {
	SendFile(ctx context.Context, role delivery.Role, path string) (delivery.Result, error)
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithBlockSize bounds concurrent sends in RunConcurrent.
func WithBlockSize(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.blockSize = n
		}
	}
}

// WithPhaseCooldown overrides the pause between the registration and
// contract phases.
func WithPhaseCooldown(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d >= 0 {
			r.phaseCooldown = d
		}
	}
}

// withSleep replaces the cooldown clock. Used by tests.
func withSleep(fn func(context.Context, time.Duration) error) RunnerOption {
	return func(r *Runner) { r.sleep = fn }
}

func NewRunner(sender Sender, outbox string, opts ...RunnerOption) *Runner {
	r := &Runner{
		sender:        sender,
		outbox:        outbox,
		blockSize:     DefaultBlockSize,
		phaseCooldown: DefaultPhaseCooldown,
		failedKeys:    make(map[string]struct{}),
		sleep: func(ctx context.Context, d time.Duration) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
				return nil
			}
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Discover lists outbox files carrying the given prefix, sorted by name.
func (r *Runner) Discover(prefix string) ([]string, error) {
	entries, err := os.ReadDir(r.outbox)
	if err != nil {
		return nil, fmt.Errorf("failed to read outbox %s: %w", r.outbox, err)
	}
	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, donePrefix) {
			continue
		}
		if strings.HasPrefix(name, prefix) {
			files = append(files, filepath.Join(r.outbox, name))
		}
	}
	sort.Strings(files)
	return files, nil
}

// RunSequential sends the whole outbox one file at a time.
func (r *Runner) RunSequential(ctx context.Context) (Summary, error) {
	return r.run(ctx, false)
}

// RunConcurrent sends each phase with at most blockSize in-flight
// deliveries.
func (r *Runner) RunConcurrent(ctx context.Context) (Summary, error) {
	return r.run(ctx, true)
}

func (r *Runner) run(ctx context.Context, concurrent bool) (Summary, error) {
	start := time.Now()
	summary := Summary{RunID: uuid.NewString()}

	r.mu.Lock()
	r.failedKeys = make(map[string]struct{})
	r.mu.Unlock()

	slog.Info("[Batch] Run starting",
		"run_id", summary.RunID,
		"concurrent", concurrent,
		"block_size", r.blockSize,
	)

	phase1 := []struct {
		prefix string
		role   delivery.Role
	}{
		{PrefixMasterData, delivery.RoleDSO},
		{PrefixAccountingSeries, delivery.RoleDSO},
		{PrefixExchangeSeries, delivery.RoleDSO},
	}

	for _, group := range phase1 {
		files, err := r.Discover(group.prefix)
		if err != nil {
			return summary, err
		}
		if err := r.sendGroup(ctx, group.role, files, concurrent, &summary); err != nil {
			summary.Elapsed = time.Since(start)
			return summary, err
		}
	}

	contracts, err := r.Discover(PrefixContract)
	if err != nil {
		return summary, err
	}
	if len(contracts) == 0 {
		summary.Elapsed = time.Since(start)
		r.logSummary(summary)
		return summary, nil
	}

	if summary.Failed > 0 {
		slog.Warn("[Batch] Skipping contract phase, registration phase had failures",
			"run_id", summary.RunID, "failed", summary.Failed, "contracts", len(contracts))
		summary.Skipped += len(contracts)
		summary.Elapsed = time.Since(start)
		r.logSummary(summary)
		return summary, nil
	}

	slog.Info("[Batch] Cooling down before contract phase",
		"run_id", summary.RunID, "cooldown", r.phaseCooldown)
	if err := r.sleep(ctx, r.phaseCooldown); err != nil {
		summary.Elapsed = time.Since(start)
		return summary, err
	}

	if err := r.sendGroup(ctx, delivery.RoleDDQ, contracts, concurrent, &summary); err != nil {
		summary.Elapsed = time.Since(start)
		return summary, err
	}

	summary.Elapsed = time.Since(start)
	r.logSummary(summary)
	return summary, nil
}

func (r *Runner) sendGroup(ctx context.Context, role delivery.Role, files []string, concurrent bool, summary *Summary) error {
	if !concurrent {
		for _, path := range files {
			if err := r.sendOne(ctx, role, path, summary); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.blockSize)
	for _, path := range files {
		g.Go(func() error {
			return r.sendOne(gctx, role, path, summary)
		})
	}
	return g.Wait()
}

func (r *Runner) sendOne(ctx context.Context, role delivery.Role, path string, summary *Summary) error {
	name := filepath.Base(path)

	if key, ok := pairKey(name); ok && r.pairFailed(key) {
		slog.Warn("[Batch] Skipping contract, paired registration failed", "file", name)
		r.count(summary, func(s *Summary) { s.Skipped++ })
		return nil
	}

	result, err := r.sender.SendFile(ctx, role, path)
	if err != nil {
		if errors.Is(err, delivery.ErrUnavailable) {
			r.count(summary, func(s *Summary) { s.Failed++ })
			return fmt.Errorf("aborting run: %w", err)
		}
		r.count(summary, func(s *Summary) { s.Failed++ })
		r.markFailed(name)
		slog.Error("[Batch] Delivery error", "file", name, "error", err)
		return nil
	}

	if result.Outcome == delivery.OutcomeSuccess {
		r.count(summary, func(s *Summary) { s.Succeeded++ })
		return nil
	}
	r.count(summary, func(s *Summary) { s.Failed++ })
	r.markFailed(name)
	return nil
}

func (r *Runner) count(summary *Summary, apply func(*Summary)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	apply(summary)
}

// markFailed remembers the point id of a failed registration so its
// contract is skipped later in the same run.
func (r *Runner) markFailed(name string) {
	if !strings.HasPrefix(name, PrefixMasterData) {
		return
	}
	key := strings.TrimSuffix(strings.TrimPrefix(name, PrefixMasterData), ".xml")
	r.mu.Lock()
	r.failedKeys[key] = struct{}{}
	r.mu.Unlock()
}

func (r *Runner) pairFailed(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.failedKeys[key]
	return ok
}

// pairKey extracts the point id from a contract file name.
func pairKey(name string) (string, bool) {
	if !strings.HasPrefix(name, PrefixContract) {
		return "", false
	}
	return strings.TrimSuffix(strings.TrimPrefix(name, PrefixContract), ".xml"), true
}

func (r *Runner) logSummary(s Summary) {
	slog.Info("[Batch] Run finished",
		"run_id", s.RunID,
		"succeeded", s.Succeeded,
		"failed", s.Failed,
		"skipped", s.Skipped,
		"elapsed", s.Elapsed,
	)
}
