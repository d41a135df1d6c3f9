package proxy

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sykell/igprovision/internal/logger"
)

const defaultConcurrency = 32

// Allocation is the outcome of probing a proxy batch.
type Allocation struct {
	// Working holds normalized proxies that passed, in input order.
	Working []string
	// Results holds one entry per probed proxy, in input order.
	Results []Result
}

// Probed is the number of proxies actually probed.
func (a Allocation) Probed() int { return len(a.Results) }

// WorkingCount is the number of proxies that passed.
func (a Allocation) WorkingCount() int { return len(a.Working) }

// Allocator probes proxy batches concurrently.
type Allocator struct {
	checker     Checker
	concurrency int
}

// NewAllocator creates an Allocator. concurrency caps simultaneous probes.
func NewAllocator(checker Checker, concurrency int) *Allocator {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Allocator{
		checker:     checker,
		concurrency: concurrency,
	}
}

// CleanLines trims entries and drops blank ones.
func CleanLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// Allocate probes at most required proxies (the first ones) and returns the
// working subset in input order. A negative required probes everything. A
// failing or panicking probe only affects its own entry.
func (a *Allocator) Allocate(ctx context.Context, raw []string, required int) Allocation {
	l := logger.WithComponent("proxy/allocator")

	lines := CleanLines(raw)
	if required >= 0 && len(lines) > required {
		l.Info().Int("supplied", len(lines)).Int("required", required).Msg("More proxies than accounts, probing only the first ones")
		lines = lines[:required]
	}

	results := make([]Result, len(lines))
	if len(lines) == 0 {
		return Allocation{Results: results}
	}

	l.Info().Int("count", len(lines)).Int("concurrency", a.concurrency).Msg("Starting proxy validation batch")

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, a.concurrency)

	for i, line := range lines {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(idx int, raw string) {
			defer wg.Done()
			defer func() { <-semaphore }()
			defer func() {
				if r := recover(); r != nil {
					results[idx] = Result{Raw: raw, Detail: fmt.Sprintf("probe panicked: %v", r)}
				}
			}()

			results[idx] = a.checker.Probe(ctx, raw)
		}(i, line)
	}

	wg.Wait()

	working := make([]string, 0, len(results))
	for _, res := range results {
		if res.OK {
			working = append(working, res.Normalized)
			l.Info().Str("proxy", logger.Mask(res.Normalized, 40)).Dur("latency", res.Latency).Msg("Proxy OK")
		} else {
			l.Warn().Str("proxy", logger.Mask(res.Raw, 40)).Str("reason", res.Detail).Msg("Proxy is not working")
		}
	}

	l.Info().Int("working", len(working)).Int("total", len(results)).Msg("Proxy validation finished")
	return Allocation{Working: working, Results: results}
}
