package provisioner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sykell/igprovision/internal/logger"
	"github.com/sykell/igprovision/internal/metrics"
	"github.com/sykell/igprovision/internal/proxy"
)

var (
	ErrNoCredentials       = errors.New("no credentials supplied")
	ErrInsufficientProxies = errors.New("insufficient working proxies")
	ErrNoWorkingProxies    = errors.New("no working proxies")
)

// InsufficientProxiesError aborts a batch before any login. It matches
// ErrInsufficientProxies, and ErrNoWorkingProxies when nothing passed.
type InsufficientProxiesError struct {
	Required int
	Probed   int
	Working  int
	Results  []proxy.Result
}

func (e *InsufficientProxiesError) Error() string {
	if e.Working == 0 {
		return fmt.Sprintf("no working proxies (%d probed)", e.Probed)
	}
	return fmt.Sprintf("insufficient working proxies: %d accounts, %d of %d proxies working", e.Required, e.Working, e.Probed)
}

func (e *InsufficientProxiesError) Is(target error) bool {
	return target == ErrInsufficientProxies || (e.Working == 0 && target == ErrNoWorkingProxies)
}

// ProxyAllocator validates proxies and returns the working ones in input order.
type ProxyAllocator interface {
	Allocate(ctx context.Context, raw []string, required int) proxy.Allocation
}

// LoginRunner performs a single login job.
type LoginRunner interface {
	Login(ctx context.Context, job Job) Result
}

// Config holds pipeline configuration
type Config struct {
	Workers int
}

// DefaultConfig returns default pipeline configuration
func DefaultConfig() *Config {
	return &Config{Workers: 1}
}

// Request is one batch submitted to the pipeline.
type Request struct {
	AccountLines []string
	ProxyLines   []string
	FolderID     *uint
}

// Pipeline provisions batches. It holds no per-batch state, so one Pipeline
// may serve concurrent Run calls.
type Pipeline struct {
	allocator ProxyAllocator
	agent     LoginRunner
	workers   int
	logger    zerolog.Logger
}

func NewPipeline(allocator ProxyAllocator, agent LoginRunner, config *Config) *Pipeline {
	if config == nil {
		config = DefaultConfig()
	}
	workers := config.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Pipeline{
		allocator: allocator,
		agent:     agent,
		workers:   workers,
		logger:    logger.WithComponent("provisioner/pipeline"),
	}
}

type indexedJob struct {
	index int
	job   Job
}

// Run parses the account lines, validates just enough proxies, pairs
// credential i with working proxy i and logs every pair in. If fewer proxies
// work than there are credentials, nothing is attempted and an
// *InsufficientProxiesError is returned.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Report, error) {
	report := &Report{
		BatchID:   uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
	l := p.logger.With().Str("batch_id", report.BatchID).Logger()

	lines := proxy.CleanLines(req.AccountLines)
	if len(lines) == 0 {
		return nil, ErrNoCredentials
	}

	results := make([]Result, len(lines))
	jobs := make([]indexedJob, 0, len(lines))
	for i, line := range lines {
		cred, err := ParseCredential(line)
		if err != nil {
			results[i] = Result{Outcome: OutcomeMalformed, Username: linePreview(line), Detail: err.Error()}
			continue
		}
		jobs = append(jobs, indexedJob{index: i, job: Job{Credential: cred, FolderID: req.FolderID}})
	}
	report.ProxiesSupplied = len(proxy.CleanLines(req.ProxyLines))

	if len(jobs) > 0 {
		alloc := p.allocator.Allocate(ctx, req.ProxyLines, len(jobs))
		report.ProxiesProbed = alloc.Probed()
		report.ProxiesWorking = alloc.WorkingCount()

		if alloc.WorkingCount() < len(jobs) {
			metrics.ProvisionRunsTotal.WithLabelValues("aborted").Inc()
			err := &InsufficientProxiesError{
				Required: len(jobs),
				Probed:   alloc.Probed(),
				Working:  alloc.WorkingCount(),
				Results:  alloc.Results,
			}
			l.Warn().Err(err).Msg("Batch aborted before any login")
			return nil, err
		}

		for k := range jobs {
			jobs[k].job.Proxy = alloc.Working[k]
		}

		l.Info().Int("accounts", len(jobs)).Int("workers", min(p.workers, len(jobs))).Msg("Starting logins")
		p.dispatch(ctx, jobs, results)
	}

	report.Results = results
	report.FinishedAt = time.Now().UTC()
	report.tally()

	metrics.ProvisionRunsTotal.WithLabelValues("completed").Inc()
	l.Info().Str("summary", report.Summary()).Dur("elapsed", report.FinishedAt.Sub(report.StartedAt)).Msg("Batch finished")
	return report, nil
}

// AddOne provisions a single credential line. With a proxy it is validated
// first; with none the login goes out directly.
func (p *Pipeline) AddOne(ctx context.Context, line, proxyRaw string, folderID *uint) (Result, error) {
	cred, err := ParseCredential(strings.TrimSpace(line))
	if err != nil {
		return Result{}, err
	}

	job := Job{Credential: cred, FolderID: folderID}
	if proxyRaw = strings.TrimSpace(proxyRaw); proxyRaw != "" {
		alloc := p.allocator.Allocate(ctx, []string{proxyRaw}, 1)
		if alloc.WorkingCount() == 0 {
			return Result{}, &InsufficientProxiesError{Required: 1, Probed: alloc.Probed(), Results: alloc.Results}
		}
		job.Proxy = alloc.Working[0]
	}

	return p.runJob(ctx, job), nil
}

// CheckProxies probes every supplied proxy without logging anything in.
func (p *Pipeline) CheckProxies(ctx context.Context, lines []string) proxy.Allocation {
	return p.allocator.Allocate(ctx, lines, -1)
}

// dispatch runs jobs on a fixed pool of workers. Results are written by job
// index, so report order follows input order whatever the completion order.
func (p *Pipeline) dispatch(ctx context.Context, jobs []indexedJob, results []Result) {
	queue := make(chan indexedJob, len(jobs))
	for _, j := range jobs {
		queue <- j
	}
	close(queue)

	var wg sync.WaitGroup
	workers := min(p.workers, len(jobs))
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go p.worker(ctx, i, queue, results, &wg)
	}
	wg.Wait()
}

// worker processes jobs from the queue
func (p *Pipeline) worker(ctx context.Context, id int, queue <-chan indexedJob, results []Result, wg *sync.WaitGroup) {
	defer wg.Done()

	p.logger.Debug().Int("worker", id).Msg("Worker started")
	for ij := range queue {
		if ctx.Err() != nil {
			results[ij.index] = Result{
				Outcome:  OutcomeGenericError,
				Username: ij.job.Credential.Username,
				Proxy:    ij.job.Proxy,
				Detail:   "canceled",
			}
			continue
		}
		results[ij.index] = p.runJob(ctx, ij.job)
	}
	p.logger.Debug().Int("worker", id).Msg("Worker shutting down")
}

// runJob isolates one login: a panic becomes a generic error for that credential only.
func (p *Pipeline) runJob(ctx context.Context, job Job) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Str("username", job.Credential.Username).Interface("panic", r).Msg("Login panicked")
			res = Result{
				Outcome:  OutcomeGenericError,
				Username: job.Credential.Username,
				Proxy:    job.Proxy,
				Detail:   fmt.Sprintf("unexpected failure: %v", r),
			}
		}
	}()
	return p.agent.Login(ctx, job)
}

// linePreview identifies a malformed line without echoing its secrets.
func linePreview(line string) string {
	login, _, _ := strings.Cut(line, ":")
	if len(login) > 32 {
		login = login[:32] + "..."
	}
	return login
}
