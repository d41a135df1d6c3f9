package proxy

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/sykell/igprovision/internal/logger"
	"github.com/sykell/igprovision/internal/metrics"
)

const (
	// DefaultTarget echoes the caller's IP and is cheap to fetch.
	DefaultTarget         = "https://httpbin.org/ip"
	DefaultTimeout        = 30 * time.Second
	DefaultRequestTimeout = 60 * time.Second

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

// Result is the outcome of probing one proxy string.
type Result struct {
	Raw        string        `json:"raw"`
	OK         bool          `json:"ok"`
	Protocol   Protocol      `json:"protocol,omitempty"`
	Normalized string        `json:"normalized,omitempty"`
	Detail     string        `json:"detail,omitempty"`
	Latency    time.Duration `json:"latency"`
}

// Checker probes a single proxy string.
type Checker interface {
	Probe(ctx context.Context, raw string) Result
}

// ProberConfig configures a Prober.
type ProberConfig struct {
	Target string
	// Timeout bounds the whole probe, every candidate included.
	Timeout time.Duration
	// RequestTimeout bounds each HTTP request.
	RequestTimeout time.Duration
}

// Prober checks that a proxy can fetch Target and discovers its protocol.
type Prober struct {
	target         string
	timeout        time.Duration
	requestTimeout time.Duration
	logger         zerolog.Logger
}

var _ Checker = (*Prober)(nil)

// NewProber creates a Prober, filling zero config values with defaults.
func NewProber(cfg ProberConfig) *Prober {
	if cfg.Target == "" {
		cfg.Target = DefaultTarget
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	return &Prober{
		target:         cfg.Target,
		timeout:        cfg.Timeout,
		requestTimeout: cfg.RequestTimeout,
		logger:         logger.WithComponent("proxy/probe"),
	}
}

// Probe tries each protocol candidate in order. Only connector failures move on
// to the next candidate; timeouts, unreachable proxies, refusals and non-200
// answers end the probe.
func (p *Prober) Probe(ctx context.Context, raw string) (res Result) {
	start := time.Now()
	res = Result{Raw: raw}
	defer func() {
		res.Latency = time.Since(start)
		observe(res)
	}()

	ep, err := ParseEndpoint(raw)
	if err != nil {
		res.Detail = err.Error()
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	candidates := ep.Candidates()
	for i, proto := range candidates {
		status, err := p.fetch(ctx, ep, proto)
		if err == nil {
			if status == http.StatusOK {
				res.OK = true
				res.Protocol = proto
				res.Normalized = ep.Normalized(proto)
				res.Detail = ""
				return res
			}
			res.Detail = stagePrefix(i, proto) + fmt.Sprintf("unexpected status code: %d", status)
			return res
		}

		perr := classify(err)
		res.Detail = perr.Error()
		if perr.Kind != KindTimeout {
			res.Detail = stagePrefix(i, proto) + res.Detail
		}
		p.logger.Debug().
			Str("proxy", logger.Mask(raw, 40)).
			Str("protocol", string(proto)).
			Str("kind", perr.Kind.String()).
			Err(err).
			Msg("Probe attempt failed")

		if !perr.Retryable() || i == len(candidates)-1 {
			return res
		}
	}
	return res
}

func (p *Prober) fetch(ctx context.Context, ep Endpoint, proto Protocol) (int, error) {
	u, err := ep.URL(proto)
	if err != nil {
		return 0, &ProbeError{Kind: KindProxyConnect, Err: err}
	}

	base := &net.Dialer{
		Timeout:   p.requestTimeout,
		KeepAlive: 30 * time.Second,
	}
	dial, err := tunnelDialer(proto, u, base)
	if err != nil {
		return 0, &ProbeError{Kind: KindProxyConnect, Err: err}
	}

	transport := &http.Transport{
		DialContext:            dial,
		DisableKeepAlives:      true,
		ForceAttemptHTTP2:      false,
		TLSHandshakeTimeout:    p.requestTimeout / 2,
		ResponseHeaderTimeout:  p.requestTimeout,
		MaxResponseHeaderBytes: 16 << 10,
	}
	defer transport.CloseIdleConnections()

	client := &http.Client{
		Transport: transport,
		Timeout:   p.requestTimeout,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.target, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	return resp.StatusCode, nil
}

func stagePrefix(i int, proto Protocol) string {
	if i == 0 {
		return ""
	}
	return string(proto) + ": "
}

func observe(res Result) {
	result := "fail"
	if res.OK {
		result = "ok"
	}
	metrics.ProxyProbesTotal.WithLabelValues(result, string(res.Protocol)).Inc()
	metrics.ProxyProbeDuration.Observe(res.Latency.Seconds())
}
