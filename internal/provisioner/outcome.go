package provisioner

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// Outcome is the terminal state of one credential in a batch.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeAlreadyExists
	OutcomeChallengeRequired
	OutcomeBadPassword
	OutcomeNetworkError
	OutcomeUnknownServiceError
	OutcomeGenericError
	OutcomeMalformed
)

var outcomeNames = map[Outcome]string{
	OutcomeSuccess:             "success",
	OutcomeAlreadyExists:       "already_exists",
	OutcomeChallengeRequired:   "challenge_required",
	OutcomeBadPassword:         "bad_password",
	OutcomeNetworkError:        "network_error",
	OutcomeUnknownServiceError: "unknown_error",
	OutcomeGenericError:        "generic_error",
	OutcomeMalformed:           "malformed",
}

var outcomeLabels = map[Outcome]string{
	OutcomeSuccess:             "SUCCESS",
	OutcomeAlreadyExists:       "EXISTS",
	OutcomeChallengeRequired:   "CHALLENGE",
	OutcomeBadPassword:         "BAD_PASSWORD",
	OutcomeNetworkError:        "NETWORK_ERROR",
	OutcomeUnknownServiceError: "UNKNOWN_ERROR",
	OutcomeGenericError:        "ERROR",
	OutcomeMalformed:           "MALFORMED",
}

// allOutcomes fixes the order counts are reported in.
var allOutcomes = []Outcome{
	OutcomeSuccess,
	OutcomeAlreadyExists,
	OutcomeChallengeRequired,
	OutcomeBadPassword,
	OutcomeNetworkError,
	OutcomeUnknownServiceError,
	OutcomeGenericError,
	OutcomeMalformed,
}

func (o Outcome) String() string {
	if s, ok := outcomeNames[o]; ok {
		return s
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Label is the report tag, e.g. "SUCCESS".
func (o Outcome) Label() string {
	if s, ok := outcomeLabels[o]; ok {
		return s
	}
	return "ERROR"
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func (o *Outcome) UnmarshalText(text []byte) error {
	for k, v := range outcomeNames {
		if v == string(text) {
			*o = k
			return nil
		}
	}
	return fmt.Errorf("unknown outcome %q", text)
}

// Result is what happened to one credential.
type Result struct {
	Outcome   Outcome       `json:"outcome"`
	Username  string        `json:"username"`
	Detail    string        `json:"detail,omitempty"`
	Proxy     string        `json:"proxy,omitempty"`
	AccountID uint          `json:"account_id,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Line renders the result as "[LABEL] username: detail".
func (r Result) Line() string {
	detail := r.Detail
	if detail == "" {
		detail = r.Outcome.String()
	}
	return fmt.Sprintf("[%s] %s: %s", r.Outcome.Label(), r.Username, detail)
}

// Report is the outcome of one pipeline run.
type Report struct {
	BatchID         string    `json:"batch_id"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	ProxiesSupplied int       `json:"proxies_supplied"`
	ProxiesProbed   int       `json:"proxies_probed"`
	ProxiesWorking  int       `json:"proxies_working"`
	// Results holds one entry per non-blank account line, in input order.
	Results []Result       `json:"results"`
	Counts  map[string]int `json:"counts"`
}

func (r *Report) tally() {
	r.Counts = make(map[string]int, len(allOutcomes))
	for _, res := range r.Results {
		r.Counts[res.Outcome.String()]++
	}
}

// Count returns how many credentials ended in o.
func (r *Report) Count(o Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == o {
			n++
		}
	}
	return n
}

// Lines returns one report line per credential.
func (r *Report) Lines() []string {
	lines := make([]string, len(r.Results))
	for i, res := range r.Results {
		lines[i] = res.Line()
	}
	return lines
}

// Summary is a one-line tally, e.g. "2 total: SUCCESS=1 EXISTS=1".
func (r *Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d total:", len(r.Results))
	for _, o := range allOutcomes {
		if n := r.Count(o); n > 0 {
			fmt.Fprintf(&b, " %s=%d", o.Label(), n)
		}
	}
	return b.String()
}

// WriteTo writes the line-oriented report.
func (r *Report) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, line := range r.Lines() {
		n, err := io.WriteString(w, line+"\n")
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
