package provisioner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sykell/igprovision/internal/db"
	"github.com/sykell/igprovision/internal/logger"
	"github.com/sykell/igprovision/internal/metrics"
	"github.com/sykell/igprovision/internal/remote"
	"github.com/sykell/igprovision/internal/session"
)

// Job pairs one credential with the proxy it must log in through.
type Job struct {
	Credential Credential
	Proxy      string
	FolderID   *uint
}

// Agent performs one login attempt per call, reusing a stored session when the
// remote service still accepts it.
type Agent struct {
	newClient remote.Factory
	sessions  session.Store
	store     AccountStore
	tracker   *StatusTracker
	now       func() time.Time
	logger    zerolog.Logger
}

func NewAgent(factory remote.Factory, sessions session.Store, store AccountStore) *Agent {
	return &Agent{
		newClient: factory,
		sessions:  sessions,
		store:     store,
		tracker:   NewStatusTracker(store),
		now:       time.Now,
		logger:    logger.WithComponent("provisioner/agent"),
	}
}

// Login authenticates job.Credential through job.Proxy and persists the account.
// It never retries and never panics on remote failures; every failure is
// folded into the returned Result.
func (a *Agent) Login(ctx context.Context, job Job) (res Result) {
	start := time.Now()
	cred := job.Credential
	res = Result{Username: cred.Username, Proxy: job.Proxy}
	defer func() {
		res.Duration = time.Since(start)
		metrics.LoginOutcomesTotal.WithLabelValues(res.Outcome.String()).Inc()
	}()

	metrics.LoginsInFlight.Inc()
	defer metrics.LoginsInFlight.Dec()

	if err := a.authenticate(ctx, cred, job.Proxy); err != nil {
		res.Outcome, res.Detail = classifyLoginError(err)
		a.logger.Warn().
			Str("username", cred.Username).
			Str("outcome", res.Outcome.String()).
			Err(err).
			Msg("Login failed")
		return res
	}

	acc := &db.Account{
		Username:      cred.Username,
		Password:      cred.Password,
		Email:         cred.Email,
		EmailPassword: cred.EmailPassword,
		Proxy:         job.Proxy,
		Status:        db.StatusNew,
		FolderID:      job.FolderID,
	}
	inserted, err := a.store.InsertAccount(ctx, acc)
	if err != nil {
		res.Outcome = OutcomeGenericError
		res.Detail = fmt.Sprintf("failed to save account: %v", err)
		a.logger.Error().Str("username", cred.Username).Err(err).Msg("Failed to persist account")
		return res
	}
	if !inserted {
		res.Outcome = OutcomeAlreadyExists
		res.Detail = "already exists in the database"
		a.logger.Info().Str("username", cred.Username).Msg("Account already exists, session refreshed")
		return res
	}

	res.AccountID = acc.ID
	if err := a.tracker.Mark(ctx, acc.ID, StatusLoggedIn(), a.now()); err != nil {
		a.logger.Error().Uint("account_id", acc.ID).Err(err).Msg("Failed to mark account as logged in")
	}

	res.Outcome = OutcomeSuccess
	res.Detail = "logged in"
	a.logger.Info().Str("username", cred.Username).Uint("account_id", acc.ID).Msg("Account provisioned")
	return res
}

// Refresh logs an already persisted account in again through its stored proxy
// and records the result on the account's status.
func (a *Agent) Refresh(ctx context.Context, acc *db.Account) (res Result) {
	start := time.Now()
	res = Result{Username: acc.Username, Proxy: acc.Proxy, AccountID: acc.ID}
	defer func() {
		res.Duration = time.Since(start)
		metrics.LoginOutcomesTotal.WithLabelValues(res.Outcome.String()).Inc()
	}()

	err := a.authenticate(ctx, Credential{Username: acc.Username, Password: acc.Password}, acc.Proxy)
	if err != nil {
		res.Outcome, res.Detail = classifyLoginError(err)
		if markErr := a.tracker.MarkError(ctx, acc.ID, err.Error(), a.now()); markErr != nil {
			a.logger.Error().Uint("account_id", acc.ID).Err(markErr).Msg("Failed to mark account error")
		}
		return res
	}

	if err := a.tracker.Mark(ctx, acc.ID, StatusLoggedIn(), a.now()); err != nil {
		res.Outcome = OutcomeGenericError
		res.Detail = fmt.Sprintf("failed to update status: %v", err)
		return res
	}
	res.Outcome = OutcomeSuccess
	res.Detail = "logged in"
	return res
}

// authenticate restores the stored session when it still validates, otherwise
// logs in fresh on a new client. The session is saved afterwards either way.
func (a *Agent) authenticate(ctx context.Context, cred Credential, proxyURL string) error {
	blob, err := a.sessions.Load(cred.Username)
	switch {
	case err == nil:
		client, rerr := a.restore(ctx, proxyURL, blob)
		if rerr == nil {
			metrics.SessionReuseTotal.WithLabelValues("restored").Inc()
			return a.saveSession(client, cred.Username)
		}
		metrics.SessionReuseTotal.WithLabelValues("rejected").Inc()
		a.logger.Debug().Str("username", cred.Username).Err(rerr).Msg("Stored session rejected, logging in again")
	case errors.Is(err, session.ErrSessionNotFound):
		metrics.SessionReuseTotal.WithLabelValues("missing").Inc()
	case errors.Is(err, session.ErrInvalidUsername):
		return err
	default:
		a.logger.Warn().Str("username", cred.Username).Err(err).Msg("Failed to read stored session")
	}

	client, err := a.newClient(proxyURL)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	if err := client.Login(ctx, cred.Username, cred.Password); err != nil {
		return err
	}
	return a.saveSession(client, cred.Username)
}

func (a *Agent) restore(ctx context.Context, proxyURL string, blob []byte) (remote.Client, error) {
	client, err := a.newClient(proxyURL)
	if err != nil {
		return nil, err
	}
	if err := client.LoadSettings(blob); err != nil {
		return nil, err
	}
	if err := client.FetchFeed(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

func (a *Agent) saveSession(client remote.Client, username string) error {
	blob, err := client.DumpSettings()
	if err != nil {
		return fmt.Errorf("failed to dump session: %w", err)
	}
	if err := a.sessions.Save(username, blob); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// classifyLoginError maps a login failure onto the report taxonomy.
func classifyLoginError(err error) (Outcome, string) {
	var netErr *remote.NetworkError
	var unknownErr *remote.UnknownError

	switch {
	case errors.Is(err, remote.ErrChallengeRequired):
		return OutcomeChallengeRequired, "verification required (checkpoint)"
	case errors.Is(err, remote.ErrBadPassword):
		return OutcomeBadPassword, "wrong password"
	case errors.As(err, &netErr), errors.Is(err, context.DeadlineExceeded):
		return OutcomeNetworkError, fmt.Sprintf("proxy error or connection timeout: %v", err)
	case errors.As(err, &unknownErr):
		return OutcomeUnknownServiceError, fmt.Sprintf("unknown service error: %v", unknownErr)
	default:
		return OutcomeGenericError, err.Error()
	}
}
