package provisioner

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sykell/igprovision/internal/db"
	"github.com/sykell/igprovision/internal/remote"
	"github.com/sykell/igprovision/internal/service"
	"github.com/sykell/igprovision/internal/session"
)

// fakeService is the remote side shared by all fakeClients of a test.
type fakeService struct {
	mu         sync.Mutex
	passwords  map[string]string
	challenged map[string]bool
	unreliable map[string]bool
	flagged    map[string]bool
	tokens     map[string]bool
	logins     map[string]int
	proxies    map[string]string
}

func newFakeService() *fakeService {
	return &fakeService{
		passwords:  map[string]string{},
		challenged: map[string]bool{},
		unreliable: map[string]bool{},
		flagged:    map[string]bool{},
		tokens:     map[string]bool{},
		logins:     map[string]int{},
		proxies:    map[string]string{},
	}
}

func (s *fakeService) loginCount(username string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logins[username]
}

func (s *fakeService) proxyFor(username string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proxies[username]
}

func (s *fakeService) factory() remote.Factory {
	return func(proxyURL string) (remote.Client, error) {
		return &fakeClient{svc: s, proxy: proxyURL}, nil
	}
}

type fakeClient struct {
	svc   *fakeService
	proxy string
	token string
}

func (c *fakeClient) Login(_ context.Context, username, password string) error {
	s := c.svc
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logins[username]++
	s.proxies[username] = c.proxy
	switch {
	case s.unreliable[username]:
		return &remote.NetworkError{Op: "login", Err: fmt.Errorf("proxyconnect tcp: connection reset by peer")}
	case s.challenged[username]:
		return remote.ErrChallengeRequired
	case s.flagged[username]:
		return &remote.UnknownError{StatusCode: 400, Type: "sentry_block", Message: "please wait"}
	case s.passwords[username] != password:
		return remote.ErrBadPassword
	}
	c.token = "tok-" + username + "-" + c.proxy
	s.tokens[c.token] = true
	return nil
}

func (c *fakeClient) FetchFeed(context.Context) error {
	c.svc.mu.Lock()
	defer c.svc.mu.Unlock()
	if !c.svc.tokens[c.token] {
		return remote.ErrLoginRequired
	}
	return nil
}

func (c *fakeClient) DumpSettings() ([]byte, error) {
	return json.Marshal(map[string]string{"token": c.token})
}

func (c *fakeClient) LoadSettings(blob []byte) error {
	var v map[string]string
	if err := json.Unmarshal(blob, &v); err != nil {
		return err
	}
	c.token = v["token"]
	return nil
}

// countingSessions counts saves per username on top of a real FileStore.
type countingSessions struct {
	*session.FileStore
	mu    sync.Mutex
	saves map[string]int
}

func newCountingSessions(t *testing.T) *countingSessions {
	t.Helper()
	fs, err := session.NewFileStore(filepath.Join(t.TempDir(), "sessions"))
	if err != nil {
		t.Fatal(err)
	}
	return &countingSessions{FileStore: fs, saves: map[string]int{}}
}

func (c *countingSessions) Save(username string, blob []byte) error {
	c.mu.Lock()
	c.saves[username]++
	c.mu.Unlock()
	return c.FileStore.Save(username, blob)
}

func (c *countingSessions) saveCount(username string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saves[username]
}

func newTestStore(t *testing.T) *service.Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dbConn, err := db.InitDB(&db.Config{
		Driver:  db.DriverSQLite,
		Path:    fmt.Sprintf("file:prov_%s?mode=memory&cache=shared", name),
		MaxOpen: 1,
		MaxIdle: 1,
	})
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := dbConn.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return service.NewStore(dbConn)
}

func countAccounts(t *testing.T, store *service.Store) int {
	t.Helper()
	accounts, err := store.ListAccounts(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	return len(accounts)
}
