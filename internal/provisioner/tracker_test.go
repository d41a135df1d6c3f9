package provisioner

import (
	"context"
	"testing"
	"time"

	"github.com/sykell/igprovision/internal/db"
)

func TestStatusTracker_Mark(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	tracker := NewStatusTracker(store)

	acc := &db.Account{Username: "frank", Password: "p", Email: "f@x.com", EmailPassword: "fp"}
	if _, err := store.InsertAccount(ctx, acc); err != nil {
		t.Fatal(err)
	}

	at := time.Date(2024, 3, 2, 10, 0, 0, 0, time.FixedZone("X", 3*3600))
	if err := tracker.MarkError(ctx, acc.ID, "feedback_required: action blocked", at); err != nil {
		t.Fatalf("MarkError: %v", err)
	}
	got, err := store.GetAccount(ctx, acc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != db.StatusError || got.StatusDetail != "feedback_required: action blocked" {
		t.Errorf("status = %q / %q", got.Status, got.StatusDetail)
	}
	if got.LastActivity == nil || !got.LastActivity.Equal(at) {
		t.Errorf("last activity = %v, want %v", got.LastActivity, at)
	}

	if err := tracker.Mark(ctx, acc.ID, StatusLoggedIn(), at.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	got, _ = store.GetAccount(ctx, acc.ID)
	if got.Status != db.StatusLoggedIn || got.StatusDetail != "" {
		t.Errorf("status = %q / %q, detail must be cleared", got.Status, got.StatusDetail)
	}
}

func TestStatusString(t *testing.T) {
	if got := StatusError("bad").String(); got != "error: bad" {
		t.Errorf("got %q", got)
	}
	if got := StatusNew().String(); got != "new" {
		t.Errorf("got %q", got)
	}
}
