package activity

import (
	"context"
	"testing"
	"time"

	"github.com/router-for-me/adminpanel/internal/models"
)

func TestJanitorEnabled(t *testing.T) {
	svc, _ := newTestService(t)
	if NewJanitor(svc, -1, time.Hour).Enabled() {
		t.Fatalf("expected negative retention to disable the janitor")
	}
	if NewJanitor(svc, 90, 0).Enabled() {
		t.Fatalf("expected zero interval to disable the janitor")
	}
	if !NewJanitor(svc, 90, time.Hour).Enabled() {
		t.Fatalf("expected janitor to be enabled")
	}
}

func TestJanitorRunOnce(t *testing.T) {
	svc, conn := newTestService(t)
	user := createUser(t, conn, "janitor@example.com")
	recordAt(t, svc, time.Now().UTC().AddDate(0, 0, -40), Entry{UserID: user.ID, Type: models.ActivityAuthLogin, Action: "old"})
	recordAt(t, svc, time.Now().UTC(), Entry{UserID: user.ID, Type: models.ActivityAuthLogin, Action: "new"})

	swept := 0
	NewJanitor(svc, 30, time.Hour).WithSweepers(Sweeper{
		Name: "things",
		Run: func(context.Context) (int64, error) {
			swept++
			return 0, nil
		},
	}).runOnce(context.Background())
	if swept != 1 {
		t.Fatalf("expected sweeper to run once, got %d", swept)
	}

	var remaining int64
	conn.Model(&models.Activity{}).Count(&remaining)
	if remaining != 1 {
		t.Fatalf("expected 1 remaining after janitor run, got %d", remaining)
	}
}
