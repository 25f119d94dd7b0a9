package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"

	"github.com/tariel-x/gomeet/internal/models"
)

type fakePusher struct {
	mu       sync.Mutex
	accounts []string
	urls     []string
	failFor  map[string]bool
}

func (f *fakePusher) MeetingInvite(ctx context.Context, accountID, joinURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts = append(f.accounts, accountID)
	f.urls = append(f.urls, joinURL)
	if f.failFor[accountID] {
		return errors.New("push endpoint unreachable")
	}
	return nil
}

func testDelivery(pusher Pusher) *Delivery {
	return NewDelivery(pusher, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestDeliverPushesToEveryUser(t *testing.T) {
	pusher := &fakePusher{}
	delivery := testDelivery(pusher)

	items := models.CandidateList{
		models.User{ID: "u1", Name: "Alice"},
		models.Room{ID: "r1", Name: "Standup"},
		models.User{ID: "u2", Name: "Bob"},
	}
	sent, err := delivery.Deliver(context.Background(), items, "https://meet.example.com/m/abc")
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if sent != 2 {
		t.Errorf("expected 2 deliveries, got %d", sent)
	}

	sort.Strings(pusher.accounts)
	if len(pusher.accounts) != 2 || pusher.accounts[0] != "u1" || pusher.accounts[1] != "u2" {
		t.Errorf("expected pushes for u1 and u2, got %v", pusher.accounts)
	}
	for _, url := range pusher.urls {
		if url != "https://meet.example.com/m/abc" {
			t.Errorf("join url not passed through, got %q", url)
		}
	}
}

func TestDeliverToleratesPartialFailure(t *testing.T) {
	pusher := &fakePusher{failFor: map[string]bool{"u1": true}}
	delivery := testDelivery(pusher)

	items := models.CandidateList{
		models.User{ID: "u1", Name: "Alice"},
		models.User{ID: "u2", Name: "Bob"},
	}
	sent, err := delivery.Deliver(context.Background(), items, "https://meet.example.com/m/abc")
	if err != nil {
		t.Fatalf("partial failure must not fail the batch: %v", err)
	}
	if sent != 1 {
		t.Errorf("expected 1 delivery, got %d", sent)
	}
}

func TestDeliverFailsWhenNobodyReachable(t *testing.T) {
	pusher := &fakePusher{failFor: map[string]bool{"u1": true, "u2": true}}
	delivery := testDelivery(pusher)

	items := models.CandidateList{
		models.User{ID: "u1", Name: "Alice"},
		models.User{ID: "u2", Name: "Bob"},
	}
	if _, err := delivery.Deliver(context.Background(), items, "https://meet.example.com/m/abc"); err == nil {
		t.Fatal("expected error when every delivery failed")
	}
}

func TestSendWithRoomsOnly(t *testing.T) {
	pusher := &fakePusher{}
	delivery := testDelivery(pusher)

	items := models.CandidateList{models.Room{ID: "r1", Name: "Standup"}}
	if err := delivery.Send(context.Background(), items, "https://meet.example.com/m/abc"); err != nil {
		t.Fatalf("rooms-only batch must count as sent: %v", err)
	}
	if len(pusher.accounts) != 0 {
		t.Errorf("no pushes expected for rooms, got %v", pusher.accounts)
	}
}
