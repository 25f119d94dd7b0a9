package notify

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/tariel-x/gomeet/internal/config"
	"github.com/tariel-x/gomeet/internal/models"
)

func newTestNotifier(t *testing.T) (*Notifier, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	if err := db.AutoMigrate(&models.Account{}, &models.PushSubscription{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	publicKey, privateKey := config.GenerateVAPIDKeys()
	vapid := &config.VAPIDKeys{
		PublicKey:  publicKey,
		PrivateKey: privateKey,
		Subject:    "mailto:admin@gomeet.app",
	}
	return New(db, vapid, slog.New(slog.NewTextHandler(io.Discard, nil))), db
}

// browserSubscriptionKeys builds the client-side half of a push
// subscription: an uncompressed P-256 point and a 16-byte auth secret.
func browserSubscriptionKeys(t *testing.T) (p256dh, auth string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate subscription key: %v", err)
	}

	point := make([]byte, 65)
	point[0] = 0x04
	key.PublicKey.X.FillBytes(point[1:33])
	key.PublicKey.Y.FillBytes(point[33:65])

	authBytes := make([]byte, 16)
	if _, err := rand.Read(authBytes); err != nil {
		t.Fatalf("generate auth secret: %v", err)
	}

	return base64.RawURLEncoding.EncodeToString(point), base64.RawURLEncoding.EncodeToString(authBytes)
}

func subscribe(t *testing.T, db *gorm.DB, accountID, endpoint string) models.PushSubscription {
	t.Helper()

	p256dh, auth := browserSubscriptionKeys(t)
	sub := models.PushSubscription{
		AccountID: accountID,
		Endpoint:  endpoint,
		P256DH:    p256dh,
		Auth:      auth,
	}
	if err := db.Create(&sub).Error; err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	return sub
}

func TestMeetingInviteWithoutSubscriptions(t *testing.T) {
	notifier, _ := newTestNotifier(t)

	err := notifier.MeetingInvite(context.Background(), "nobody", "https://meet.example.com/m/abc")
	if !errors.Is(err, ErrNoSubscriptions) {
		t.Fatalf("expected ErrNoSubscriptions, got %v", err)
	}
}

func TestMeetingInviteDelivers(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.Header.Get("Authorization") == "" {
			t.Error("expected VAPID authorization header")
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	notifier, db := newTestNotifier(t)
	subscribe(t, db, "acc-1", srv.URL)

	if err := notifier.MeetingInvite(context.Background(), "acc-1", "https://meet.example.com/m/abc"); err != nil {
		t.Fatalf("MeetingInvite: %v", err)
	}
	if requests.Load() != 1 {
		t.Errorf("expected one push request, got %d", requests.Load())
	}
}

func TestMeetingInvitePrunesGoneSubscriptions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	notifier, db := newTestNotifier(t)
	sub := subscribe(t, db, "acc-1", srv.URL)

	if err := notifier.MeetingInvite(context.Background(), "acc-1", "https://meet.example.com/m/abc"); err == nil {
		t.Fatal("expected delivery failure for a gone subscription")
	}

	var count int64
	if err := db.Model(&models.PushSubscription{}).Where("id = ?", sub.ID).Count(&count).Error; err != nil {
		t.Fatalf("count subscriptions: %v", err)
	}
	if count != 0 {
		t.Error("gone subscription must be pruned from the database")
	}
}
