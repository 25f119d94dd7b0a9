package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/avast/retry-go/v4"
	"gorm.io/gorm"

	"github.com/tariel-x/gomeet/internal/config"
	"github.com/tariel-x/gomeet/internal/models"
)

var ErrNoSubscriptions = errors.New("account has no push subscriptions")

// Notifier sends Web Push notifications to registered accounts. Endpoints
// that report the subscription gone are pruned from the database on the
// spot.
type Notifier struct {
	db    *gorm.DB
	vapid *config.VAPIDKeys
	log   *slog.Logger
}

func New(db *gorm.DB, vapid *config.VAPIDKeys, log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{db: db, vapid: vapid, log: log}
}

type pushPayload struct {
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Data  map[string]any `json:"data,omitempty"`
}

// MeetingInvite notifies one account that it has been invited to a
// meeting. It succeeds when at least one of the account's subscriptions
// accepted the notification.
func (n *Notifier) MeetingInvite(ctx context.Context, accountID, joinURL string) error {
	var subs []models.PushSubscription
	if err := n.db.WithContext(ctx).Where("account_id = ?", accountID).Find(&subs).Error; err != nil {
		return fmt.Errorf("load push subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return ErrNoSubscriptions
	}

	payload, err := json.Marshal(pushPayload{
		Title: "Meeting invitation",
		Body:  "You have been invited to join a meeting",
		Data:  map[string]any{"url": joinURL},
	})
	if err != nil {
		return fmt.Errorf("encode push payload: %w", err)
	}

	delivered := 0
	for _, sub := range subs {
		if err := n.send(ctx, sub, payload); err != nil {
			n.log.Warn("push delivery failed", "account_id", accountID, "error", err)
			continue
		}
		delivered++
	}
	if delivered == 0 {
		return fmt.Errorf("no push delivered for account %s", accountID)
	}
	return nil
}

func (n *Notifier) send(ctx context.Context, sub models.PushSubscription, payload []byte) error {
	return retry.Do(
		func() error {
			resp, err := webpush.SendNotification(payload, &webpush.Subscription{
				Endpoint: sub.Endpoint,
				Keys: webpush.Keys{
					P256dh: sub.P256DH,
					Auth:   sub.Auth,
				},
			}, &webpush.Options{
				Subscriber:      n.vapid.Subject,
				VAPIDPublicKey:  n.vapid.PublicKey,
				VAPIDPrivateKey: n.vapid.PrivateKey,
				TTL:             60,
			})
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			switch {
			case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
				// The browser dropped this subscription; keeping it
				// around only produces more failures.
				n.db.Delete(&models.PushSubscription{}, "id = ?", sub.ID)
				return retry.Unrecoverable(fmt.Errorf("subscription expired (status %d)", resp.StatusCode))
			case resp.StatusCode >= http.StatusBadRequest:
				return fmt.Errorf("push endpoint returned status %d", resp.StatusCode)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
}
