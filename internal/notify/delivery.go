package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/tariel-x/gomeet/internal/models"
)

const deliveryWorkers = 4

// Pusher delivers one kind of push notification to an account.
type Pusher interface {
	MeetingInvite(ctx context.Context, accountID, joinURL string) error
}

// Delivery fans an accepted invite batch out to the invited accounts.
// It also stands in for a remote invite service when none is configured.
type Delivery struct {
	notifier Pusher
	log      *slog.Logger
}

func NewDelivery(notifier Pusher, log *slog.Logger) *Delivery {
	if log == nil {
		log = slog.Default()
	}
	return &Delivery{notifier: notifier, log: log}
}

// Deliver pushes an invitation to every user candidate in the batch. Room
// candidates have no push target and are skipped. It reports how many
// invitations went out and fails only when every user delivery failed.
func (d *Delivery) Deliver(ctx context.Context, items models.CandidateList, joinURL string) (int, error) {
	users := items.FilterType(models.CandidateTypeUser)
	if len(users) == 0 {
		return 0, nil
	}

	var mu sync.Mutex
	sent := 0

	workerPool := pool.New().WithMaxGoroutines(deliveryWorkers)
	for _, item := range users {
		user, ok := item.(models.User)
		if !ok {
			continue
		}
		workerPool.Go(func() {
			if err := d.notifier.MeetingInvite(ctx, user.ID, joinURL); err != nil {
				d.log.Warn("invite delivery failed", "account_id", user.ID, "error", err)
				return
			}
			mu.Lock()
			sent++
			mu.Unlock()
		})
	}
	workerPool.Wait()

	if sent == 0 {
		return 0, errors.New("no invitations were delivered")
	}
	return sent, nil
}

// Send lets Delivery satisfy the invite sender contract used by the
// dispatcher: the batch either counts as sent or fails as a whole.
func (d *Delivery) Send(ctx context.Context, items models.CandidateList, joinURL string) error {
	users := items.FilterType(models.CandidateTypeUser)
	if len(users) == 0 {
		// A rooms-only batch has nobody to push to; treat it as sent.
		return nil
	}
	_, err := d.Deliver(ctx, items, joinURL)
	return err
}
