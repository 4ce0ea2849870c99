package whatsapp

import (
	"context"
	"time"

	"omnichannel-gateway/internal/models"

	"go.uber.org/zap"
)

// FollowUpStore is the slice of the store the dispatcher drains.
type FollowUpStore interface {
	DueFollowUps(ctx context.Context, now time.Time, limit int) ([]models.FollowUp, error)
	MarkFollowUpSent(ctx context.Context, id uint) error
}

// FollowUpDispatcher delivers scheduled follow-up messages once their time
// arrives. Follow-ups that cannot be sent (session down, bad number) stay
// pending and are retried on the next pass.
type FollowUpDispatcher struct {
	store  FollowUpStore
	client *Client
	logger *zap.Logger
}

func NewFollowUpDispatcher(st FollowUpStore, client *Client, logger *zap.Logger) *FollowUpDispatcher {
	return &FollowUpDispatcher{store: st, client: client, logger: logger}
}

// DispatchDue sends every follow-up whose scheduled time has passed and
// returns how many went out.
func (d *FollowUpDispatcher) DispatchDue(ctx context.Context) (int, error) {
	due, err := d.store.DueFollowUps(ctx, time.Now(), 50)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, followUp := range due {
		if !d.client.SendMessage(ctx, followUp.Phone, followUp.Content) {
			d.logger.Warn("follow-up not delivered, will retry",
				zap.Uint("followup_id", followUp.ID),
				zap.String("phone", followUp.Phone))
			continue
		}
		if err := d.store.MarkFollowUpSent(ctx, followUp.ID); err != nil {
			d.logger.Error("follow-up sent but not marked",
				zap.Uint("followup_id", followUp.ID), zap.Error(err))
			continue
		}
		sent++
	}

	if sent > 0 {
		d.logger.Info("follow-ups dispatched", zap.Int("sent", sent), zap.Int("due", len(due)))
	}
	return sent, nil
}
