package worker

import (
	"context"
	"errors"

	"github.com/NordCoder/Herald/internal/domain/inbox"
	"github.com/NordCoder/Herald/internal/obs"
	kafkax "github.com/NordCoder/Herald/internal/repository/kafka"
	"github.com/NordCoder/Herald/internal/services/notifier"
	"go.uber.org/zap"
)

// TriggerRequest is what platform services publish to ask for ad-hoc
// inbox notifications.
type TriggerRequest struct {
	Notifications []inbox.Draft `json:"notifications"`
}

type Triggerer interface {
	Trigger(ctx context.Context, drafts []inbox.Draft) ([]string, error)
}

type Controller struct {
	Log *zap.Logger
	Sub *kafkax.Consumer
	UC  Triggerer
}

func (c *Controller) Run(ctx context.Context) error {
	return c.Sub.Consume(ctx, c.Handler())
}

func (c *Controller) Handler() kafkax.Handler {
	return kafkax.JSONHandler(func(ctx context.Context, key []byte, req *TriggerRequest) error {
		log := obs.WithTrace(ctx, c.Log).With(zap.ByteString("key", key))
		if len(req.Notifications) == 0 {
			log.Warn("trigger: empty request")
			return nil
		}
		ids, err := c.UC.Trigger(ctx, req.Notifications)
		if errors.Is(err, notifier.ErrValidation) {
			return kafkax.ErrPoison{Err: err}
		}
		if err != nil {
			return err
		}
		log.Debug("trigger: queued", zap.Int("count", len(ids)))
		return nil
	})
}
