package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-realtime/internal/core/errors"
	"github.com/urfave/cli/v2"
)

// runWatch connects and logs every event until interrupted or until the
// reconnection bound is reached.
func runWatch(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	logger := a.logger.With("component", "watch")
	failed := make(chan error, 1)

	a.service.SubscribeToState(func(change domain.StateChange) {
		logger.Info("connection state",
			"from", change.Previous.String(),
			"to", change.Current.String(),
			"attempt", change.Attempt,
		)
		if change.Current == domain.StateFailed {
			err := change.Err
			if err == nil {
				err = apperrors.ErrReconnectExhausted
			}
			select {
			case failed <- err:
			default:
			}
		}
	})
	a.service.SubscribeToMessages(func(msg *domain.MessageRecord) {
		logger.Info("new message",
			"message_id", msg.ID,
			"ticket_id", msg.TicketID,
			"sender", msg.SenderName,
			"content", msg.Content,
		)
	})
	a.service.SubscribeToTickets(func(t *domain.NewTicket) {
		logger.Info("new ticket", "ticket_id", t.ID())
	})
	a.service.SubscribeToTicketUpdates(func(u *domain.TicketUpdate) {
		logger.Info("ticket updated", "ticket_id", u.TicketID)
	})
	a.service.SubscribeToTicketList(func(list []domain.TicketViewRecord) {
		if len(list) > 0 {
			logger.Debug("ticket list changed", "count", len(list), "top", list[0].ID)
		}
	})

	if err := a.start(ctx); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		return nil
	case err := <-failed:
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
}
