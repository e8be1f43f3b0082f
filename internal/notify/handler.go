package notify

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/example/order-fulfillment/internal/domain/order"
	"github.com/example/order-fulfillment/internal/outbox"
)

// Handler consumes bus envelopes and sends customer notifications. Every
// envelope passes the deduper before any side effect, so the relay's
// at-least-once delivery collapses to exactly one notification per event.
type Handler struct {
	service *Service
	dedupe  Deduper
	logger  *logrus.Logger
}

func NewHandler(service *Service, dedupe Deduper, logger *logrus.Logger) *Handler {
	return &Handler{
		service: service,
		dedupe:  dedupe,
		logger:  logger,
	}
}

// HandleMessage is the bus entry point: key is the aggregate id, value the
// envelope JSON.
func (h *Handler) HandleMessage(ctx context.Context, key, value []byte) error {
	var env outbox.Envelope
	if err := json.Unmarshal(value, &env); err != nil {
		h.logger.WithError(err).Error("[Notifier] failed to unmarshal envelope")
		return err
	}

	switch env.EventType {
	case order.EventOrderConfirmed, order.EventOrderReady, order.EventOrderShipped:
	default:
		// Not a customer-facing event.
		return nil
	}

	first, err := h.dedupe.FirstSeen(ctx, env.EventID)
	if err != nil {
		return err
	}
	if !first {
		h.logger.WithFields(logrus.Fields{
			"event_id":   env.EventID,
			"event_type": env.EventType,
		}).Info("[Notifier] duplicate delivery dropped")
		return nil
	}

	switch env.EventType {
	case order.EventOrderConfirmed:
		var e order.OrderConfirmed
		if err := json.Unmarshal(env.Payload, &e); err != nil {
			return err
		}
		return h.service.SendOrderConfirmed(ctx, e)
	case order.EventOrderReady:
		var e order.OrderReady
		if err := json.Unmarshal(env.Payload, &e); err != nil {
			return err
		}
		return h.service.SendOrderReady(ctx, e)
	case order.EventOrderShipped:
		var e order.OrderShipped
		if err := json.Unmarshal(env.Payload, &e); err != nil {
			return err
		}
		return h.service.SendOrderShipped(ctx, e)
	}
	return nil
}
