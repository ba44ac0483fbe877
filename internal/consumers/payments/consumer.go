package payments

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/readstack/readstack-backend/internal/fines"
	"github.com/readstack/readstack-backend/internal/subscriptions"
	"github.com/readstack/readstack-backend/pkg/db/models"
	"github.com/readstack/readstack-backend/pkg/enums"
	pkgerrors "github.com/readstack/readstack-backend/pkg/errors"
	"github.com/readstack/readstack-backend/pkg/logger"
)

const paymentsConsumerName = "payments"

type subscriptionActivator interface {
	Activate(ctx context.Context, input subscriptions.ActivateInput) (*models.Subscription, error)
}

type finePayer interface {
	Pay(ctx context.Context, input fines.PayInput) (*models.Fine, error)
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// PaymentEvent is the payment-success signal published by the payment
// provider integration.
type PaymentEvent struct {
	EventID    string            `json:"eventId"`
	MemberID   uuid.UUID         `json:"memberId"`
	Type       enums.PaymentType `json:"paymentType"`
	PaymentRef string            `json:"paymentRef"`
	PlanCode   string            `json:"planCode,omitempty"`
	FineID     uuid.UUID         `json:"fineId,omitempty"`
	Amount     decimal.Decimal   `json:"amount"`
}

// Consumer routes confirmed payments into the lifecycle engine: membership
// payments activate subscriptions, fine payments settle fines. Both targets
// are idempotent, so at-least-once delivery is safe even when the Redis guard
// has expired.
type Consumer struct {
	subscription  *pubsub.Subscriber
	subscriptions subscriptionActivator
	fines         finePayer
	idempotency   idempotencyChecker
	logg          *logger.Logger
}

// NewConsumer builds a payment event consumer.
func NewConsumer(subscription *pubsub.Subscriber, subscriptionSvc subscriptionActivator, fineSvc finePayer, manager idempotencyChecker, logg *logger.Logger) (*Consumer, error) {
	if subscription == nil {
		return nil, fmt.Errorf("payments subscription required")
	}
	if subscriptionSvc == nil {
		return nil, fmt.Errorf("subscriptions service required")
	}
	if fineSvc == nil {
		return nil, fmt.Errorf("fines service required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		subscription:  subscription,
		subscriptions: subscriptionSvc,
		fines:         fineSvc,
		idempotency:   manager,
		logg:          logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	logCtx := c.logg.WithField(ctx, "message_id", msg.ID)

	var event PaymentEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		c.logg.Error(logCtx, "failed to decode payment event", err)
		return processResult{ack: true}
	}

	eventID, err := uuid.Parse(event.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}
	logCtx = c.logg.WithFields(logCtx, map[string]any{
		"event_id":     eventID.String(),
		"payment_type": event.Type.String(),
	})

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, paymentsConsumerName, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	if err := c.handle(ctx, event); err != nil {
		// Business rejections are final; infrastructure failures retry.
		if isPermanent(err) {
			c.logg.Error(logCtx, "payment event rejected", err)
			return processResult{ack: true}
		}
		c.logg.Error(logCtx, "payment handling failed", err)
		_ = c.idempotency.Delete(ctx, paymentsConsumerName, eventID)
		return processResult{nack: true}
	}

	c.logg.Info(logCtx, "payment event applied")
	return processResult{ack: true}
}

func (c *Consumer) handle(ctx context.Context, event PaymentEvent) error {
	switch event.Type {
	case enums.PaymentTypeMembership:
		_, err := c.subscriptions.Activate(ctx, subscriptions.ActivateInput{
			MemberID:   event.MemberID,
			PlanCode:   event.PlanCode,
			PaymentRef: event.PaymentRef,
		})
		return err
	case enums.PaymentTypeFine:
		_, err := c.fines.Pay(ctx, fines.PayInput{
			FineID:   event.FineID,
			MemberID: event.MemberID,
			Amount:   event.Amount,
		})
		return err
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown payment type")
	}
}

func isPermanent(err error) bool {
	for _, code := range []pkgerrors.Code{
		pkgerrors.CodeValidation,
		pkgerrors.CodeNotFound,
		pkgerrors.CodeForbidden,
		pkgerrors.CodeStateConflict,
	} {
		if pkgerrors.HasCode(err, code) {
			return true
		}
	}
	return false
}
