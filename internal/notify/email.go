package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/kevinvillajim/bcommerce-core/internal/common"
	"github.com/kevinvillajim/bcommerce-core/internal/events"
)

// Mailer renders and sends transactional emails for domain events. It runs in
// the worker process as the asynq handler for TaskDomainEventEmail.
type Mailer struct {
	Mail    common.EmailSender
	Log     zerolog.Logger
	Enabled bool
	From    string
}

// HandleTask implements asynq.Handler for TaskDomainEventEmail.
func (m Mailer) HandleTask(_ context.Context, task *asynq.Task) error {
	if !m.Enabled || m.Mail == nil {
		return nil
	}
	var payload EmailTaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("notify: decode task: %v: %w", err, asynq.SkipRetry)
	}
	fields := map[string]any{}
	if len(payload.Payload) > 0 {
		if err := json.Unmarshal(payload.Payload, &fields); err != nil {
			return fmt.Errorf("notify: decode event payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	to := extractRecipient(fields)
	if to == "" {
		m.Log.Debug().Str("topic", payload.Topic).Msg("event has no recipient, skipping email")
		return nil
	}
	subject := subjectFor(payload.Topic)
	body := bodyFor(payload.Topic, fields, payload.OccurredAt)
	if err := m.Mail.Send(to, subject, body); err != nil {
		return fmt.Errorf("notify: send email: %w", err)
	}
	m.Log.Info().Str("topic", payload.Topic).Str("to", to).Msg("email sent")
	return nil
}

func extractRecipient(payload map[string]any) string {
	keys := []string{"email", "recipient", "userEmail", "customerEmail"}
	for _, key := range keys {
		if val, ok := payload[key]; ok {
			if s, ok := val.(string); ok {
				s = strings.TrimSpace(s)
				if s != "" {
					return s
				}
			}
		}
	}
	return ""
}

func subjectFor(topic string) string {
	switch topic {
	case events.TopicOrderCreated:
		return "Order received"
	case events.TopicOrderPaid:
		return "Payment confirmed"
	case events.TopicOrderCancelled:
		return "Order cancelled"
	case events.TopicPaymentFailed:
		return "Payment failed"
	case events.TopicPaymentRefunded:
		return "Payment refunded"
	case events.TopicShipmentShipped:
		return "Your order has shipped"
	case events.TopicShipmentOutForDelivery:
		return "Your order is out for delivery"
	case events.TopicShipmentDelivered:
		return "Your order was delivered"
	default:
		return fmt.Sprintf("Notification: %s", topic)
	}
}

func bodyFor(topic string, payload map[string]any, occurred time.Time) string {
	summary := fmt.Sprintf("Event %s occurred at %s.", topic, occurred.Format(time.RFC3339))
	if orderNumber, ok := payload["orderNumber"].(string); ok && orderNumber != "" {
		summary += fmt.Sprintf("\nOrder: %s", orderNumber)
	}
	if orderID, ok := payload["orderId"].(string); ok && orderID != "" {
		summary += fmt.Sprintf("\nOrder ID: %s", orderID)
	}
	if tracking, ok := payload["trackingNumber"].(string); ok && tracking != "" {
		summary += fmt.Sprintf("\nTracking number: %s", tracking)
	}
	if note, ok := payload["message"].(string); ok && note != "" {
		summary += "\n" + note
	}
	return summary
}
