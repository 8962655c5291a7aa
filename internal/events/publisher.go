package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/supabase-community/supabase-go"
)

// Publisher records order lifecycle events into the order_events table via
// PostgREST, which the operator console and Supabase Realtime subscribers
// pick up. Publishing is best-effort: a failed insert is logged and never
// fails the pipeline.
type Publisher struct {
	client *supabase.Client
}

func NewPublisher(supabaseURL, serviceKey string) (*Publisher, error) {
	client, err := supabase.NewClient(supabaseURL, serviceKey, nil)
	if err != nil {
		return nil, err
	}

	return &Publisher{client: client}, nil
}

type eventRow struct {
	ID        string                 `json:"id"`
	OrderID   string                 `json:"order_id"`
	Event     string                 `json:"event"`
	Payload   map[string]interface{} `json:"payload"`
	CreatedAt time.Time              `json:"created_at"`
}

func (p *Publisher) PublishOrderEvent(orderID, event string, payload map[string]interface{}) {
	if p == nil || p.client == nil {
		return
	}

	row := eventRow{
		ID:        uuid.New().String(),
		OrderID:   orderID,
		Event:     event,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}

	_, _, err := p.client.From("order_events").Insert(row, false, "", "minimal", "").Execute()
	if err != nil {
		log.Warn().Err(err).Str("order_id", orderID).Str("event", event).
			Msg("failed to publish order event")
	}
}

// Event payloads

func StatusChangedPayload(from, to string) map[string]interface{} {
	return map[string]interface{}{
		"from": from,
		"to":   to,
	}
}

func PipelineFailedPayload(step, errorMsg string) map[string]interface{} {
	return map[string]interface{}{
		"step":  step,
		"error": errorMsg,
	}
}

func PartnerSubmittedPayload(partnerOrderID string) map[string]interface{} {
	return map[string]interface{}{
		"partner_order_id": partnerOrderID,
	}
}

func RefundedPayload(refundID string, amount int64, currency string) map[string]interface{} {
	return map[string]interface{}{
		"refund_id": refundID,
		"amount":    amount,
		"currency":  currency,
	}
}
