package stripe_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taletoprint-backend/internal/stripe"
)

const webhookSecret = "whsec_test_secret"

var sessionPayload = []byte(`{
	"id": "evt_1",
	"type": "checkout.session.completed",
	"data": {
		"object": {
			"id": "cs_ABC123",
			"amount_total": 5999,
			"currency": "gbp",
			"payment_intent": "pi_123",
			"payment_status": "paid",
			"metadata": {"preview_id": "prev_1", "print_size": "A4"},
			"customer_details": {"email": "customer@example.com", "name": "Jo Harper"},
			"shipping_details": {
				"name": "Jo Harper",
				"address": {"line1": "12 Harbour Lane", "city": "Whitby", "postal_code": "YO21 1DN", "country": "GB"}
			}
		}
	}
}`)

func TestConstructEvent_ValidSignature(t *testing.T) {
	header := stripe.SignPayload(sessionPayload, webhookSecret, time.Now())

	event, err := stripe.ConstructEvent(sessionPayload, header, webhookSecret)
	require.NoError(t, err)
	assert.Equal(t, stripe.EventCheckoutSessionCompleted, event.Type)

	session, err := event.CheckoutSession()
	require.NoError(t, err)
	assert.Equal(t, "cs_ABC123", session.ID)
	assert.Equal(t, int64(5999), session.AmountTotal)
	assert.Equal(t, "pi_123", session.PaymentIntent)
	assert.Equal(t, "YO21 1DN", session.ShippingDetails.Address.PostalCode)
	assert.Equal(t, "prev_1", session.Metadata["preview_id"])
}

func TestConstructEvent_MissingHeader(t *testing.T) {
	_, err := stripe.ConstructEvent(sessionPayload, "", webhookSecret)
	assert.ErrorIs(t, err, stripe.ErrMissingSignature)
}

func TestConstructEvent_WrongSecret(t *testing.T) {
	header := stripe.SignPayload(sessionPayload, "whsec_other", time.Now())

	_, err := stripe.ConstructEvent(sessionPayload, header, webhookSecret)
	assert.ErrorIs(t, err, stripe.ErrInvalidSignature)
}

func TestConstructEvent_TamperedPayload(t *testing.T) {
	header := stripe.SignPayload(sessionPayload, webhookSecret, time.Now())
	tampered := append([]byte{}, sessionPayload...)
	tampered[len(tampered)-2] = ' '

	_, err := stripe.ConstructEvent(tampered, header, webhookSecret)
	assert.ErrorIs(t, err, stripe.ErrInvalidSignature)
}

func TestConstructEvent_StaleTimestamp(t *testing.T) {
	header := stripe.SignPayload(sessionPayload, webhookSecret, time.Now().Add(-10*time.Minute))

	_, err := stripe.ConstructEvent(sessionPayload, header, webhookSecret)
	assert.ErrorIs(t, err, stripe.ErrStaleSignature)
}

func TestConstructEvent_MalformedHeader(t *testing.T) {
	for _, header := range []string{"t=notanumber,v1=abc", "v1=abc", "t=123"} {
		_, err := stripe.ConstructEvent(sessionPayload, header, webhookSecret)
		assert.Error(t, err, fmt.Sprintf("header %q should be rejected", header))
	}
}

func TestConstructEvent_SecondSignatureAccepted(t *testing.T) {
	// Stripe sends multiple v1 entries while a secret rotation is in
	// flight; any one matching is enough.
	valid := stripe.SignPayload(sessionPayload, webhookSecret, time.Now())
	other := stripe.SignPayload(sessionPayload, "whsec_old", time.Now())
	combined := valid + ",v1=" + other[len(other)-64:]

	event, err := stripe.ConstructEvent(sessionPayload, combined, webhookSecret)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)
}
