package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"taletoprint-backend/internal/config"
	"taletoprint-backend/internal/fulfillment"
	"taletoprint-backend/internal/models"
	"taletoprint-backend/internal/stripe"
)

// PaymentNotificationService is the slice of the fulfillment service the
// webhook intake needs.
type PaymentNotificationService interface {
	HandleCheckoutCompleted(ctx context.Context, session *stripe.CheckoutSession) error
}

type WebhookHandler struct {
	config  *config.Config
	service PaymentNotificationService
}

func NewWebhookHandler(cfg *config.Config, service PaymentNotificationService) *WebhookHandler {
	return &WebhookHandler{
		config:  cfg,
		service: service,
	}
}

// HandleStripeWebhook godoc
// @Summary     Stripe webhook endpoint
// @Description Receives signed payment events from Stripe. checkout.session.completed triggers order creation and the fulfillment pipeline.
// @Tags        webhooks
// @Accept      json
// @Produce     json
// @Param       Stripe-Signature header string true "Stripe webhook signature"
// @Success     200 {object} map[string]string "status"
// @Failure     400 {object} models.ErrorResponse
// @Failure     401 {object} models.ErrorResponse
// @Router      /webhooks/stripe [post]
func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "failed to read request body",
			Message: err.Error(),
		})
		return
	}

	event, err := stripe.ConstructEvent(payload, c.GetHeader("Stripe-Signature"), h.config.StripeWebhookSecret)
	if err != nil {
		log.Warn().Err(err).Msg("rejected webhook with bad signature")
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{
			Error:   "signature verification failed",
			Message: err.Error(),
		})
		return
	}

	switch event.Type {
	case stripe.EventCheckoutSessionCompleted:
		session, err := event.CheckoutSession()
		if err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:   "failed to parse event",
				Message: err.Error(),
			})
			return
		}

		if err := h.service.HandleCheckoutCompleted(c.Request.Context(), session); err != nil {
			if errors.Is(err, fulfillment.ErrValidation) {
				// Terminal: no order was created and a redelivery cannot
				// succeed either.
				c.JSON(http.StatusBadRequest, models.ErrorResponse{
					Error:   "validation failed",
					Message: err.Error(),
				})
				return
			}
			// The order exists and carries the failure; acknowledge so the
			// provider does not retry-storm. Remediation is the operator's.
			log.Error().Err(err).Str("session_id", session.ID).
				Msg("fulfillment failed after order intake")
			c.JSON(http.StatusOK, gin.H{"status": "ok", "fulfillment": "failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "ok"})

	case stripe.EventPaymentIntentSucceeded:
		// Informational only; checkout.session.completed drives fulfillment.
		c.JSON(http.StatusOK, gin.H{"status": "ok"})

	default:
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
	}
}
