package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"taletoprint-backend/internal/config"
	"taletoprint-backend/internal/events"
	"taletoprint-backend/internal/models"
	"taletoprint-backend/internal/printfile"
	"taletoprint-backend/internal/prodigi"
	"taletoprint-backend/internal/replicate"
	"taletoprint-backend/internal/store"
	"taletoprint-backend/internal/stripe"
)

// Collaborator interfaces. Every external dependency is injected so tests
// substitute fakes; there is no shared global client state.

type ImageGenerator interface {
	Generate(ctx context.Context, req replicate.GenerationRequest) (string, error)
}

type PrintComposer interface {
	Compose(ctx context.Context, imageURL, printSize, orderID string) (*printfile.PrintFile, error)
}

type AssetUploader interface {
	UploadPrintFile(orderID string, file *printfile.PrintFile) (storageKey string, signedURL string, err error)
}

type PrintPartner interface {
	CreateOrder(ctx context.Context, req prodigi.OrderRequest) (string, error)
}

type PaymentProvider interface {
	GetCheckoutSession(ctx context.Context, sessionID string) (*stripe.CheckoutSession, error)
	CreateRefund(ctx context.Context, paymentIntentID string) (*stripe.Refund, error)
}

type OrderStore interface {
	CreateOrder(order *models.Order) error
	GetOrder(orderID string) (*models.Order, error)
	ListOrders(limit int) ([]models.Order, error)
	UpdateStatus(orderID string, status models.OrderStatus) error
	UpdateStatusFrom(orderID string, from, to models.OrderStatus) error
	UpdatePaymentStatus(orderID, paymentStatus string) error
	SetHDImageURL(orderID, url string) error
	SetPrintAssetURL(orderID, url string) error
	SetPartnerOrderID(orderID, partnerOrderID string) error
	SetPaymentIntentID(orderID, paymentIntentID string) error
	ClearArtifacts(orderID string) error
	MergeMetadata(orderID string, keys map[string]interface{}) error
	GetPreview(previewID string) (*models.Preview, error)
}

type EventPublisher interface {
	PublishOrderEvent(orderID, event string, payload map[string]interface{})
}

// Service drives an order through the fulfillment pipeline and owns every
// status mutation. It runs synchronously inside the triggering request;
// a mid-run crash leaves the order at the last persisted status for an
// operator retry.
type Service struct {
	cfg       *config.Config
	orders    OrderStore
	generator ImageGenerator
	composer  PrintComposer
	uploader  AssetUploader
	partner   PrintPartner
	payments  PaymentProvider
	publisher EventPublisher
}

func NewService(
	cfg *config.Config,
	orders OrderStore,
	generator ImageGenerator,
	composer PrintComposer,
	uploader AssetUploader,
	partner PrintPartner,
	payments PaymentProvider,
	publisher EventPublisher,
) *Service {
	return &Service{
		cfg:       cfg,
		orders:    orders,
		generator: generator,
		composer:  composer,
		uploader:  uploader,
		partner:   partner,
		payments:  payments,
		publisher: publisher,
	}
}

// transition validates and persists a status change. Order.Status is never
// written any other way.
func (s *Service) transition(order *models.Order, to models.OrderStatus) error {
	if err := checkTransition(order.Status, to); err != nil {
		return err
	}
	if err := s.orders.UpdateStatusFrom(order.ID, order.Status, to); err != nil {
		// A concurrent action already moved the order; surface it as an
		// invalid transition so the edge maps it to a conflict.
		if errors.Is(err, store.ErrStaleStatus) {
			return fmt.Errorf("%w: %v", ErrInvalidTransition, err)
		}
		return err
	}
	s.publisher.PublishOrderEvent(order.ID, "status_changed",
		events.StatusChangedPayload(order.Status.String(), to.String()))
	order.Status = to
	return nil
}

// HandleCheckoutCompleted is the payment-notification intake. It is
// idempotent per checkout session: duplicates are acknowledged without
// re-entering the pipeline, and a re-delivery for a failed order becomes a
// retry.
func (s *Service) HandleCheckoutCompleted(ctx context.Context, session *stripe.CheckoutSession) error {
	orderID := models.OrderIDFromSession(session.ID)

	existing, err := s.orders.GetOrder(orderID)
	if err == nil {
		if existing.Status == models.StatusFailed {
			log.Info().Str("order_id", orderID).Msg("payment notification re-delivered for failed order, retrying")
			return s.Retry(ctx, orderID)
		}
		log.Info().Str("order_id", orderID).Str("status", existing.Status.String()).
			Msg("duplicate payment notification, ignoring")
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to look up order %s: %w", orderID, err)
	}

	previewID := session.Metadata["preview_id"]
	if previewID == "" {
		return fmt.Errorf("%w: checkout session %s has no preview_id", ErrValidation, session.ID)
	}
	preview, err := s.orders.GetPreview(previewID)
	if err != nil {
		return fmt.Errorf("%w: unknown preview for session %s: %v", ErrValidation, session.ID, err)
	}

	address := models.ShippingAddress{
		Name:       session.ShippingDetails.Name,
		Line1:      session.ShippingDetails.Address.Line1,
		Line2:      session.ShippingDetails.Address.Line2,
		City:       session.ShippingDetails.Address.City,
		PostalCode: session.ShippingDetails.Address.PostalCode,
		Country:    session.ShippingDetails.Address.Country,
	}
	if address.Name == "" {
		address.Name = session.CustomerDetails.Name
	}
	if err := address.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	prompt := session.Metadata["prompt"]
	if prompt == "" {
		prompt = preview.Prompt
	}
	style := session.Metadata["style"]
	if style == "" {
		style = preview.Style
	}

	order := &models.Order{
		ID:              orderID,
		Email:           session.CustomerDetails.Email,
		Status:          models.StatusPaid,
		PaymentStatus:   models.PaymentStatusPaid,
		AmountTotal:     session.AmountTotal,
		Currency:        session.Currency,
		PrintSize:       session.Metadata["print_size"],
		SKU:             session.Metadata["sku"],
		ShippingAddress: address,
		SessionID:       session.ID,
	}
	if session.PaymentIntent != "" {
		order.PaymentIntentID.String = session.PaymentIntent
		order.PaymentIntentID.Valid = true
	}
	order.Metadata = mustJSON(map[string]interface{}{
		"story":       session.Metadata["story"],
		"style":       style,
		"prompt":      prompt,
		"preview_id":  preview.ID,
		"preview_url": preview.ImageURL,
	})

	if err := s.orders.CreateOrder(order); err != nil {
		return err
	}
	s.publisher.PublishOrderEvent(order.ID, "order_created",
		events.StatusChangedPayload("", models.StatusPaid.String()))

	log.Info().Str("order_id", order.ID).Int64("amount", order.AmountTotal).
		Str("currency", order.Currency).Msg("order created from checkout session")

	return s.Run(ctx, order)
}

// Run executes the pipeline from PAID or GENERATING: HD generation,
// print-file composition, asset upload, then either the approval hold or
// automatic partner submission. State is persisted after every step, in
// order, so an observer never sees a status ahead of completed work.
func (s *Service) Run(ctx context.Context, order *models.Order) error {
	if order.Status != models.StatusGenerating {
		if err := s.transition(order, models.StatusGenerating); err != nil {
			return err
		}
	}

	_, printURL, err := s.runGenerationSteps(ctx, order)
	if err != nil {
		return s.failPipeline(order, err)
	}

	if !s.cfg.AutoSubmit {
		if err := s.transition(order, models.StatusAwaitingApproval); err != nil {
			return err
		}
		log.Info().Str("order_id", order.ID).Msg("pipeline complete, awaiting operator approval")
		return nil
	}

	if err := s.transition(order, models.StatusPrintReady); err != nil {
		return err
	}

	partnerID, err := s.submitToPartner(ctx, order, printURL)
	if err != nil {
		// The print-ready asset is valid; keep the order approvable
		// instead of failing it.
		s.recordError(order, "partner_submit", err)
		return fmt.Errorf("partner submission failed for %s: %w", order.ID, err)
	}

	if err := s.orders.SetPartnerOrderID(order.ID, partnerID); err != nil {
		return err
	}
	order.PartnerOrderID.String = partnerID
	order.PartnerOrderID.Valid = true
	s.publisher.PublishOrderEvent(order.ID, "partner_submitted", events.PartnerSubmittedPayload(partnerID))

	return s.transition(order, models.StatusPrinting)
}

// runGenerationSteps covers pipeline steps 2-4: HD image, print file,
// durable upload. Shared between Run and Regenerate.
func (s *Service) runGenerationSteps(ctx context.Context, order *models.Order) (string, string, error) {
	meta := order.MetadataMap()

	genReq := replicate.GenerationRequest{
		Prompt:     metaString(meta, "prompt"),
		Style:      metaString(meta, "style"),
		PreviewURL: metaString(meta, "preview_url"),
	}
	hdURL, err := s.generator.Generate(ctx, genReq)
	if err != nil {
		return "", "", &stepError{step: "generate_hd", err: err}
	}
	if err := s.orders.SetHDImageURL(order.ID, hdURL); err != nil {
		return "", "", &stepError{step: "generate_hd", err: err}
	}
	order.HDImageURL.String = hdURL
	order.HDImageURL.Valid = true
	log.Info().Str("order_id", order.ID).Msg("hd image generated")

	file, err := s.composer.Compose(ctx, hdURL, order.PrintSize, order.ID)
	if err != nil {
		return "", "", &stepError{step: "compose_print_file", err: err}
	}
	log.Info().Str("order_id", order.ID).Int("width", file.Width).Int("height", file.Height).
		Msg("print file composed")

	storageKey, signedURL, err := s.uploader.UploadPrintFile(order.ID, file)
	if err != nil {
		return "", "", &stepError{step: "upload_asset", err: err}
	}
	if err := s.orders.SetPrintAssetURL(order.ID, signedURL); err != nil {
		return "", "", &stepError{step: "upload_asset", err: err}
	}
	if err := s.orders.MergeMetadata(order.ID, map[string]interface{}{"print_asset_key": storageKey}); err != nil {
		return "", "", &stepError{step: "upload_asset", err: err}
	}
	order.PrintAssetURL.String = signedURL
	order.PrintAssetURL.Valid = true
	log.Info().Str("order_id", order.ID).Str("storage_key", storageKey).Msg("print asset uploaded")

	return hdURL, signedURL, nil
}

// Retry re-runs the full pipeline. Permitted from any non-terminal status;
// artifacts from the prior attempt are cleared first so a successful
// re-run leaves no stale references.
func (s *Service) Retry(ctx context.Context, orderID string) error {
	order, err := s.orders.GetOrder(orderID)
	if err != nil {
		return err
	}
	if isTerminal(order.Status) {
		return fmt.Errorf("%w: %s", ErrTerminalStatus, order.Status)
	}

	if err := s.cfg.ValidatePipeline(); err != nil {
		s.recordError(order, "configuration", err)
		if order.Status != models.StatusFailed {
			if terr := s.transition(order, models.StatusFailed); terr != nil {
				return terr
			}
		}
		return fmt.Errorf("pipeline configuration invalid: %w", err)
	}

	if err := s.orders.ClearArtifacts(orderID); err != nil {
		return err
	}
	order.HDImageURL.Valid = false
	order.PrintAssetURL.Valid = false
	order.PartnerOrderID.Valid = false
	order.TrackingNumber.Valid = false

	if err := s.orders.MergeMetadata(orderID, map[string]interface{}{
		"retried_at": time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		return err
	}

	if order.Status != models.StatusGenerating {
		if err := s.transition(order, models.StatusGenerating); err != nil {
			return err
		}
	}

	log.Info().Str("order_id", orderID).Msg("operator retry, re-running pipeline")
	return s.Run(ctx, order)
}

// Regenerate re-runs the HD image, composition and upload steps only,
// leaving partner submission state untouched. Permitted from PRINT_READY;
// on failure the order reverts to PRINT_READY because the prior asset is
// still usable.
func (s *Service) Regenerate(ctx context.Context, orderID string) error {
	order, err := s.orders.GetOrder(orderID)
	if err != nil {
		return err
	}
	if order.Status != models.StatusPrintReady {
		return fmt.Errorf("%w: regenerate requires %s, order is %s",
			ErrWrongStatus, models.StatusPrintReady, order.Status)
	}

	if err := s.transition(order, models.StatusGenerating); err != nil {
		return err
	}

	if _, _, err := s.runGenerationSteps(ctx, order); err != nil {
		s.recordError(order, stepOf(err), err)
		if terr := s.transition(order, models.StatusPrintReady); terr != nil {
			return terr
		}
		return fmt.Errorf("regenerate failed for %s, reverted to %s: %w",
			orderID, models.StatusPrintReady, err)
	}

	log.Info().Str("order_id", orderID).Msg("regenerate complete")
	return s.transition(order, models.StatusPrintReady)
}

// Approve releases a held order to the print partner. Permitted from
// AWAITING_APPROVAL, and from PRINT_READY when a prior partner submission
// failed and is being re-attempted.
func (s *Service) Approve(ctx context.Context, orderID string) error {
	order, err := s.orders.GetOrder(orderID)
	if err != nil {
		return err
	}

	switch order.Status {
	case models.StatusAwaitingApproval:
		// normal release
	case models.StatusPrintReady:
		if order.PartnerOrderID.Valid {
			return fmt.Errorf("%w: order already submitted to partner as %s",
				ErrWrongStatus, order.PartnerOrderID.String)
		}
	default:
		return fmt.Errorf("%w: approve requires %s, order is %s",
			ErrWrongStatus, models.StatusAwaitingApproval, order.Status)
	}

	if !order.PrintAssetURL.Valid || order.PrintAssetURL.String == "" {
		return ErrMissingAsset
	}

	if order.Status == models.StatusAwaitingApproval {
		if err := s.transition(order, models.StatusPrintReady); err != nil {
			return err
		}
	}

	partnerID, err := s.submitToPartner(ctx, order, order.PrintAssetURL.String)
	if err != nil {
		s.recordError(order, "partner_submit", err)
		return fmt.Errorf("partner submission failed for %s: %w", orderID, err)
	}

	if err := s.orders.SetPartnerOrderID(orderID, partnerID); err != nil {
		return err
	}
	order.PartnerOrderID.String = partnerID
	order.PartnerOrderID.Valid = true
	if err := s.orders.MergeMetadata(orderID, map[string]interface{}{
		"approved_at": time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		return err
	}
	s.publisher.PublishOrderEvent(orderID, "partner_submitted", events.PartnerSubmittedPayload(partnerID))

	log.Info().Str("order_id", orderID).Str("partner_order_id", partnerID).Msg("order approved and submitted")
	return s.transition(order, models.StatusPrinting)
}

// Refund refunds the payment and terminates the order. A second call on an
// already refunded order is rejected before any payment-processor call.
func (s *Service) Refund(ctx context.Context, orderID string) error {
	order, err := s.orders.GetOrder(orderID)
	if err != nil {
		return err
	}
	if order.Status == models.StatusRefunded || order.PaymentStatus == models.PaymentStatusRefunded {
		return ErrAlreadyRefunded
	}
	if order.PaymentStatus != models.PaymentStatusPaid {
		return fmt.Errorf("%w: order payment status is %s", ErrWrongStatus, order.PaymentStatus)
	}

	paymentIntentID := order.PaymentIntentID.String
	if paymentIntentID == "" {
		session, err := s.payments.GetCheckoutSession(ctx, order.SessionID)
		if err != nil {
			return fmt.Errorf("failed to resolve payment intent for %s: %w", orderID, err)
		}
		if session.PaymentIntent == "" {
			return fmt.Errorf("checkout session %s has no payment intent", order.SessionID)
		}
		paymentIntentID = session.PaymentIntent
		if err := s.orders.SetPaymentIntentID(orderID, paymentIntentID); err != nil {
			return err
		}
	}

	refund, err := s.payments.CreateRefund(ctx, paymentIntentID)
	if err != nil {
		return fmt.Errorf("refund failed for %s: %w", orderID, err)
	}

	if err := s.orders.MergeMetadata(orderID, map[string]interface{}{
		"refund_id":   refund.ID,
		"refunded_at": time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		return err
	}
	if err := s.orders.UpdatePaymentStatus(orderID, models.PaymentStatusRefunded); err != nil {
		return err
	}
	// Refund is the one edge allowed out of DELIVERED; it bypasses the
	// terminal check but still goes through the store's status writer.
	if err := s.orders.UpdateStatus(orderID, models.StatusRefunded); err != nil {
		return err
	}
	s.publisher.PublishOrderEvent(orderID, "refunded",
		events.RefundedPayload(refund.ID, order.AmountTotal, order.Currency))

	log.Info().Str("order_id", orderID).Str("refund_id", refund.ID).
		Int64("amount", order.AmountTotal).Msg("order refunded")
	return nil
}

func (s *Service) submitToPartner(ctx context.Context, order *models.Order, assetURL string) (string, error) {
	req := prodigi.OrderRequest{
		MerchantReference: order.ID,
		ShippingMethod:    "Standard",
		Recipient: prodigi.Recipient{
			Name:  order.ShippingAddress.Name,
			Email: order.Email,
			Address: prodigi.Address{
				Line1:           order.ShippingAddress.Line1,
				Line2:           order.ShippingAddress.Line2,
				TownOrCity:      order.ShippingAddress.City,
				PostalOrZipCode: order.ShippingAddress.PostalCode,
				CountryCode:     order.ShippingAddress.Country,
			},
		},
		Items: []prodigi.Item{{
			SKU:    order.SKU,
			Copies: 1,
			Sizing: "fillPrintArea",
			Assets: []prodigi.Asset{{PrintArea: "default", URL: assetURL}},
		}},
	}
	return s.partner.CreateOrder(ctx, req)
}

// failPipeline records the step failure on the order and moves it to
// FAILED. Later steps never run after a failure.
func (s *Service) failPipeline(order *models.Order, err error) error {
	step := stepOf(err)
	s.recordError(order, step, err)

	if terr := s.transition(order, models.StatusFailed); terr != nil {
		log.Error().Err(terr).Str("order_id", order.ID).Msg("failed to mark order failed")
	}
	s.publisher.PublishOrderEvent(order.ID, "pipeline_failed",
		events.PipelineFailedPayload(step, err.Error()))

	log.Error().Err(err).Str("order_id", order.ID).Str("step", step).Msg("pipeline failed")
	return fmt.Errorf("pipeline step %s failed for %s: %w", step, order.ID, err)
}

func (s *Service) recordError(order *models.Order, step string, err error) {
	merr := s.orders.MergeMetadata(order.ID, map[string]interface{}{
		"last_error":  err.Error(),
		"failed_step": step,
		"failed_at":   time.Now().UTC().Format(time.RFC3339),
	})
	if merr != nil {
		log.Error().Err(merr).Str("order_id", order.ID).Msg("failed to record pipeline error")
	}
}

type stepError struct {
	step string
	err  error
}

func (e *stepError) Error() string { return fmt.Sprintf("%s: %v", e.step, e.err) }
func (e *stepError) Unwrap() error { return e.err }

func stepOf(err error) string {
	var se *stepError
	if errors.As(err, &se) {
		return se.step
	}
	return "pipeline"
}

func metaString(meta map[string]interface{}, key string) string {
	if v, ok := meta[key].(string); ok {
		return v
	}
	return ""
}

func mustJSON(v map[string]interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
