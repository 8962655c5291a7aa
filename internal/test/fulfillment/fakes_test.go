package fulfillment_test

import (
	"context"
	"encoding/json"
	"fmt"

	"taletoprint-backend/internal/models"
	"taletoprint-backend/internal/printfile"
	"taletoprint-backend/internal/prodigi"
	"taletoprint-backend/internal/replicate"
	"taletoprint-backend/internal/store"
	"taletoprint-backend/internal/stripe"
)

// fakeStore is an in-memory order record store. GetOrder returns copies so
// the service's in-memory mutations never leak into stored state, matching
// how a database read behaves.
type fakeStore struct {
	orders   map[string]*models.Order
	previews map[string]*models.Preview
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:   map[string]*models.Order{},
		previews: map[string]*models.Preview{},
	}
}

func (f *fakeStore) CreateOrder(order *models.Order) error {
	if _, exists := f.orders[order.ID]; exists {
		return nil // deterministic id conflicts are a no-op, like ON CONFLICT DO NOTHING
	}
	clone := *order
	f.orders[order.ID] = &clone
	return nil
}

func (f *fakeStore) GetOrder(orderID string) (*models.Order, error) {
	order, ok := f.orders[orderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := *order
	return &clone, nil
}

func (f *fakeStore) ListOrders(limit int) ([]models.Order, error) {
	var out []models.Order
	for _, o := range f.orders {
		out = append(out, *o)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateStatus(orderID string, status models.OrderStatus) error {
	order, ok := f.orders[orderID]
	if !ok {
		return store.ErrNotFound
	}
	order.Status = status
	return nil
}

func (f *fakeStore) UpdateStatusFrom(orderID string, from, to models.OrderStatus) error {
	order, ok := f.orders[orderID]
	if !ok {
		return store.ErrNotFound
	}
	if order.Status != from {
		return fmt.Errorf("%s -> %s: %w", from, to, store.ErrStaleStatus)
	}
	order.Status = to
	return nil
}

func (f *fakeStore) UpdatePaymentStatus(orderID, paymentStatus string) error {
	order, ok := f.orders[orderID]
	if !ok {
		return store.ErrNotFound
	}
	order.PaymentStatus = paymentStatus
	return nil
}

func (f *fakeStore) SetHDImageURL(orderID, url string) error {
	order, ok := f.orders[orderID]
	if !ok {
		return store.ErrNotFound
	}
	order.HDImageURL.String = url
	order.HDImageURL.Valid = true
	return nil
}

func (f *fakeStore) SetPrintAssetURL(orderID, url string) error {
	order, ok := f.orders[orderID]
	if !ok {
		return store.ErrNotFound
	}
	order.PrintAssetURL.String = url
	order.PrintAssetURL.Valid = true
	return nil
}

func (f *fakeStore) SetPartnerOrderID(orderID, partnerOrderID string) error {
	order, ok := f.orders[orderID]
	if !ok {
		return store.ErrNotFound
	}
	order.PartnerOrderID.String = partnerOrderID
	order.PartnerOrderID.Valid = true
	return nil
}

func (f *fakeStore) SetPaymentIntentID(orderID, paymentIntentID string) error {
	order, ok := f.orders[orderID]
	if !ok {
		return store.ErrNotFound
	}
	order.PaymentIntentID.String = paymentIntentID
	order.PaymentIntentID.Valid = true
	return nil
}

func (f *fakeStore) ClearArtifacts(orderID string) error {
	order, ok := f.orders[orderID]
	if !ok {
		return store.ErrNotFound
	}
	order.HDImageURL.Valid = false
	order.HDImageURL.String = ""
	order.PrintAssetURL.Valid = false
	order.PrintAssetURL.String = ""
	order.PartnerOrderID.Valid = false
	order.PartnerOrderID.String = ""
	order.TrackingNumber.Valid = false
	order.TrackingNumber.String = ""
	return nil
}

func (f *fakeStore) MergeMetadata(orderID string, keys map[string]interface{}) error {
	order, ok := f.orders[orderID]
	if !ok {
		return store.ErrNotFound
	}
	meta := map[string]interface{}{}
	if len(order.Metadata) > 0 {
		_ = json.Unmarshal(order.Metadata, &meta)
	}
	for k, v := range keys {
		meta[k] = v
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	order.Metadata = data
	return nil
}

func (f *fakeStore) GetPreview(previewID string) (*models.Preview, error) {
	preview, ok := f.previews[previewID]
	if !ok {
		return nil, fmt.Errorf("preview %s: %w", previewID, store.ErrNotFound)
	}
	return preview, nil
}

type fakeGenerator struct {
	url   string
	err   error
	calls int
}

func (f *fakeGenerator) Generate(_ context.Context, _ replicate.GenerationRequest) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("%s?run=%d", f.url, f.calls), nil
}

type fakeComposer struct {
	err   error
	calls int
}

func (f *fakeComposer) Compose(_ context.Context, imageURL, printSize, orderID string) (*printfile.PrintFile, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &printfile.PrintFile{
		Data:     []byte("jpeg-bytes"),
		Filename: orderID + "_" + printSize + "_print.jpg",
		Width:    2480,
		Height:   3508,
	}, nil
}

type fakeUploader struct {
	err   error
	calls int
}

func (f *fakeUploader) UploadPrintFile(orderID string, file *printfile.PrintFile) (string, string, error) {
	f.calls++
	if f.err != nil {
		return "", "", f.err
	}
	key := fmt.Sprintf("orders/%s/%s", orderID, file.Filename)
	return key, fmt.Sprintf("https://assets.test/%s?sig=%d", key, f.calls), nil
}

type fakePartner struct {
	orderID string
	err     error
	calls   int
}

func (f *fakePartner) CreateOrder(_ context.Context, _ prodigi.OrderRequest) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.orderID, nil
}

type fakePayments struct {
	paymentIntent string
	refundID      string
	refundErr     error
	sessionCalls  int
	refundCalls   int
}

func (f *fakePayments) GetCheckoutSession(_ context.Context, sessionID string) (*stripe.CheckoutSession, error) {
	f.sessionCalls++
	return &stripe.CheckoutSession{ID: sessionID, PaymentIntent: f.paymentIntent}, nil
}

func (f *fakePayments) CreateRefund(_ context.Context, paymentIntentID string) (*stripe.Refund, error) {
	f.refundCalls++
	if f.refundErr != nil {
		return nil, f.refundErr
	}
	return &stripe.Refund{ID: f.refundID, Status: "succeeded", PaymentIntent: paymentIntentID}, nil
}

type fakePublisher struct {
	events []string
}

func (f *fakePublisher) PublishOrderEvent(orderID, event string, payload map[string]interface{}) {
	f.events = append(f.events, event)
}
