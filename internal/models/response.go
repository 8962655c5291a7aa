package models

import "time"

type OrderResponse struct {
	ID              string                 `json:"order_id"`
	Email           string                 `json:"email"`
	Status          string                 `json:"status"`
	PaymentStatus   string                 `json:"payment_status"`
	AmountTotal     int64                  `json:"amount_total"`
	AmountDisplay   string                 `json:"amount_display"`
	Currency        string                 `json:"currency"`
	PrintSize       string                 `json:"print_size"`
	SKU             string                 `json:"sku"`
	ShippingAddress ShippingAddress        `json:"shipping_address"`
	HDImageURL      string                 `json:"hd_image_url,omitempty"`
	PrintAssetURL   string                 `json:"print_asset_url,omitempty"`
	PartnerOrderID  string                 `json:"partner_order_id,omitempty"`
	TrackingNumber  string                 `json:"tracking_number,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

type OrderListResponse struct {
	Orders []OrderSummary `json:"orders"`
}

type OrderSummary struct {
	ID          string    `json:"order_id"`
	Email       string    `json:"email"`
	Status      string    `json:"status"`
	AmountTotal int64     `json:"amount_total"`
	Currency    string    `json:"currency"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ActionResponse is returned by the operator action endpoints. Status is
// the order status after the action completed.
type ActionResponse struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

// ToResponse flattens nullable columns for the operator console.
func (o *Order) ToResponse() OrderResponse {
	return OrderResponse{
		ID:              o.ID,
		Email:           o.Email,
		Status:          o.Status.String(),
		PaymentStatus:   o.PaymentStatus,
		AmountTotal:     o.AmountTotal,
		AmountDisplay:   FormatAmount(o.AmountTotal, o.Currency),
		Currency:        o.Currency,
		PrintSize:       o.PrintSize,
		SKU:             o.SKU,
		ShippingAddress: o.ShippingAddress,
		HDImageURL:      o.HDImageURL.String,
		PrintAssetURL:   o.PrintAssetURL.String,
		PartnerOrderID:  o.PartnerOrderID.String,
		TrackingNumber:  o.TrackingNumber.String,
		Metadata:        o.MetadataMap(),
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

func (o *Order) ToSummary() OrderSummary {
	return OrderSummary{
		ID:          o.ID,
		Email:       o.Email,
		Status:      o.Status.String(),
		AmountTotal: o.AmountTotal,
		Currency:    o.Currency,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
}
