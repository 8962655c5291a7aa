package models

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// OrderIDPrefix is prepended to the checkout session suffix so order ids
// stay human-legible ("TTP-ABC123") and deterministic per payment session.
const OrderIDPrefix = "TTP-"

// OrderIDFromSession derives the order id from a Stripe checkout session id.
// The same session always maps to the same order id, which is what makes
// notification replays safe to upsert.
func OrderIDFromSession(sessionID string) string {
	return OrderIDPrefix + strings.TrimPrefix(sessionID, "cs_")
}

type Order struct {
	ID              string
	Email           string
	Status          OrderStatus
	PaymentStatus   string
	AmountTotal     int64 // minor currency units, never floats
	Currency        string
	PrintSize       string
	SKU             string
	ShippingAddress ShippingAddress
	SessionID       string
	PaymentIntentID sql.NullString
	HDImageURL      sql.NullString
	PrintAssetURL   sql.NullString
	PartnerOrderID  sql.NullString
	TrackingNumber  sql.NullString
	Metadata        json.RawMessage
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type ShippingAddress struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Validate checks the fields the print partner refuses to accept orders
// without. A missing field is a terminal validation failure, not a retry.
func (a ShippingAddress) Validate() error {
	missing := []string{}
	if a.Name == "" {
		missing = append(missing, "name")
	}
	if a.Line1 == "" {
		missing = append(missing, "line1")
	}
	if a.City == "" {
		missing = append(missing, "city")
	}
	if a.PostalCode == "" {
		missing = append(missing, "postal_code")
	}
	if a.Country == "" {
		missing = append(missing, "country")
	}
	if len(missing) > 0 {
		return fmt.Errorf("shipping address missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// MetadataMap decodes the free-form metadata column. A nil or empty column
// decodes to an empty map so callers can mutate and re-encode directly.
func (o *Order) MetadataMap() map[string]interface{} {
	meta := map[string]interface{}{}
	if len(o.Metadata) > 0 {
		_ = json.Unmarshal(o.Metadata, &meta)
	}
	return meta
}

// Preview is the upstream low-resolution artifact an order was bought from.
// It is owned by the preview-generation pipeline and read-only here.
type Preview struct {
	ID        string
	ImageURL  string
	Prompt    string
	Style     string
	CreatedAt time.Time
}
