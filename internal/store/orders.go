package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"taletoprint-backend/internal/models"
)

var (
	ErrNotFound = errors.New("order not found")

	// ErrStaleStatus means the row no longer holds the status the caller
	// validated a transition against.
	ErrStaleStatus = errors.New("order status changed concurrently")
)

// Client is the order record store, the single source of truth for order
// status and pipeline artifacts.
type Client struct {
	db *sql.DB
}

func NewClient(connectionString string) (*Client, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Client{db: db}, nil
}

const orderColumns = `id, email, status, payment_status, amount_total, currency, print_size, sku,
		shipping_address, session_id, payment_intent_id, hd_image_url, print_asset_url,
		partner_order_id, tracking_number, metadata, created_at, updated_at`

// CreateOrder inserts a new order. The id is deterministic per payment
// session, so a concurrent duplicate delivery conflicts instead of
// inserting a second row.
func (c *Client) CreateOrder(order *models.Order) error {
	addressJSON, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("failed to marshal shipping address: %w", err)
	}
	if len(order.Metadata) == 0 {
		order.Metadata = json.RawMessage("{}")
	}

	_, err = c.db.Exec(`
		INSERT INTO orders (id, email, status, payment_status, amount_total, currency, print_size, sku,
			shipping_address, session_id, payment_intent_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`, order.ID, order.Email, order.Status.String(), order.PaymentStatus, order.AmountTotal, order.Currency,
		order.PrintSize, order.SKU, addressJSON, order.SessionID, order.PaymentIntentID, order.Metadata)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	return nil
}

func (c *Client) GetOrder(orderID string) (*models.Order, error) {
	row := c.db.QueryRow(`SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)
	return scanOrder(row)
}

func (c *Client) ListOrders(limit int) ([]models.Order, error) {
	rows, err := c.db.Query(`
		SELECT `+orderColumns+`
		FROM orders
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}

	return orders, rows.Err()
}

// UpdateStatus writes a status the fulfillment state machine has already
// validated. Nothing else writes the status column.
func (c *Client) UpdateStatus(orderID string, status models.OrderStatus) error {
	_, err := c.db.Exec(`
		UPDATE orders
		SET status = $1, updated_at = NOW()
		WHERE id = $2
	`, status.String(), orderID)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	return nil
}

// UpdateStatusFrom writes the status only while the row still holds the
// status the transition was validated against. A concurrent action that
// got there first leaves zero rows affected.
func (c *Client) UpdateStatusFrom(orderID string, from, to models.OrderStatus) error {
	res, err := c.db.Exec(`
		UPDATE orders
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`, to.String(), orderID, from.String())
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s -> %s: %w", from, to, ErrStaleStatus)
	}
	return nil
}

func (c *Client) UpdatePaymentStatus(orderID, paymentStatus string) error {
	_, err := c.db.Exec(`
		UPDATE orders
		SET payment_status = $1, updated_at = NOW()
		WHERE id = $2
	`, paymentStatus, orderID)
	if err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	return nil
}

func (c *Client) SetHDImageURL(orderID, url string) error {
	_, err := c.db.Exec(`
		UPDATE orders
		SET hd_image_url = $1, updated_at = NOW()
		WHERE id = $2
	`, url, orderID)
	if err != nil {
		return fmt.Errorf("failed to set hd image url: %w", err)
	}
	return nil
}

func (c *Client) SetPrintAssetURL(orderID, url string) error {
	_, err := c.db.Exec(`
		UPDATE orders
		SET print_asset_url = $1, updated_at = NOW()
		WHERE id = $2
	`, url, orderID)
	if err != nil {
		return fmt.Errorf("failed to set print asset url: %w", err)
	}
	return nil
}

func (c *Client) SetPartnerOrderID(orderID, partnerOrderID string) error {
	_, err := c.db.Exec(`
		UPDATE orders
		SET partner_order_id = $1, updated_at = NOW()
		WHERE id = $2
	`, partnerOrderID, orderID)
	if err != nil {
		return fmt.Errorf("failed to set partner order id: %w", err)
	}
	return nil
}

func (c *Client) SetPaymentIntentID(orderID, paymentIntentID string) error {
	_, err := c.db.Exec(`
		UPDATE orders
		SET payment_intent_id = $1, updated_at = NOW()
		WHERE id = $2
	`, paymentIntentID, orderID)
	if err != nil {
		return fmt.Errorf("failed to set payment intent id: %w", err)
	}
	return nil
}

// ClearArtifacts wipes every pipeline artifact before a retry re-runs the
// pipeline, so a successful re-run leaves no stale references behind.
func (c *Client) ClearArtifacts(orderID string) error {
	_, err := c.db.Exec(`
		UPDATE orders
		SET hd_image_url = NULL, print_asset_url = NULL, partner_order_id = NULL,
			tracking_number = NULL, updated_at = NOW()
		WHERE id = $1
	`, orderID)
	if err != nil {
		return fmt.Errorf("failed to clear order artifacts: %w", err)
	}
	return nil
}

// MergeMetadata folds keys into the order's metadata map, preserving
// everything already there (pipeline inputs, audit trail).
func (c *Client) MergeMetadata(orderID string, keys map[string]interface{}) error {
	patch, err := json.Marshal(keys)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata patch: %w", err)
	}

	_, err = c.db.Exec(`
		UPDATE orders
		SET metadata = metadata || $1::jsonb, updated_at = NOW()
		WHERE id = $2
	`, patch, orderID)
	if err != nil {
		return fmt.Errorf("failed to merge order metadata: %w", err)
	}
	return nil
}

// GetPreview looks up the upstream preview an order references. Previews
// are owned by the preview-generation pipeline; this is read-only.
func (c *Client) GetPreview(previewID string) (*models.Preview, error) {
	var preview models.Preview
	err := c.db.QueryRow(`
		SELECT id, image_url, prompt, style, created_at
		FROM previews
		WHERE id = $1
	`, previewID).Scan(&preview.ID, &preview.ImageURL, &preview.Prompt, &preview.Style, &preview.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("preview %s: %w", previewID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get preview: %w", err)
	}

	return &preview, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var order models.Order
	var addressJSON []byte
	err := row.Scan(
		&order.ID, &order.Email, &order.Status, &order.PaymentStatus, &order.AmountTotal,
		&order.Currency, &order.PrintSize, &order.SKU, &addressJSON, &order.SessionID,
		&order.PaymentIntentID, &order.HDImageURL, &order.PrintAssetURL, &order.PartnerOrderID,
		&order.TrackingNumber, &order.Metadata, &order.CreatedAt, &order.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}

	if len(addressJSON) > 0 {
		if err := json.Unmarshal(addressJSON, &order.ShippingAddress); err != nil {
			return nil, fmt.Errorf("failed to unmarshal shipping address: %w", err)
		}
	}

	return &order, nil
}
