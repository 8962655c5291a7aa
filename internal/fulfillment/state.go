package fulfillment

import (
	"errors"
	"fmt"

	"taletoprint-backend/internal/models"
)

var (
	// ErrValidation marks terminal intake failures: no order row exists and
	// the notification must not be retried.
	ErrValidation = errors.New("validation failed")

	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrTerminalStatus    = errors.New("order is in a terminal status")
	ErrWrongStatus       = errors.New("order status does not permit this action")
	ErrAlreadyRefunded   = errors.New("order is already refunded")
	ErrMissingAsset      = errors.New("order has no print-ready asset")
)

// allowedTransitions is the single source of truth for order status edges.
// Every mutation of Order.Status goes through transition; nothing writes
// the column directly.
var allowedTransitions = map[models.OrderStatus]map[models.OrderStatus]bool{
	models.StatusPending: {
		models.StatusPaid:     true,
		models.StatusFailed:   true,
		models.StatusRefunded: true,
	},
	models.StatusPaid: {
		models.StatusGenerating: true,
		models.StatusFailed:     true,
		models.StatusRefunded:   true,
	},
	models.StatusGenerating: {
		models.StatusAwaitingApproval: true,
		models.StatusPrintReady:       true,
		models.StatusFailed:           true,
		models.StatusRefunded:         true,
	},
	models.StatusPrintReady: {
		models.StatusGenerating: true, // operator regenerate
		models.StatusPrinting:   true,
		models.StatusFailed:     true,
		models.StatusRefunded:   true,
	},
	models.StatusAwaitingApproval: {
		models.StatusPrintReady: true, // operator approve
		models.StatusGenerating: true, // operator retry
		models.StatusFailed:     true,
		models.StatusRefunded:   true,
	},
	models.StatusPrinting: {
		models.StatusShipped:    true,
		models.StatusGenerating: true, // operator retry
		models.StatusFailed:     true,
		models.StatusRefunded:   true,
	},
	models.StatusShipped: {
		models.StatusDelivered:  true,
		models.StatusGenerating: true, // operator retry
		models.StatusFailed:     true,
		models.StatusRefunded:   true,
	},
	models.StatusFailed: {
		models.StatusGenerating: true, // operator retry
		models.StatusRefunded:   true,
	},
	models.StatusDelivered: {},
	models.StatusRefunded:  {},
}

func isTerminal(s models.OrderStatus) bool {
	return s == models.StatusDelivered || s == models.StatusRefunded
}

// CanTransition reports whether from -> to is an allowed edge.
func CanTransition(from, to models.OrderStatus) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// checkTransition validates an edge and distinguishes terminal rejections
// so callers can surface "order already delivered/refunded" cleanly.
func checkTransition(from, to models.OrderStatus) error {
	if isTerminal(from) {
		return fmt.Errorf("%w: %s", ErrTerminalStatus, from)
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
