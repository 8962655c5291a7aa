package models

type OrderStatus string

const (
	StatusPending          OrderStatus = "pending"
	StatusPaid             OrderStatus = "paid"
	StatusGenerating       OrderStatus = "generating"
	StatusPrintReady       OrderStatus = "print_ready"
	StatusAwaitingApproval OrderStatus = "awaiting_approval"
	StatusPrinting         OrderStatus = "printing"
	StatusShipped          OrderStatus = "shipped"
	StatusDelivered        OrderStatus = "delivered"
	StatusFailed           OrderStatus = "failed"
	StatusRefunded         OrderStatus = "refunded"
)

func (s OrderStatus) String() string {
	return string(s)
}

const (
	PaymentStatusPaid     = "paid"
	PaymentStatusRefunded = "refunded"
)
