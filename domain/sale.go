package domain

import "time"

// PaymentCash is the default payment method.
const PaymentCash = "cash"

type Sale struct {
	ID             int64     `db:"id" json:"id"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	CustomerID     int64     `db:"customer_id" json:"customer_id"`
	CashierID      int64     `db:"cashier_id" json:"cashier_id"`
	TotalAmount    Money     `db:"total_amount" json:"total_amount"`
	AmountTendered Money     `db:"amount_tendered" json:"amount_tendered"`
	ChangeDue      Money     `db:"change_due" json:"change_due"`
	PaymentMethod  string    `db:"payment_method" json:"payment_method"`
}

type SaleLine struct {
	ID        int64 `db:"id" json:"id"`
	SaleID    int64 `db:"sale_id" json:"sale_id"`
	ProductID int64 `db:"product_id" json:"product_id"`
	Quantity  int64 `db:"quantity" json:"quantity"`
	UnitPrice Money `db:"unit_price" json:"unit_price"`
	Subtotal  Money `db:"subtotal" json:"subtotal"`
}

// SaleLineDetail is a SaleLine joined with its product name for receipts.
type SaleLineDetail struct {
	SaleLine
	ProductName string `db:"product_name" json:"product_name"`
}

// SaleSummary is a Sale header joined with customer and cashier names.
type SaleSummary struct {
	Sale
	CustomerName string `db:"customer_name" json:"customer_name"`
	CashierName  string `db:"cashier_name" json:"cashier_name"`
}

// SaleDetail is the full receipt view of one committed sale.
type SaleDetail struct {
	SaleSummary
	Lines []SaleLineDetail `json:"lines"`
}
