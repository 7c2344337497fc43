package domain

// WalkInCustomer is the name recorded when a sale carries no customer name.
const WalkInCustomer = "Umum"

// Placeholder is stored for customer fields checkout does not collect.
const Placeholder = "-"

type Customer struct {
	ID      int64  `db:"id" json:"id"`
	Name    string `db:"name" json:"name"`
	Address string `db:"address" json:"address"`
	Phone   string `db:"phone" json:"phone"`
}
