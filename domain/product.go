package domain

type Product struct {
	ID                int64  `db:"id" json:"id"`
	Name              string `db:"name" json:"name"`
	UnitPrice         Money  `db:"unit_price" json:"unit_price"`
	AvailableQuantity int64  `db:"quantity" json:"available_quantity"`
	ImageURL          string `db:"image_url" json:"image_url"`
}
