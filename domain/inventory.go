package domain

type StockEntry struct {
	ID           int64    `db:"id" json:"id"`
	PharmacyID   int64    `db:"pharmacy_id" json:"pharmacy_id"`
	Name         string   `db:"name" json:"name"`
	Manufacturer *string  `db:"manufacturer" json:"manufacturer,omitempty"`
	Description  *string  `db:"description" json:"description,omitempty"`
	Quantity     int64    `db:"quantity" json:"quantity"`
	Expiry       Date     `db:"expiry" json:"expiry"`
	Price        *float64 `db:"price" json:"price"`
}

// ExpiringStock is one row of the global expiry scan.
type ExpiringStock struct {
	StockID      int64  `db:"stock_id" json:"stock_id"`
	Name         string `db:"name" json:"name"`
	PharmacyID   int64  `db:"pharmacy_id" json:"pharmacy_id"`
	PharmacyName string `db:"pharmacy_name" json:"pharmacy"`
	Expiry       Date   `db:"expiry" json:"expiry"`
	Quantity     int64  `db:"quantity" json:"quantity"`
}
