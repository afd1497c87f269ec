package models

// Product is the typed view of a product document. Products may carry any
// number of additional fields; only the SKU is required.
type Product struct {
	SKU         string  `json:"sku"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
}
