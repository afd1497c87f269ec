package models

// CartItem is a single line of a cart. Item identity is the SKU.
type CartItem struct {
	SKU      string `json:"sku" validate:"required"`
	Quantity int    `json:"quantity" validate:"gte=0"`
}

// Cart is the typed view of a cart document.
type Cart struct {
	CartID string     `json:"cartID"`
	UserID string     `json:"userID"`
	Items  []CartItem `json:"items"`
}

// MergeOutcome reports which branch of the item merge was taken.
type MergeOutcome string

const (
	ItemReplaced MergeOutcome = "replaced"
	ItemRemoved  MergeOutcome = "removed"
	ItemAppended MergeOutcome = "appended"
)
