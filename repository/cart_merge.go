package repository

import "github.com/yashrajoria/docstore-service/models"

// MergeItem applies candidate to items by SKU. The first item with the
// candidate's SKU is replaced, or dropped when the candidate quantity is
// zero; later items with the same SKU are kept as they are. A candidate that
// matches nothing is appended, even with quantity zero.
func MergeItem(items []models.CartItem, candidate models.CartItem) ([]models.CartItem, models.MergeOutcome) {
	merged := make([]models.CartItem, 0, len(items)+1)
	for i, item := range items {
		if item.SKU != candidate.SKU {
			merged = append(merged, item)
			continue
		}
		outcome := models.ItemRemoved
		if candidate.Quantity != 0 {
			merged = append(merged, candidate)
			outcome = models.ItemReplaced
		}
		return append(merged, items[i+1:]...), outcome
	}
	return append(merged, candidate), models.ItemAppended
}
