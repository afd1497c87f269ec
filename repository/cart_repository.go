package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/yashrajoria/docstore-service/common/logger"
	"github.com/yashrajoria/docstore-service/events"
	"github.com/yashrajoria/docstore-service/models"
	"github.com/yashrajoria/docstore-service/store"
	"go.uber.org/zap"
)

const itemsPath = ".items"

// DefaultCartUpdateAttempts bounds optimistic retries of a cart item merge.
const DefaultCartUpdateAttempts = 3

// CartStore adds the item merge to the document operations.
type CartStore interface {
	DocumentStore
	UpdateItem(ctx context.Context, id string, item models.CartItem) (models.MergeOutcome, error)
}

type CartRepository struct {
	*DocumentRepository
	attempts int
}

func NewCartRepository(backend store.Backend, notifier events.Notifier, attempts int) *CartRepository {
	if attempts < 1 {
		attempts = DefaultCartUpdateAttempts
	}
	return &CartRepository{
		DocumentRepository: NewDocumentRepository(backend, models.KindCart, notifier),
		attempts:           attempts,
	}
}

// cartItems is the part of a cart body that Create checks. Everything else
// in the document is stored untouched.
type cartItems struct {
	Items []models.CartItem `json:"items" validate:"dive"`
}

// Create checks that the cart has an id and that any items carry a sku and
// a non-negative quantity, then stores the document exactly as given.
func (r *CartRepository) Create(ctx context.Context, doc models.Document) (string, error) {
	if _, err := doc.ID(r.kind.IDField); err != nil {
		return "", invalid("%s", err.Error())
	}
	if raw, ok := doc["items"]; ok && raw != nil {
		data, err := json.Marshal(raw)
		if err != nil {
			return "", invalid("items must be a list")
		}
		var body cartItems
		if err := json.Unmarshal(data, &body.Items); err != nil {
			return "", invalid("items must be a list of objects with a string sku and an integer quantity")
		}
		if err := validate.Struct(body); err != nil {
			return "", invalid("%s", describe(err))
		}
	}
	return r.DocumentRepository.Create(ctx, doc)
}

// UpdateItem merges item into the cart's items by SKU and writes the list
// back. The read and the write are compared-and-swapped; a concurrent change
// restarts the merge, up to the configured number of attempts.
func (r *CartRepository) UpdateItem(ctx context.Context, id string, item models.CartItem) (models.MergeOutcome, error) {
	if err := validate.Struct(item); err != nil {
		return "", invalid("%s", describe(err))
	}

	var outcome models.MergeOutcome
	merge := func(current json.RawMessage) (any, error) {
		var items []models.CartItem
		if err := json.Unmarshal(current, &items); err != nil {
			return nil, fmt.Errorf("%w: cart items are malformed: %v", store.ErrWriteIncomplete, err)
		}
		merged, o := MergeItem(items, item)
		outcome = o
		return merged, nil
	}

	err := r.withSession(ctx, func(s store.Session) error {
		for attempt := 1; ; attempt++ {
			err := s.Modify(ctx, r.kind.Key(id), itemsPath, merge)
			if !errors.Is(err, store.ErrConflict) || attempt >= r.attempts {
				return err
			}
			logger.Debug(ctx, "cart changed during merge, retrying",
				zap.String("cart_id", id),
				zap.Int("attempt", attempt),
			)
		}
	})
	if err != nil {
		return "", r.failure(id, "not fully updated", err)
	}

	logger.Info(ctx, "cart item merged",
		zap.String("cart_id", id),
		zap.String("sku", item.SKU),
		zap.String("outcome", string(outcome)),
	)
	r.notify(ctx, id, events.ActionUpdated)
	return outcome, nil
}
