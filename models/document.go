package models

import (
	"errors"
	"fmt"
)

// Kind describes one resource kind exposed by the service and where its
// documents live in the backing store.
type Kind struct {
	Name    string // path segment and key prefix, e.g. "cart"
	Label   string // used in user-facing messages, e.g. "SKU"
	IDField string // document field holding the identifier
}

var (
	KindCart    = Kind{Name: "cart", Label: "Cart", IDField: "cartID"}
	KindProduct = Kind{Name: "product", Label: "SKU", IDField: "sku"}
	KindUser    = Kind{Name: "user", Label: "User", IDField: "userID"}
)

// Kinds lists every resource kind in registration order.
var Kinds = []Kind{KindCart, KindProduct, KindUser}

// Key returns the store key for the document with the given identifier.
func (k Kind) Key(id string) string {
	return k.Name + ":" + id
}

// Document is a free-form JSON object as received from or returned to clients.
type Document map[string]any

var ErrMissingID = errors.New("missing identifier")

// ID returns the identifier stored under field. The value must be a
// non-empty string.
func (d Document) ID(field string) (string, error) {
	v, ok := d[field]
	if !ok || v == nil {
		return "", fmt.Errorf("%w: %s is required", ErrMissingID, field)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", ErrMissingID, field)
	}
	if s == "" {
		return "", fmt.Errorf("%w: %s must not be empty", ErrMissingID, field)
	}
	return s, nil
}
