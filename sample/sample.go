// Package sample generates synthetic carts, products and users for seeding
// and load testing a document store.
package sample

import (
	"math"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	"github.com/yashrajoria/docstore-service/models"
)

// Price returns a random amount in [lo, hi) rounded to cents.
func Price(lo, hi float64) float64 {
	p := gofakeit.Price(lo, hi)
	if p >= hi {
		p = math.Floor((hi-0.01)*100) / 100
	}
	return p
}

func Product() models.Product {
	return models.Product{
		SKU:         uuid.NewString(),
		Description: gofakeit.ProductName(),
		Price:       Price(10, 500),
	}
}

func User() models.User {
	return models.User{
		UserID:    uuid.NewString(),
		LastName:  gofakeit.LastName(),
		FirstName: gofakeit.FirstName(),
		Street:    gofakeit.Street(),
		City:      gofakeit.City(),
		State:     gofakeit.StateAbr(),
		Zip:       gofakeit.Zip(),
	}
}

// Cart returns a cart for user holding one line per product, each with a
// quantity between 1 and 9.
func Cart(user models.User, products []models.Product) models.Cart {
	items := make([]models.CartItem, 0, len(products))
	for _, p := range products {
		items = append(items, models.CartItem{SKU: p.SKU, Quantity: gofakeit.Number(1, 9)})
	}
	return models.Cart{
		CartID: uuid.NewString(),
		UserID: user.UserID,
		Items:  items,
	}
}
