// Command seed writes generated users, products and carts into one of the
// configured document store backends.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"

	"github.com/joho/godotenv"

	"github.com/yashrajoria/docstore-service/config"
	"github.com/yashrajoria/docstore-service/database"
	"github.com/yashrajoria/docstore-service/events"
	"github.com/yashrajoria/docstore-service/models"
	"github.com/yashrajoria/docstore-service/repository"
	"github.com/yashrajoria/docstore-service/sample"
	"github.com/yashrajoria/docstore-service/store"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	awspkg "github.com/yashrajoria/docstore-service/pkg/aws"
)

func main() {
	_ = godotenv.Load()

	var dbType string
	var users, productsPerCart int
	flag.StringVar(&dbType, "db", store.BackendRedis, "backend to seed (redis, mongo, dynamodb)")
	flag.IntVar(&users, "users", 10, "number of users, each with one cart")
	flag.IntVar(&productsPerCart, "products", 3, "number of products per cart")
	flag.Parse()

	if users < 1 || productsPerCart < 0 {
		log.Fatal("-users must be positive and -products must not be negative")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	cfg.Backends = []string{dbType}

	ctx := context.Background()
	var awsCfg sdkaws.Config
	if dbType == store.BackendDynamo {
		awsCfg, err = awspkg.LoadAWSConfig(ctx, awspkg.Options{Region: cfg.AWSRegion, Endpoint: cfg.AWSEndpoint})
		if err != nil {
			log.Fatalf("aws config: %v", err)
		}
	}

	registry, err := database.OpenBackends(ctx, cfg, awsCfg)
	if err != nil {
		log.Fatalf("open %s: %v", dbType, err)
	}
	defer registry.Close()

	provider := repository.NewProvider(registry, events.Noop{}, cfg.CartUpdateAttempts)
	counts, err := seed(ctx, provider, dbType, users, productsPerCart)
	if err != nil {
		log.Fatalf("seed: %v", err)
	}
	log.Printf("Seeded %s: %d users, %d products, %d carts", dbType, counts.users, counts.products, counts.carts)
}

type seeded struct {
	users, products, carts int
}

// seed writes n users, each with a cart over productsPerCart new products.
func seed(ctx context.Context, provider *repository.Provider, dbType string, n, productsPerCart int) (seeded, error) {
	var out seeded
	carts, err := provider.Carts(dbType)
	if err != nil {
		return out, err
	}
	products, err := provider.Documents(models.KindProduct, dbType)
	if err != nil {
		return out, err
	}
	users, err := provider.Documents(models.KindUser, dbType)
	if err != nil {
		return out, err
	}

	for range n {
		user := sample.User()
		if err := create(ctx, users, user); err != nil {
			return out, err
		}
		out.users++

		items := make([]models.Product, 0, productsPerCart)
		for range productsPerCart {
			p := sample.Product()
			if err := create(ctx, products, p); err != nil {
				return out, err
			}
			out.products++
			items = append(items, p)
		}

		if err := create(ctx, carts, sample.Cart(user, items)); err != nil {
			return out, err
		}
		out.carts++
	}
	return out, nil
}

func create(ctx context.Context, repo repository.DocumentStore, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var doc models.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	if _, err := repo.Create(ctx, doc); err != nil {
		return fmt.Errorf("create %T: %w", v, err)
	}
	return nil
}
