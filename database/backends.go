package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"go.uber.org/zap"

	"github.com/yashrajoria/docstore-service/common/logger"
	"github.com/yashrajoria/docstore-service/config"
	"github.com/yashrajoria/docstore-service/store"
)

// OpenBackends connects every backend enabled in cfg and returns them in a
// registry. awsCfg is only consulted when DynamoDB is enabled. Backends
// opened before a failure are closed again.
func OpenBackends(ctx context.Context, cfg config.Config, awsCfg aws.Config) (*store.Registry, error) {
	var opened []store.Backend
	fail := func(err error) (*store.Registry, error) {
		for _, b := range opened {
			if cerr := b.Close(); cerr != nil {
				err = errors.Join(err, cerr)
			}
		}
		return nil, err
	}

	for _, name := range cfg.Backends {
		var backend store.Backend
		switch name {
		case store.BackendRedis:
			client, err := NewRedisClient(ctx, cfg.RedisURL, cfg.RedisPoolSize)
			if err != nil {
				return fail(err)
			}
			backend = store.NewRedisBackend(client)
		case store.BackendMongo:
			client, err := ConnectMongo(ctx, cfg.MongoURL)
			if err != nil {
				return fail(err)
			}
			backend = store.NewMongoBackend(client, cfg.MongoDatabase)
		case store.BackendDynamo:
			client := NewDynamoClient(awsCfg)
			if _, err := EnsureDocumentsTable(ctx, client, cfg.DynamoTable); err != nil {
				return fail(err)
			}
			backend = store.NewDynamoBackend(client, cfg.DynamoTable)
		case store.BackendMemory:
			backend = store.NewMemoryBackend()
		default:
			return fail(fmt.Errorf("unknown backend %q", name))
		}
		opened = append(opened, backend)
		logger.Info(ctx, "Connected to backend", zap.String("backend", name))
	}
	return store.NewRegistry(opened...), nil
}
