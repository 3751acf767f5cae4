package redis

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/flarexio/reportrag/registry"
)

const DefaultPrefix = "reportrag"

func NewRegistry(rdb *redis.Client, prefix string) registry.Registry {
	if prefix == "" {
		prefix = DefaultPrefix
	}

	return &redisRegistry{
		rdb:    rdb,
		prefix: prefix,
	}
}

func NewClient(cfg registry.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

type redisRegistry struct {
	rdb    *redis.Client
	prefix string
}

func (r *redisRegistry) documentKey(id string) string {
	return r.prefix + ":document:" + id
}

func (r *redisRegistry) collectionKey(name string) string {
	return r.prefix + ":collection:" + name
}

func (r *redisRegistry) Lookup(ctx context.Context, documentID string) (registry.Entry, error) {
	bs, err := r.rdb.Get(ctx, r.documentKey(documentID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return registry.Entry{}, registry.ErrDocumentNotFound
		}

		return registry.Entry{}, err
	}

	var entry registry.Entry
	if err := json.Unmarshal(bs, &entry); err != nil {
		return registry.Entry{}, err
	}

	return entry, nil
}

func (r *redisRegistry) Register(ctx context.Context, entry registry.Entry) error {
	if entry.DocumentID == "" {
		return registry.ErrInvalidDocumentID
	}

	bs, err := json.Marshal(&entry)
	if err != nil {
		return err
	}

	if err := r.Evict(ctx, entry.Collection); err != nil {
		return err
	}

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.documentKey(entry.DocumentID), bs, 0)
		pipe.Set(ctx, r.collectionKey(entry.Collection), entry.DocumentID, 0)
		return nil
	})

	return err
}

func (r *redisRegistry) Invalidate(ctx context.Context, documentID string) error {
	entry, err := r.Lookup(ctx, documentID)
	if err != nil {
		return err
	}

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.documentKey(documentID))
		pipe.Del(ctx, r.collectionKey(entry.Collection))
		return nil
	})

	return err
}

func (r *redisRegistry) Evict(ctx context.Context, collection string) error {
	owner, err := r.rdb.Get(ctx, r.collectionKey(collection)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}

		return err
	}

	return r.rdb.Del(ctx, r.documentKey(owner), r.collectionKey(collection)).Err()
}
