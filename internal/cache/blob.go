package cache

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// BlobStore es un almacen binario direccionado por clave de recurso (la URL
// canonica del adjunto). Get sobre una clave ausente no es un error; Put es
// idempotente.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, data []byte) error
}

type memoryBlobStore struct {
	mu    sync.Mutex
	items map[string][]byte
}

// NewMemoryBlobStore crea el almacen en memoria usado por defecto.
func NewMemoryBlobStore() BlobStore {
	return &memoryBlobStore{
		items: make(map[string][]byte),
	}
}

func (s *memoryBlobStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.items[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, true, nil
}

func (s *memoryBlobStore) Put(_ context.Context, key string, data []byte) error {
	if strings.TrimSpace(key) == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]byte, len(data))
	copy(stored, data)
	s.items[key] = stored
	return nil
}

type redisBlobStore struct {
	client *redis.Client
	prefix string
}

// NewRedisBlobStore crea un almacen respaldado por redis.
func NewRedisBlobStore(client *redis.Client) BlobStore {
	if client == nil {
		return nil
	}
	return &redisBlobStore{
		client: client,
		prefix: "chat:blob:",
	}
}

func (s *redisBlobStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (s *redisBlobStore) Put(ctx context.Context, key string, data []byte) error {
	if strings.TrimSpace(key) == "" {
		return nil
	}
	return s.client.Set(ctx, s.prefix+key, data, 0).Err()
}
