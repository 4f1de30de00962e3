package rediscache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"finassist/internal/domain"
	"finassist/internal/embedding"
	"finassist/internal/logging"
)

var _ embedding.Embedder = (*Embedder)(nil)

// Embedder caches vectors produced by an inner embedder in Redis. Redis
// failures are logged and never fail an embed call.
type Embedder struct {
	inner  domain.Embedder
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *zap.Logger

	mu     sync.RWMutex
	corpus string
}

// Config configures the cache.
type Config struct {
	Prefix string
	TTL    time.Duration
}

func New(inner domain.Embedder, client redis.UniversalClient, cfg Config, logger *zap.Logger) *Embedder {
	if cfg.Prefix == "" {
		cfg.Prefix = "finassist:embedding:"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Embedder{inner: inner, client: client, prefix: cfg.Prefix, ttl: cfg.TTL, logger: logger}
}

func (e *Embedder) Name() string { return e.inner.Name() }

// Prepare prepares the inner embedder and scopes later entries to corpus, so
// vectors fitted on an earlier catalog are not reused.
func (e *Embedder) Prepare(corpus []string) error {
	if err := e.inner.Prepare(corpus); err != nil {
		return err
	}
	h := sha1.New()
	for _, doc := range corpus {
		h.Write([]byte(doc))
		h.Write([]byte{0})
	}
	fp := hex.EncodeToString(h.Sum(nil))[:12]

	e.mu.Lock()
	e.corpus = fp
	e.mu.Unlock()
	return nil
}

func (e *Embedder) Dimension() int { return e.inner.Dimension() }

func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	key := e.key(text)

	raw, err := e.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var vec []float64
		if jerr := json.Unmarshal(raw, &vec); jerr == nil {
			return vec, nil
		} else {
			logging.Warn(e.logger, "discarding corrupt cached embedding", jerr, zap.String("key", key))
		}
	case !errors.Is(err, redis.Nil):
		logging.Warn(e.logger, "embedding cache read failed", err, zap.String("key", key))
	}

	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(vec)
	if err == nil {
		err = e.client.Set(ctx, key, data, e.ttl).Err()
	}
	if err != nil {
		logging.Warn(e.logger, "embedding cache write failed", err, zap.String("key", key))
	}
	return vec, nil
}

// key scopes entries by embedder, dimension and prepared corpus.
func (e *Embedder) key(text string) string {
	e.mu.RLock()
	corpus := e.corpus
	e.mu.RUnlock()
	if corpus == "" {
		corpus = "none"
	}
	h := sha1.Sum([]byte(text))
	return e.prefix + e.inner.Name() + ":" + strconv.Itoa(e.inner.Dimension()) + ":" + corpus + ":" + hex.EncodeToString(h[:])
}
