package chatlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fetchr/content"
	"fetchr/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrNotFound is returned for a missing chat log, tool call or snapshot.
	ErrNotFound = errors.New("not found")

	// ErrNoMatchingToolCall is returned when a result names no unanswered
	// tool call of the log.
	ErrNoMatchingToolCall = errors.New("no matching tool call")

	// ErrAlreadyExists is returned when cloning onto an id already in use.
	ErrAlreadyExists = errors.New("chat log already exists")
)

// RowStore is the durable storage of conversations.
type RowStore interface {
	// FindByID returns storage.ErrNotFound when the row does not exist.
	FindByID(ctx context.Context, id string) (*storage.Row, error)
	FindMany(ctx context.Context, ids []string) ([]storage.Row, error)
	Upsert(ctx context.Context, id string, turns json.RawMessage) error
	CreateMany(ctx context.Context, ids []string) error
	// Delete succeeds when the row does not exist.
	Delete(ctx context.Context, id string) error
}

// Cache holds serialized conversations in front of the RowStore.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	// MGet returns one entry per key with nil for misses.
	MGet(ctx context.Context, keys []string) ([][]byte, error)
	MSet(ctx context.Context, entries map[string][]byte) error
}

func cacheKey(id string) string {
	return "chatlog:" + id
}

// Service loads and creates chat logs.
type Service struct {
	rows         RowStore
	cache        Cache
	decoder      content.PayloadDecoder
	logger       *zap.SugaredLogger
	writeTimeout time.Duration
}

type Option func(*Service)

func WithLogger(logger *zap.SugaredLogger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithWriteTimeout bounds each queued durable write.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.writeTimeout = d
		}
	}
}

// NewService creates a Service. decoder resolves persisted tool payloads,
// normally a *tools.Registry.
func NewService(rows RowStore, cache Cache, decoder content.PayloadDecoder, opts ...Option) *Service {
	s := &Service{
		rows:         rows,
		cache:        cache,
		decoder:      decoder,
		logger:       zap.NewNop().Sugar(),
		writeTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load returns the log for id, creating an empty one if it exists nowhere.
func (s *Service) Load(ctx context.Context, id string) (*Log, error) {
	log, err := s.GetExisting(ctx, id)
	if err == nil {
		return log, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if err := s.rows.CreateMany(ctx, []string{id}); err != nil {
		return nil, fmt.Errorf("failed to create chat log %s: %w", id, err)
	}
	s.backfill(ctx, map[string][]byte{cacheKey(id): []byte("[]")})
	return s.newLog(id, []content.Turn{}), nil
}

// GetExisting returns the log for id or ErrNotFound. It never creates rows.
func (s *Service) GetExisting(ctx context.Context, id string) (*Log, error) {
	if data, ok := s.cached(ctx, id); ok {
		turns, err := content.DecodeTurns(data, s.decoder)
		if err == nil {
			return s.newLog(id, turns), nil
		}
		s.logger.Warnw("Ignoring undecodable cache entry", "chatID", id, "error", err)
	}

	row, err := s.rows.FindByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("chat log %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load chat log %s: %w", id, err)
	}

	turns, err := content.DecodeTurns(row.Turns, s.decoder)
	if err != nil {
		return nil, fmt.Errorf("chat log %s: %w", id, err)
	}
	s.backfill(ctx, map[string][]byte{cacheKey(id): row.Turns})
	return s.newLog(id, turns), nil
}

// LoadMany returns one log per id, in the order of ids. It performs at most
// one batch cache read, one batch durable read, one batch create and one
// batch cache write.
func (s *Service) LoadMany(ctx context.Context, ids []string) ([]*Log, error) {
	unique := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}
	if len(unique) == 0 {
		return []*Log{}, nil
	}

	keys := make([]string, len(unique))
	for i, id := range unique {
		keys[i] = cacheKey(id)
	}
	cached, err := s.cache.MGet(ctx, keys)
	if err != nil {
		s.logger.Warnw("Cache read failed, falling back to storage", "error", err)
		cached = make([][]byte, len(unique))
	}

	loaded := make(map[string][]content.Turn, len(unique))
	var misses []string
	for i, id := range unique {
		if i < len(cached) && cached[i] != nil {
			turns, err := content.DecodeTurns(cached[i], s.decoder)
			if err == nil {
				loaded[id] = turns
				continue
			}
			s.logger.Warnw("Ignoring undecodable cache entry", "chatID", id, "error", err)
		}
		misses = append(misses, id)
	}

	backfill := make(map[string][]byte)
	if len(misses) > 0 {
		rows, err := s.rows.FindMany(ctx, misses)
		if err != nil {
			return nil, fmt.Errorf("failed to load chat logs: %w", err)
		}
		for _, row := range rows {
			turns, err := content.DecodeTurns(row.Turns, s.decoder)
			if err != nil {
				return nil, fmt.Errorf("chat log %s: %w", row.ID, err)
			}
			loaded[row.ID] = turns
			backfill[cacheKey(row.ID)] = row.Turns
		}

		var missing []string
		for _, id := range misses {
			if _, ok := loaded[id]; !ok {
				missing = append(missing, id)
			}
		}
		if len(missing) > 0 {
			if err := s.rows.CreateMany(ctx, missing); err != nil {
				return nil, fmt.Errorf("failed to create chat logs: %w", err)
			}
			for _, id := range missing {
				loaded[id] = []content.Turn{}
				backfill[cacheKey(id)] = []byte("[]")
			}
		}
	}
	s.backfill(ctx, backfill)

	logs := make(map[string]*Log, len(unique))
	out := make([]*Log, 0, len(ids))
	for _, id := range ids {
		l, ok := logs[id]
		if !ok {
			l = s.newLog(id, loaded[id])
			logs[id] = l
		}
		out = append(out, l)
	}
	return out, nil
}

// Set overwrites the conversation id with turns and returns its log. The
// write is synchronous.
func (s *Service) Set(ctx context.Context, id string, turns []content.Turn) (*Log, error) {
	data, err := content.EncodeTurns(turns)
	if err != nil {
		return nil, fmt.Errorf("failed to encode chat log %s: %w", id, err)
	}
	if err := s.store(ctx, id, data); err != nil {
		return nil, err
	}
	return s.newLog(id, turns), nil
}

// NewTemporary creates an in-memory log with a fresh id. It is never
// persisted.
func (s *Service) NewTemporary(turns []content.Turn) *Log {
	if turns == nil {
		turns = []content.Turn{}
	}
	return &Log{id: uuid.NewString(), svc: s, turns: turns, snapshots: map[string][]byte{}}
}

func (s *Service) newLog(id string, turns []content.Turn) *Log {
	l := &Log{id: id, svc: s, turns: turns}
	l.queue = newWriteQueue(func(ctx context.Context, data []byte) error {
		return s.store(ctx, id, data)
	}, s.writeTimeout, s.logger.With("chatID", id))
	return l
}

// store writes data through to durable storage and then the cache.
func (s *Service) store(ctx context.Context, id string, data []byte) error {
	if err := s.rows.Upsert(ctx, id, data); err != nil {
		return fmt.Errorf("failed to store chat log %s: %w", id, err)
	}
	if err := s.cache.Set(ctx, cacheKey(id), data); err != nil {
		s.logger.Warnw("Failed to update cache", "chatID", id, "error", err)
	}
	return nil
}

func (s *Service) cached(ctx context.Context, id string) ([]byte, bool) {
	data, ok, err := s.cache.Get(ctx, cacheKey(id))
	if err != nil {
		s.logger.Warnw("Cache read failed", "chatID", id, "error", err)
		return nil, false
	}
	return data, ok
}

func (s *Service) backfill(ctx context.Context, entries map[string][]byte) {
	if len(entries) == 0 {
		return
	}
	if err := s.cache.MSet(ctx, entries); err != nil {
		s.logger.Warnw("Failed to backfill cache", "entries", len(entries), "error", err)
	}
}
