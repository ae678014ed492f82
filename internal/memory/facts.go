// Package memory turns extracted entities into durable per-user facts and
// serves recall queries with a short-lived cache.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/mira-notes/mira/internal/storage"
	"github.com/mira-notes/mira/pkg/types"
)

const (
	recallCacheSize = 256
	recallCacheTTL  = 5 * time.Minute

	// contextExcerptLen bounds the stored context snippet per fact.
	contextExcerptLen = 120
)

// Service persists facts and answers recall queries. Safe for concurrent use.
type Service struct {
	store  storage.FactStore
	recall *expirable.LRU[string, []*types.Fact]
}

// NewService wraps a FactStore with recall caching.
func NewService(store storage.FactStore) *Service {
	return &Service{
		store:  store,
		recall: expirable.NewLRU[string, []*types.Fact](recallCacheSize, nil, recallCacheTTL),
	}
}

// Remember upserts one fact per extracted entity. The note excerpt is
// attached as context. Individual failures are logged and do not stop the
// batch; the combined error is returned alongside the facts that did
// persist.
func (s *Service) Remember(ctx context.Context, userID string, entities []types.ExtractedEntity, noteText string) ([]*types.Fact, error) {
	if userID == "" {
		return nil, fmt.Errorf("memory: %w: user id is required", storage.ErrInvalidInput)
	}
	if len(entities) == 0 {
		return nil, nil
	}

	excerpt := excerptOf(noteText)

	var (
		facts []*types.Fact
		errs  []error
	)
	for _, ent := range entities {
		opts := storage.FactUpsert{
			Contexts: []string{excerpt},
			Metadata: map[string]interface{}{
				"method":     string(ent.Method),
				"confidence": ent.Confidence,
			},
		}
		if ent.Text != "" && !strings.EqualFold(ent.Text, ent.NormalizedText) {
			opts.Aliases = []string{ent.Text}
		}
		fact, err := s.store.UpsertFact(ctx, userID, ent.NormalizedText, ent.Kind, opts)
		if err != nil {
			log.Printf("WARNING: [memory] upsert failed for %q (%s): %v", ent.NormalizedText, ent.Kind, err)
			errs = append(errs, err)
			continue
		}
		facts = append(facts, fact)
	}

	if len(facts) > 0 {
		s.invalidateUser(userID)
	}
	return facts, errors.Join(errs...)
}

// Recall returns facts matching the query, most frequent first. Results are
// cached for five minutes per (user, query, limit); any write through
// Remember invalidates the user's cached queries.
func (s *Service) Recall(ctx context.Context, userID, query string, limit int) ([]*types.Fact, error) {
	if userID == "" {
		return nil, fmt.Errorf("memory: %w: user id is required", storage.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 20
	}

	key := recallKey(userID, query, limit)
	if cached, ok := s.recall.Get(key); ok {
		return cached, nil
	}

	facts, err := s.store.QueryFacts(ctx, userID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("memory: recall failed: %w", err)
	}
	s.recall.Add(key, facts)
	return facts, nil
}

// recallKey embeds the user id with a NUL separator so invalidateUser can
// match a user's entries by prefix.
func recallKey(userID, query string, limit int) string {
	return fmt.Sprintf("%s\x00%s\x00%d", userID, strings.ToLower(query), limit)
}

// invalidateUser drops every cached recall for the user.
func (s *Service) invalidateUser(userID string) {
	prefix := userID + "\x00"
	for _, key := range s.recall.Keys() {
		if strings.HasPrefix(key, prefix) {
			s.recall.Remove(key)
		}
	}
}

// excerptOf trims the note to a short context snippet.
func excerptOf(noteText string) string {
	excerpt := strings.TrimSpace(noteText)
	if len(excerpt) > contextExcerptLen {
		excerpt = excerpt[:contextExcerptLen]
	}
	return excerpt
}
