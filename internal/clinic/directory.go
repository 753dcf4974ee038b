// Package clinic provides the clinic directory: profile, professionals, and
// service catalog, cached in Redis with explicit invalidation.
package clinic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/pkg/logging"
)

// ErrNotFound reports that no clinic exists for the given id.
var ErrNotFound = errors.New("clinic: not found")

// Professional is one bookable resource of a clinic.
type Professional struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Specialty string `json:"specialty,omitempty"`
}

// Service is one catalog entry. Price is legacy free-form text ("R$ 150,00",
// "150") normalized downstream.
type Service struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Price          string `json:"price,omitempty"`
	ProfessionalID string `json:"professional_id,omitempty"`
}

// Profile is the full clinic directory entry.
type Profile struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Address        string         `json:"address,omitempty"`
	City           string         `json:"city,omitempty"`
	State          string         `json:"state,omitempty"`
	Phone          string         `json:"phone,omitempty"`
	Timezone       string         `json:"timezone"`
	RequireDeposit bool           `json:"require_deposit"`
	Professionals  []Professional `json:"professionals,omitempty"`
	Services       []Service      `json:"services,omitempty"`
}

// Location returns a human-readable address line for location replies.
func (p *Profile) Location() string {
	if p == nil {
		return ""
	}
	line := p.Address
	if p.City != "" {
		if line != "" {
			line += ", "
		}
		line += p.City
	}
	if p.State != "" {
		if line != "" {
			line += " - "
		}
		line += p.State
	}
	return line
}

type profileLoader interface {
	LoadProfile(ctx context.Context, clinicID string) (*Profile, error)
}

// Store serves clinic profiles from a Redis cache in front of the repository.
// Reads refresh on miss; Refresh forces a reload. Replaces the old
// process-wide profile maps with explicit, TTL-bounded caching.
type Store struct {
	loader profileLoader
	redis  *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

// StoreOption customizes the directory store.
type StoreOption func(*Store)

// WithCacheTTL bounds how long a cached profile is served without reloading.
func WithCacheTTL(ttl time.Duration) StoreOption {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// NewStore creates a cached directory store. A nil Redis client disables
// caching; every lookup then loads straight from the repository.
func NewStore(loader profileLoader, redisClient *redis.Client, logger *logging.Logger, opts ...StoreOption) *Store {
	if loader == nil {
		panic("clinic: profile loader cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Store{
		loader: loader,
		redis:  redisClient,
		ttl:    5 * time.Minute,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(clinicID string) string {
	return "clinic:profile:" + clinicID
}

// Get returns the clinic profile, serving from cache when fresh and loading
// from the repository on a miss. Cache errors degrade to a direct load.
func (s *Store) Get(ctx context.Context, clinicID string) (*Profile, error) {
	if s.redis == nil {
		return s.Refresh(ctx, clinicID)
	}
	data, err := s.redis.Get(ctx, s.key(clinicID)).Bytes()
	if err == nil {
		var profile Profile
		if jsonErr := json.Unmarshal(data, &profile); jsonErr == nil {
			return &profile, nil
		}
		s.logger.Warn("discarding corrupt cached clinic profile", "clinic_id", clinicID)
	} else if !errors.Is(err, redis.Nil) {
		s.logger.Warn("clinic cache read failed", "error", err, "clinic_id", clinicID)
	}
	return s.Refresh(ctx, clinicID)
}

// Refresh reloads the profile from the repository and rewrites the cache.
func (s *Store) Refresh(ctx context.Context, clinicID string) (*Profile, error) {
	profile, err := s.loader.LoadProfile(ctx, clinicID)
	if err != nil {
		return nil, err
	}
	if s.redis == nil {
		return profile, nil
	}
	data, err := json.Marshal(profile)
	if err != nil {
		return nil, fmt.Errorf("clinic: marshal profile: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(clinicID), data, s.ttl).Err(); err != nil {
		// Serving a fresh profile matters more than caching it.
		s.logger.Warn("clinic cache write failed", "error", err, "clinic_id", clinicID)
	}
	return profile, nil
}

// Invalidate drops the cached profile so the next Get reloads.
func (s *Store) Invalidate(ctx context.Context, clinicID string) error {
	if s.redis == nil {
		return nil
	}
	if err := s.redis.Del(ctx, s.key(clinicID)).Err(); err != nil {
		return fmt.Errorf("clinic: invalidate profile: %w", err)
	}
	return nil
}
