package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrCeremonyNotFound = errors.New("webauthn ceremony not found")
	ErrCeremonyBackend  = errors.New("webauthn ceremony backend unavailable")
)

// CeremonyStore holds in-flight WebAuthn ceremony session data (the issued
// challenge plus verification parameters) between the begin and finish
// calls. Entries are single-use: Take retrieves and deletes atomically, so
// a response can never be verified against the same challenge twice, and
// the TTL bounds how long an abandoned ceremony lingers.
type CeremonyStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewCeremonyStore returns a store using prefix for key namespacing.
func NewCeremonyStore(redisClient redis.UniversalClient, prefix string) *CeremonyStore {
	if prefix == "" {
		prefix = "wan"
	}
	return &CeremonyStore{redis: redisClient, prefix: prefix}
}

func (s *CeremonyStore) key(ceremonyID string) string {
	return s.prefix + ":" + ceremonyID
}

// Save stores serialized session data for a ceremony.
func (s *CeremonyStore) Save(ctx context.Context, ceremonyID string, sessionData []byte, ttl time.Duration) error {
	if err := s.redis.Set(ctx, s.key(ceremonyID), sessionData, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCeremonyBackend, err)
	}
	return nil
}

// Take retrieves and deletes the session data in one round trip (GETDEL).
// The ceremony is consumed whether or not the subsequent verification
// succeeds.
func (s *CeremonyStore) Take(ctx context.Context, ceremonyID string) ([]byte, error) {
	data, err := s.redis.GetDel(ctx, s.key(ceremonyID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCeremonyNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrCeremonyBackend, err)
	}
	return data, nil
}
