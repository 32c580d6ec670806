package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const pending2FARecordVersion1 = 1

var (
	ErrChallengeNotFound = errors.New("pending challenge not found")
	ErrChallengeExpired  = errors.New("pending challenge expired")
	ErrChallengeBackend  = errors.New("pending challenge backend unavailable")
)

// Pending2FAChallenge is the short-lived marker between a successful
// password check and second-factor verification. It is the only state a
// login suspended in Pending2FA has: no refresh or access token exists
// until the challenge is completed.
type Pending2FAChallenge struct {
	UserID    string
	ExpiresAt int64
	Attempts  uint16
}

// Pending2FAStore keeps challenges in Redis so any instance behind the
// load balancer can complete a login another instance started.
type Pending2FAStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewPending2FAStore returns a store using prefix for key namespacing.
func NewPending2FAStore(redisClient redis.UniversalClient, prefix string) *Pending2FAStore {
	if prefix == "" {
		prefix = "p2fa"
	}
	return &Pending2FAStore{redis: redisClient, prefix: prefix}
}

func (s *Pending2FAStore) key(challengeID string) string {
	return s.prefix + ":" + challengeID
}

// Save stores a challenge under challengeID with the given TTL.
func (s *Pending2FAStore) Save(ctx context.Context, challengeID string, record *Pending2FAChallenge, ttl time.Duration) error {
	encoded, err := encodePending2FA(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(challengeID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	return nil
}

// Get loads a challenge. Expired records are deleted on read.
func (s *Pending2FAStore) Get(ctx context.Context, challengeID string) (*Pending2FAChallenge, error) {
	data, err := s.redis.Get(ctx, s.key(challengeID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrChallengeNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}

	record, err := decodePending2FA(data)
	if err != nil {
		return nil, err
	}
	if time.Now().Unix() > record.ExpiresAt {
		_, _ = s.redis.Del(ctx, s.key(challengeID)).Result()
		return nil, ErrChallengeExpired
	}
	return record, nil
}

// Delete consumes a challenge. The returned bool reports whether the key
// still existed; false on a completed login means another request already
// consumed it and the caller must treat the attempt as a replay.
func (s *Pending2FAStore) Delete(ctx context.Context, challengeID string) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(challengeID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	return n > 0, nil
}

// RecordFailure increments the attempt counter under an optimistic WATCH
// transaction. It reports true when the attempt budget is exhausted, in
// which case the challenge is deleted.
func (s *Pending2FAStore) RecordFailure(ctx context.Context, challengeID string, maxAttempts int) (bool, error) {
	const maxRetries = 4
	key := s.key(challengeID)

	for i := 0; i < maxRetries; i++ {
		var exceeded bool
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}
			record, err := decodePending2FA(data)
			if err != nil {
				return err
			}
			if time.Now().Unix() > record.ExpiresAt {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrChallengeExpired
			}

			record.Attempts++
			if int(record.Attempts) >= maxAttempts {
				exceeded = true
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				return err
			}

			ttl := time.Until(time.Unix(record.ExpiresAt, 0))
			if ttl <= 0 {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrChallengeExpired
			}

			updated, err := encodePending2FA(record)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return false, ErrChallengeNotFound
			}
			if errors.Is(err, ErrChallengeExpired) {
				return false, err
			}
			return false, fmt.Errorf("%w: %v", ErrChallengeBackend, err)
		}
		return exceeded, nil
	}

	return false, ErrChallengeNotFound
}

func encodePending2FA(record *Pending2FAChallenge) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(pending2FARecordVersion1)

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	if len(record.UserID) > 65535 {
		return nil, errors.New("pending challenge user id length exceeded")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.UserID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.UserID)
	return buf.Bytes(), nil
}

func decodePending2FA(data []byte) (*Pending2FAChallenge, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != pending2FARecordVersion1 {
		return nil, errors.New("invalid pending challenge version")
	}

	record := &Pending2FAChallenge{}
	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	var userLen uint16
	if err := binary.Read(reader, binary.BigEndian, &userLen); err != nil {
		return nil, err
	}
	user := make([]byte, userLen)
	if _, err := io.ReadFull(reader, user); err != nil {
		return nil, err
	}
	record.UserID = string(user)
	return record, nil
}
