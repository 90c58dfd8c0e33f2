package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheTTL = 10 * time.Minute

// CachedReader wraps Store with a Redis cache-aside layer: reads check
// Redis first, fall back to Postgres on a miss and repopulate, and the
// event consumer invalidates entries directly rather than waiting for
// TTL expiry so a projection update is visible immediately.
type CachedReader struct {
	store  *Store
	client redis.UniversalClient
}

func NewCachedReader(store *Store, client redis.UniversalClient) *CachedReader {
	return &CachedReader{store: store, client: client}
}

func patientCacheKey(patientID string) string { return "patient-snapshots:" + patientID }
func doctorCacheKey(doctorID string) string    { return "doctor-snapshots:" + doctorID }

func (c *CachedReader) GetPatient(ctx context.Context, patientID string) (PatientFacts, error) {
	key := patientCacheKey(patientID)

	if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var f PatientFacts
		if jsonErr := json.Unmarshal(raw, &f); jsonErr == nil {
			return f, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		// Redis is down; fall through to Postgres rather than fail the request.
	}

	f, err := c.store.GetPatient(ctx, patientID)
	if err != nil {
		return PatientFacts{}, err
	}
	c.set(ctx, key, f)
	return f, nil
}

func (c *CachedReader) GetDoctor(ctx context.Context, doctorID string) (DoctorFacts, error) {
	key := doctorCacheKey(doctorID)

	if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var f DoctorFacts
		if jsonErr := json.Unmarshal(raw, &f); jsonErr == nil {
			return f, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		// Redis is down; fall through to Postgres.
	}

	f, err := c.store.GetDoctor(ctx, doctorID)
	if err != nil {
		return DoctorFacts{}, err
	}
	c.set(ctx, key, f)
	return f, nil
}

func (c *CachedReader) set(ctx context.Context, key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, key, raw, cacheTTL).Err()
}

// InvalidatePatient evicts a patient's cached facts.
func (c *CachedReader) InvalidatePatient(ctx context.Context, patientID string) error {
	if err := c.client.Del(ctx, patientCacheKey(patientID)).Err(); err != nil {
		return fmt.Errorf("snapshot: invalidate patient cache: %w", err)
	}
	return nil
}

// InvalidateDoctor evicts a doctor's cached facts.
func (c *CachedReader) InvalidateDoctor(ctx context.Context, doctorID string) error {
	if err := c.client.Del(ctx, doctorCacheKey(doctorID)).Err(); err != nil {
		return fmt.Errorf("snapshot: invalidate doctor cache: %w", err)
	}
	return nil
}
