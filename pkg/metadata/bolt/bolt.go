package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/adammck/placer/pkg/api"
	"github.com/boltdb/bolt"
)

const bucketSegments = "SEGMENTS"

// Store keeps segment metadata in a local BoltDB file, keyed by segment ID.
// It's meant for dry runs and small deployments which don't have Consul.
type Store struct {
	db *bolt.DB
}

func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 3 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening segment db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketSegments))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating segment bucket: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Segments returns every segment in the store, in ID order.
func (s *Store) Segments(ctx context.Context) ([]api.Segment, error) {
	out := []api.Segment{}

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketSegments)).ForEach(func(k, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}

			seg := api.Segment{}
			if err := json.Unmarshal(v, &seg); err != nil {
				return fmt.Errorf("decoding segment %s: %w", k, err)
			}

			out = append(out, seg)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// PutSegments writes the given segments in a single transaction.
func (s *Store) PutSegments(ctx context.Context, segs []api.Segment) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketSegments))

		for _, seg := range segs {
			v, err := json.Marshal(seg)
			if err != nil {
				return err
			}

			if err := b.Put([]byte(seg.ID()), v); err != nil {
				return fmt.Errorf("writing segment %s: %w", seg.ID(), err)
			}
		}

		return ctx.Err()
	})
}

func (s *Store) DeleteSegments(ctx context.Context, ids []api.SegmentID) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketSegments))

		for _, sID := range ids {
			if err := b.Delete([]byte(sID)); err != nil {
				return err
			}
		}

		return ctx.Err()
	})
}
