package consul

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/adammck/placer/pkg/api"
	capi "github.com/hashicorp/consul/api"
	"go.uber.org/zap"
)

// Consul rejects transactions with more ops than this.
const maxTxnOps = 64

// Store keeps segment metadata in the Consul KV store, one JSON-encoded
// segment per key, under the given prefix.
type Store struct {
	kv     *capi.KV
	prefix string
	log    *zap.Logger

	// The last ModifyIndex seen for each segment, for CAS.
	modifyIndex map[api.SegmentID]uint64

	// guards modifyIndex
	sync.Mutex
}

func New(client *capi.Client, prefix string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Store{
		kv:          client.KV(),
		prefix:      strings.Trim(prefix, "/"),
		log:         logger,
		modifyIndex: map[api.SegmentID]uint64{},
	}
}

func (s *Store) key(sID api.SegmentID) string {
	return fmt.Sprintf("%s/%s", s.prefix, sID)
}

// Segments returns every segment under the prefix. Keys which can't be decoded,
// or which don't match the ID of the segment they contain, are skipped.
func (s *Store) Segments(ctx context.Context) ([]api.Segment, error) {
	q := (&capi.QueryOptions{}).WithContext(ctx)
	pairs, _, err := s.kv.List(s.prefix+"/", q)
	if err != nil {
		return nil, fmt.Errorf("listing segments: %w", err)
	}

	out := []api.Segment{}

	s.Lock()
	defer s.Unlock()

	for _, kv := range pairs {
		key := strings.TrimPrefix(kv.Key, s.prefix+"/")

		seg := api.Segment{}
		if err := json.Unmarshal(kv.Value, &seg); err != nil {
			s.log.Warn("invalid segment in Consul", zap.String("key", kv.Key), zap.Error(err))
			continue
		}

		sID := seg.ID()
		if string(sID) != key {
			s.log.Warn("mismatch between Consul KV key and encoded segment",
				zap.String("key", kv.Key),
				zap.Stringer("segment", sID))
			continue
		}

		s.modifyIndex[sID] = kv.ModifyIndex
		out = append(out, seg)
	}

	return out, nil
}

// PutSegments writes the given segments. Each write is a check-and-set against
// the last version this Store read or wrote, so concurrent writers don't
// clobber each other. Batches larger than a single Consul transaction are split,
// and are only atomic per transaction.
func (s *Store) PutSegments(ctx context.Context, segs []api.Segment) error {
	s.Lock()
	defer s.Unlock()

	var ops capi.KVTxnOps
	keyToSeg := map[string]api.SegmentID{}

	for _, seg := range segs {
		v, err := json.Marshal(seg)
		if err != nil {
			return err
		}

		sID := seg.ID()
		op := &capi.KVTxnOp{
			Verb:  capi.KVCAS,
			Key:   s.key(sID),
			Value: v,
		}

		// Zero (which means "doesn't exist yet") if we've never seen it.
		op.Index = s.modifyIndex[sID]

		keyToSeg[op.Key] = sID
		ops = append(ops, op)
	}

	for len(ops) > 0 {
		n := len(ops)
		if n > maxTxnOps {
			n = maxTxnOps
		}

		if err := s.txn(ctx, ops[:n], keyToSeg); err != nil {
			return err
		}

		ops = ops[n:]
	}

	return nil
}

func (s *Store) txn(ctx context.Context, ops capi.KVTxnOps, keyToSeg map[string]api.SegmentID) error {
	ok, res, _, err := s.kv.Txn(ops, (&capi.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return fmt.Errorf("writing segments: %w", err)
	}

	if !ok {
		msgs := make([]string, len(res.Errors))
		for i, e := range res.Errors {
			msgs[i] = fmt.Sprintf("%s: %s", ops[e.OpIndex].Key, e.What)
		}
		return fmt.Errorf("segment transaction rolled back: %s", strings.Join(msgs, "; "))
	}

	if len(res.Results) != len(ops) {
		panic(fmt.Sprintf("expected %d result from Txn, got %d", len(ops), len(res.Results)))
	}

	for _, r := range res.Results {
		s.modifyIndex[keyToSeg[r.Key]] = r.ModifyIndex
	}

	return nil
}

func (s *Store) DeleteSegments(ctx context.Context, ids []api.SegmentID) error {
	s.Lock()
	defer s.Unlock()

	w := (&capi.WriteOptions{}).WithContext(ctx)
	for _, sID := range ids {
		if _, err := s.kv.Delete(s.key(sID), w); err != nil {
			return fmt.Errorf("deleting segment %s: %w", sID, err)
		}
		delete(s.modifyIndex, sID)
	}

	return nil
}
