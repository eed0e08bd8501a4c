// Package consul discovers storage nodes via the Consul service catalog, and
// the segments they serve via announcements in the Consul KV store.
package consul

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/adammck/placer/pkg/api"
	"github.com/adammck/placer/pkg/roster"
	capi "github.com/hashicorp/consul/api"
	"go.uber.org/zap"
)

// Service metadata keys which nodes register with.
const (
	MetaTier    = "tier"
	MetaMaxSize = "max_size"
)

// Source is a roster.Source. Every instance of the named service is a node.
// Its tier and capacity are read from the service metadata, and the segments it
// serves from <announcePrefix>/<service ID>/<segment ID>, each value being
// the JSON-encoded segment.
type Source struct {
	consul         *capi.Client
	service        string
	announcePrefix string
	log            *zap.Logger
}

func New(client *capi.Client, service, announcePrefix string, logger *zap.Logger) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Source{
		consul:         client,
		service:        service,
		announcePrefix: strings.Trim(announcePrefix, "/"),
		log:            logger,
	}
}

func (s *Source) Snapshots(ctx context.Context) ([]*roster.Snapshot, error) {

	// Fetch all entries (remotes) for the service name.
	res, _, err := s.consul.Catalog().Service(s.service, "", (&capi.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetching service %s: %w", s.service, err)
	}

	served, err := s.announcements(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*roster.Snapshot, 0, len(res))

	for _, r := range res {
		host := r.ServiceAddress
		if host == "" {
			host = r.Address // https://github.com/hashicorp/consul/issues/2076
		}

		rem := api.Remote{
			Ident: r.ServiceID,
			Host:  host,
			Port:  r.ServicePort,
		}

		var maxSize int64
		if v, ok := r.ServiceMeta[MetaMaxSize]; ok {
			maxSize, err = strconv.ParseInt(v, 10, 64)
			if err != nil {
				s.log.Warn("invalid max size; treating node as full",
					zap.String("node", rem.Ident),
					zap.String("value", v))
				maxSize = 0
			}
		}

		nID := rem.NodeID()
		out = append(out, roster.NewSnapshot(nID, rem.Addr(), r.ServiceMeta[MetaTier], maxSize, served[nID]))
	}

	return out, nil
}

// announcements returns the segments which each node says it's serving.
func (s *Source) announcements(ctx context.Context) (map[api.NodeID][]api.Segment, error) {
	pairs, _, err := s.consul.KV().List(s.announcePrefix+"/", (&capi.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("listing announcements: %w", err)
	}

	out := map[api.NodeID][]api.Segment{}

	for _, kv := range pairs {
		parts := strings.SplitN(strings.TrimPrefix(kv.Key, s.announcePrefix+"/"), "/", 2)
		if len(parts) != 2 || parts[0] == "" {
			s.log.Warn("invalid announcement key", zap.String("key", kv.Key))
			continue
		}

		seg := api.Segment{}
		if err := json.Unmarshal(kv.Value, &seg); err != nil {
			s.log.Warn("invalid announcement", zap.String("key", kv.Key), zap.Error(err))
			continue
		}

		if string(seg.ID()) != parts[1] {
			s.log.Warn("mismatch between announcement key and segment",
				zap.String("key", kv.Key),
				zap.Stringer("segment", seg.ID()))
			continue
		}

		nID := api.NodeID(parts[0])
		out[nID] = append(out[nID], seg)
	}

	return out, nil
}
