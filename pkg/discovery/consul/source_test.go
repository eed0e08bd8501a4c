package consul

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/adammck/placer/pkg/api"
	"github.com/adammck/placer/pkg/test/fakeconsul"
	capi "github.com/hashicorp/consul/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func announce(t *testing.T, fc *fakeconsul.Server, node string, seg api.Segment) {
	v, err := json.Marshal(seg)
	require.NoError(t, err)
	fc.Put("placer/announce/"+node+"/"+string(seg.ID()), v)
}

func TestSnapshots(t *testing.T) {
	fc := fakeconsul.New(t)

	fc.Register(&capi.CatalogService{
		ServiceName: "historical",
		ServiceID:   "hot1",
		Address:     "10.0.0.1",
		ServicePort: 8083,
		ServiceMeta: map[string]string{MetaTier: "hot", MetaMaxSize: "1000"},
	})
	fc.Register(&capi.CatalogService{
		ServiceName:    "historical",
		ServiceID:      "norm1",
		Address:        "10.0.0.2",
		ServiceAddress: "norm1.example.com",
		ServicePort:    8083,
		ServiceMeta:    map[string]string{MetaMaxSize: "lots"},
	})
	fc.Register(&capi.CatalogService{
		ServiceName: "broker",
		ServiceID:   "broker1",
	})

	seg := api.Segment{
		DataSource: "wiki",
		Interval:   api.MustParseInterval("2012-01-01T00:00:00Z/2012-01-02T00:00:00Z"),
		Version:    "v1",
		Size:       100,
	}
	announce(t, fc, "hot1", seg)
	fc.Put("placer/announce/hot1/garbage", []byte("{"))
	fc.Put("placer/announce/nonsense", []byte("{}"))

	s := New(fc.Client(t), "historical", "placer/announce", zaptest.NewLogger(t))
	snaps, err := s.Snapshots(context.Background())
	require.NoError(t, err)
	require.Len(t, snaps, 2)

	hot := snaps[0]
	assert.Equal(t, api.NodeID("hot1"), hot.Ident())
	assert.Equal(t, "10.0.0.1:8083", hot.Host())
	assert.Equal(t, "hot", hot.Tier())
	assert.Equal(t, int64(1000), hot.MaxSize())
	assert.Equal(t, []api.Segment{seg}, hot.Segments())

	norm := snaps[1]
	assert.Equal(t, "norm1.example.com:8083", norm.Host())
	assert.Equal(t, api.DefaultTier, norm.Tier())
	assert.Equal(t, int64(0), norm.MaxSize())
	assert.Empty(t, norm.Segments())
}
