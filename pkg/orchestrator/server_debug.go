package orchestrator

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/adammck/placer/pkg/api"
	"github.com/adammck/placer/pkg/roster"
	"github.com/gorilla/mux"
)

type nodeResponse struct {
	Ident       api.NodeID      `json:"ident"`
	Host        string          `json:"host"`
	Tier        string          `json:"tier"`
	MaxSize     int64           `json:"maxSize"`
	SizeUsed    int64           `json:"sizeUsed"`
	Serving     []api.SegmentID `json:"serving"`
	QueuedLoads []api.SegmentID `json:"queuedLoads"`
	QueuedDrops []api.SegmentID `json:"queuedDrops"`
}

func nodeResp(n *roster.Node) nodeResponse {
	snap := n.Snapshot()

	serving := []api.SegmentID{}
	for _, seg := range snap.Segments() {
		serving = append(serving, seg.ID())
	}

	return nodeResponse{
		Ident:       snap.Ident(),
		Host:        snap.Host(),
		Tier:        snap.Tier(),
		MaxSize:     snap.MaxSize(),
		SizeUsed:    n.SizeUsed(),
		Serving:     serving,
		QueuedLoads: n.Queue().LoadSet(),
		QueuedDrops: n.Queue().DropSet(),
	}
}

type cycleResponse struct {
	ID       string                      `json:"id"`
	Started  time.Time                   `json:"started"`
	Duration string                      `json:"duration"`
	Segments int                         `json:"segments"`
	Global   map[string]int64            `json:"global"`
	PerTier  map[string]map[string]int64 `json:"perTier"`
}

// DebugHandler serves the state of the most recent cycle as JSON:
//
//	GET /debug/cycle
//	GET /debug/nodes
//	GET /debug/nodes/{node}
func (o *Orchestrator) DebugHandler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/debug/cycle", o.handleCycle).Methods("GET")
	r.HandleFunc("/debug/nodes", o.handleNodes).Methods("GET")
	r.HandleFunc("/debug/nodes/{node}", o.handleNode).Methods("GET")
	return r
}

func (o *Orchestrator) handleCycle(w http.ResponseWriter, r *http.Request) {
	res := o.Last()
	if res == nil {
		http.Error(w, "no cycle has completed", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, cycleResponse{
		ID:       res.ID,
		Started:  res.Started,
		Duration: res.Duration.String(),
		Segments: res.Segments,
		Global:   res.Stats.GlobalStats(),
		PerTier:  res.Stats.PerTier(),
	})
}

func (o *Orchestrator) handleNodes(w http.ResponseWriter, r *http.Request) {
	res := o.Last()
	if res == nil {
		http.Error(w, "no cycle has completed", http.StatusServiceUnavailable)
		return
	}

	out := []nodeResponse{}
	for _, n := range res.Cluster.AllNodes() {
		out = append(out, nodeResp(n))
	}

	writeJSON(w, out)
}

func (o *Orchestrator) handleNode(w http.ResponseWriter, r *http.Request) {
	res := o.Last()
	if res == nil {
		http.Error(w, "no cycle has completed", http.StatusServiceUnavailable)
		return
	}

	nID := api.NodeID(mux.Vars(r)["node"])
	n, err := res.Cluster.NodeByIdent(nID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	writeJSON(w, nodeResp(n))
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
