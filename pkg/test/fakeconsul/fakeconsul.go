// Package fakeconsul is an in-memory stand-in for the parts of the Consul HTTP
// API which the placer uses: the KV store (including blocking queries and
// transactions) and the service catalog. It's only meant for tests.
package fakeconsul

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	capi "github.com/hashicorp/consul/api"
	"github.com/stretchr/testify/require"
)

type Server struct {
	srv *httptest.Server

	mu       sync.Mutex
	index    uint64
	kv       map[string]*capi.KVPair
	services map[string][]*capi.CatalogService

	// Closed and replaced whenever anything changes, to wake blocking
	// queries.
	changed chan struct{}
}

// New starts a fake Consul server, which is stopped when the test ends.
func New(t *testing.T) *Server {
	s := &Server{
		index:    1,
		kv:       map[string]*capi.KVPair{},
		services: map[string][]*capi.CatalogService{},
		changed:  make(chan struct{}),
	}

	r := mux.NewRouter()
	r.HandleFunc("/v1/kv/{key:.+}", s.kvGet).Methods("GET")
	r.HandleFunc("/v1/kv/{key:.+}", s.kvPut).Methods("PUT")
	r.HandleFunc("/v1/kv/{key:.+}", s.kvDelete).Methods("DELETE")
	r.HandleFunc("/v1/txn", s.txn).Methods("PUT")
	r.HandleFunc("/v1/catalog/service/{name}", s.catalogService).Methods("GET")

	s.srv = httptest.NewServer(r)
	t.Cleanup(s.srv.Close)

	return s
}

// Client returns a Consul API client pointed at the fake.
func (s *Server) Client(t *testing.T) *capi.Client {
	c, err := capi.NewClient(&capi.Config{Address: s.srv.URL})
	require.NoError(t, err)
	return c
}

// Put sets a key, as if some other client had.
func (s *Server) Put(key string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(key, value)
}

// Get returns the value of a key, or false if it doesn't exist.
func (s *Server) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.kv[key]
	if !ok {
		return nil, false
	}
	return p.Value, true
}

// Delete removes a key, as if some other client had.
func (s *Server) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.del(key)
}

// Keys returns every key with the given prefix, sorted.
func (s *Server) Keys(prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []string{}
	for k := range s.kv {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Register adds an instance of a service to the catalog.
func (s *Server) Register(svc *capi.CatalogService) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[svc.ServiceName] = append(s.services[svc.ServiceName], svc)
	s.bump()
}

// Deregister removes an instance of a service from the catalog.
func (s *Server) Deregister(name, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	svcs := s.services[name]
	for i, svc := range svcs {
		if svc.ServiceID == id {
			s.services[name] = append(svcs[:i], svcs[i+1:]...)
			break
		}
	}
	s.bump()
}

// bump must be called with mu held.
func (s *Server) bump() {
	s.index += 1
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *Server) set(key string, value []byte) *capi.KVPair {
	s.bump()

	p, ok := s.kv[key]
	if !ok {
		p = &capi.KVPair{Key: key, CreateIndex: s.index}
		s.kv[key] = p
	}

	p.Value = value
	p.ModifyIndex = s.index
	return p
}

func (s *Server) del(key string) {
	if _, ok := s.kv[key]; ok {
		delete(s.kv, key)
		s.bump()
	}
}

func (s *Server) writeMeta(w http.ResponseWriter) {
	w.Header().Set("X-Consul-Index", strconv.FormatUint(s.index, 10))
	w.Header().Set("X-Consul-LastContact", "0")
	w.Header().Set("X-Consul-KnownLeader", "true")
}

// wait blocks until the index passes the one requested by a blocking query,
// or the wait time elapses. It's called and returns with mu held.
func (s *Server) wait(r *http.Request) {
	idx, _ := strconv.ParseUint(r.URL.Query().Get("index"), 10, 64)
	if idx == 0 {
		return
	}

	timeout := 5 * time.Minute
	if d, err := time.ParseDuration(r.URL.Query().Get("wait")); err == nil && d > 0 {
		timeout = d
	}
	deadline := time.After(timeout)

	for s.index <= idx {
		ch := s.changed
		s.mu.Unlock()
		select {
		case <-ch:
		case <-deadline:
			s.mu.Lock()
			return
		case <-r.Context().Done():
			s.mu.Lock()
			return
		}
		s.mu.Lock()
	}
}

func (s *Server) kvGet(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	_, recurse := r.URL.Query()["recurse"]

	s.mu.Lock()
	defer s.mu.Unlock()

	s.wait(r)

	out := []*capi.KVPair{}
	if recurse {
		for k, p := range s.kv {
			if strings.HasPrefix(k, key) {
				out = append(out, p)
			}
		}
		sort.Slice(out, func(i, j int) bool {
			return out[i].Key < out[j].Key
		})
	} else if p, ok := s.kv[key]; ok {
		out = append(out, p)
	}

	s.writeMeta(w)
	if len(out) == 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	json.NewEncoder(w).Encode(out)
}

func (s *Server) kvPut(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	var buf strings.Builder
	if _, err := bufCopy(&buf, r); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.set(key, []byte(buf.String()))
	s.writeMeta(w)
	w.Write([]byte("true"))
}

func (s *Server) kvDelete(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	_, recurse := r.URL.Query()["recurse"]

	s.mu.Lock()
	defer s.mu.Unlock()

	if recurse {
		for k := range s.kv {
			if strings.HasPrefix(k, key) {
				s.del(k)
			}
		}
	} else {
		s.del(key)
	}

	s.writeMeta(w)
	w.Write([]byte("true"))
}

func (s *Server) txn(w http.ResponseWriter, r *http.Request) {
	var ops capi.TxnOps
	if err := json.NewDecoder(r.Body).Decode(&ops); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Check every CAS before applying anything.
	errs := capi.TxnErrors{}
	for i, op := range ops {
		if op.KV == nil || op.KV.Verb != capi.KVCAS {
			continue
		}

		var cur uint64
		if p, ok := s.kv[op.KV.Key]; ok {
			cur = p.ModifyIndex
		}

		if cur != op.KV.Index {
			errs = append(errs, &capi.TxnError{OpIndex: i, What: "index mismatch"})
		}
	}

	s.writeMeta(w)

	if len(errs) > 0 {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(capi.TxnResponse{Errors: errs})
		return
	}

	res := capi.TxnResponse{}
	for _, op := range ops {
		if op.KV == nil {
			continue
		}

		switch op.KV.Verb {
		case capi.KVSet, capi.KVCAS:
			p := s.set(op.KV.Key, op.KV.Value)
			res.Results = append(res.Results, &capi.TxnResult{KV: &capi.KVPair{
				Key:         p.Key,
				CreateIndex: p.CreateIndex,
				ModifyIndex: p.ModifyIndex,
			}})

		case capi.KVDelete:
			s.del(op.KV.Key)
		}
	}

	json.NewEncoder(w).Encode(res)
}

func (s *Server) catalogService(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	s.mu.Lock()
	defer s.mu.Unlock()

	s.wait(r)

	out := s.services[name]
	if out == nil {
		out = []*capi.CatalogService{}
	}

	s.writeMeta(w)
	json.NewEncoder(w).Encode(out)
}

func bufCopy(b *strings.Builder, r *http.Request) (int64, error) {
	defer r.Body.Close()
	return io.Copy(b, r.Body)
}
