// Package etcdtest provides an in-memory etcd v2 keys API for tests.
//
// The server implements the subset the etcd package uses: leaf get, recursive
// directory listing, put with ttl and prevExist, recursive delete and watch
// with waitIndex. TTLs are recorded but never expire on their own; call Expire.
package etcdtest

import (
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/inaetics/node-wiring-go/etcd"
)

type entry struct {
	value    string
	created  uint64
	modified uint64
	ttl      int64
}

// Server is an httptest server backed by an in-memory key space.
type Server struct {
	*httptest.Server

	mu            sync.Mutex
	index         uint64
	keys          map[string]*entry
	history       []etcd.Response
	clearedBefore uint64
	changed       chan struct{}
	requests      []string
}

// NewServer starts a server. Callers close it, usually through t.Cleanup(srv.Close).
func NewServer() *Server {
	s := &Server{
		keys:    map[string]*entry{},
		changed: make(chan struct{}),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serveHTTP))
	return s
}

func normalize(key string) string {
	return "/" + strings.Trim(key, "/")
}

func under(key, dir string) bool {
	if dir == "/" {
		return true
	}
	return key == dir || strings.HasPrefix(key, dir+"/")
}

// Index returns the current store index.
func (s *Server) Index() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

// Put sets key to value as a client PUT would.
func (s *Server) Put(key, value string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp := s.putLocked(normalize(key), value, 0)
	return *resp.Node.ModifiedIndex
}

// Value returns the value of key and whether it exists.
func (s *Server) Value(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.keys[normalize(key)]
	if !ok {
		return "", false
	}
	return e.value, true
}

// TTL returns the ttl last set on key.
func (s *Server) TTL(key string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.keys[normalize(key)]; ok {
		return e.ttl
	}
	return 0
}

// Keys returns every leaf key in order.
func (s *Server) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.keys))
	for k := range s.keys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Expire removes key as if its ttl elapsed.
func (s *Server) Expire(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key = normalize(key)
	if _, ok := s.keys[key]; !ok {
		return
	}
	delete(s.keys, key)
	s.recordLocked(etcd.ActionExpire, key, nil)
}

// Compact drops watch history so that waits below the current index fail
// with errorCode 401.
func (s *Server) Compact() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearedBefore = s.index + 1
	s.history = nil
}

// Requests returns "METHOD /path?query" of every request received.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, r.Method+" "+r.URL.RequestURI())
	s.mu.Unlock()

	if !strings.HasPrefix(r.URL.Path, "/v2/keys") {
		http.NotFound(w, r)
		return
	}
	key := normalize(strings.TrimPrefix(r.URL.Path, "/v2/keys"))

	switch r.Method {
	case http.MethodGet:
		if r.URL.Query().Get("wait") == "true" {
			s.handleWatch(w, r, key)
			return
		}
		s.handleGet(w, r, key)
	case http.MethodPut:
		s.handlePut(w, r, key)
	case http.MethodDelete:
		s.handleDelete(w, key)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.keys[key]; ok {
		s.writeLocked(w, http.StatusOK, etcd.Response{Action: etcd.ActionGet, Node: leafNode(key, e)})
		return
	}

	node := s.dirLocked(key, r.URL.Query().Get("recursive") == "true")
	if node == nil {
		s.writeNotFoundLocked(w, key)
		return
	}
	s.writeLocked(w, http.StatusOK, etcd.Response{Action: etcd.ActionGet, Node: node})
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request, key string) {
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.keys[key]
	if r.PostForm.Get("prevExist") == "true" && !exists {
		s.writeNotFoundLocked(w, key)
		return
	}

	ttl, _ := strconv.ParseInt(r.PostForm.Get("ttl"), 10, 64)
	resp := s.putLocked(key, r.PostForm.Get("value"), ttl)
	if r.PostForm.Get("prevExist") == "true" {
		resp.Action = etcd.ActionUpdate
		s.history[len(s.history)-1].Action = etcd.ActionUpdate
	}

	status := http.StatusOK
	if !exists {
		status = http.StatusCreated
	}
	s.writeLocked(w, status, resp)
}

func (s *Server) handleDelete(w http.ResponseWriter, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed bool
	for k := range s.keys {
		if under(k, key) {
			delete(s.keys, k)
			removed = true
		}
	}
	if !removed {
		s.writeNotFoundLocked(w, key)
		return
	}

	resp := s.recordLocked(etcd.ActionDelete, key, nil)
	s.writeLocked(w, http.StatusOK, resp)
}

func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request, key string) {
	waitIndex, _ := strconv.ParseUint(r.URL.Query().Get("waitIndex"), 10, 64)

	for {
		s.mu.Lock()
		if waitIndex == 0 {
			waitIndex = s.index + 1
		}
		if waitIndex < s.clearedBefore {
			s.writeErrorLocked(w, http.StatusBadRequest, etcd.ErrorResponse{
				ErrorCode: 401,
				Message:   "The event in requested index is outdated and cleared",
				Index:     s.index,
			})
			s.mu.Unlock()
			return
		}
		for _, ev := range s.history {
			if *ev.Node.ModifiedIndex >= waitIndex && under(ev.Node.Key, key) {
				s.writeLocked(w, http.StatusOK, ev)
				s.mu.Unlock()
				return
			}
		}
		changed := s.changed
		s.mu.Unlock()

		select {
		case <-changed:
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) putLocked(key, value string, ttl int64) etcd.Response {
	var prev *etcd.Node
	created := s.index + 1
	if old, ok := s.keys[key]; ok {
		prev = leafNode(key, old)
		created = old.created
	}

	e := &entry{value: value, created: created, ttl: ttl}
	s.keys[key] = e
	resp := s.recordLocked(etcd.ActionSet, key, e)
	resp.PrevNode = prev
	s.history[len(s.history)-1].PrevNode = prev
	return resp
}

// recordLocked bumps the index, appends the event and wakes watchers.
func (s *Server) recordLocked(action etcd.Action, key string, e *entry) etcd.Response {
	s.index++
	idx := s.index

	node := &etcd.Node{Key: key, ModifiedIndex: &idx}
	if e != nil {
		e.modified = idx
		node = leafNode(key, e)
	}

	resp := etcd.Response{Action: action, Node: node}
	s.history = append(s.history, resp)

	close(s.changed)
	s.changed = make(chan struct{})
	return resp
}

// dirLocked builds the directory node for dir, nil when nothing lives below it.
func (s *Server) dirLocked(dir string, recursive bool) *etcd.Node {
	root := &etcd.Node{Key: dir, Dir: true}
	if dir == "/" {
		root.Key = ""
	}
	found := false

	keys := make([]string, 0, len(s.keys))
	for k := range s.keys {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if !under(k, dir) || k == dir {
			continue
		}
		found = true

		rel := strings.TrimPrefix(strings.TrimPrefix(k, dir), "/")
		parts := strings.Split(rel, "/")
		if !recursive {
			parts = parts[:1]
		}

		parent := root
		path := strings.TrimSuffix(dir, "/")
		for i, part := range parts {
			path += "/" + part
			last := i == len(parts)-1
			child := findChild(parent, path)
			if child == nil {
				if last && path == k {
					child = leafNode(k, s.keys[k])
				} else {
					child = &etcd.Node{Key: path, Dir: true}
				}
				parent.Nodes = append(parent.Nodes, child)
			}
			parent = child
		}
	}

	if !found {
		return nil
	}
	return root
}

func findChild(parent *etcd.Node, key string) *etcd.Node {
	for _, n := range parent.Nodes {
		if n.Key == key {
			return n
		}
	}
	return nil
}

func leafNode(key string, e *entry) *etcd.Node {
	value := e.value
	modified := e.modified
	return &etcd.Node{
		Key:           key,
		Value:         &value,
		ModifiedIndex: &modified,
		CreatedIndex:  e.created,
		TTL:           e.ttl,
	}
}

func (s *Server) writeNotFoundLocked(w http.ResponseWriter, key string) {
	s.writeErrorLocked(w, http.StatusNotFound, etcd.ErrorResponse{
		ErrorCode: 100,
		Message:   "Key not found",
		Cause:     key,
		Index:     s.index,
	})
}

func (s *Server) writeErrorLocked(w http.ResponseWriter, status int, e etcd.ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Etcd-Index", strconv.FormatUint(s.index, 10))
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(e)
}

func (s *Server) writeLocked(w http.ResponseWriter, status int, resp etcd.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Etcd-Index", strconv.FormatUint(s.index, 10))
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
