package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/roach88/cadence/internal/model"
)

// FakeAPI is an in-memory REST service speaking the cadence contract.
//
// Collections are keyed by model.Kind endpoints. POST assigns numeric ids
// starting at 101. Failures can be scripted per method and kind, or the
// whole service can be taken down.
type FakeAPI struct {
	server *httptest.Server
	token  string

	mu       sync.Mutex
	records  map[model.Kind][]fakeRecord
	nextID   int
	down     bool
	failures map[string][]int // "METHOD kind" → queued status codes
	requests []string
}

type fakeRecord struct {
	id     string
	fields map[string]any
}

// NewFakeAPI starts the service; it is closed when the test ends.
// A non-empty token is required as the bearer token on every request.
func NewFakeAPI(t testing.TB, token string) *FakeAPI {
	t.Helper()
	f := &FakeAPI{
		token:    token,
		records:  make(map[model.Kind][]fakeRecord),
		nextID:   101,
		failures: make(map[string][]int),
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

// URL is the service base URL.
func (f *FakeAPI) URL() string { return f.server.URL }

// SetDown makes every request, /health included, answer 503.
func (f *FakeAPI) SetDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

// FailNext makes the next n requests of method against kind answer status.
func (f *FakeAPI) FailNext(method string, kind model.Kind, status, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := method + " " + string(kind)
	for i := 0; i < n; i++ {
		f.failures[key] = append(f.failures[key], status)
	}
}

// Seed stores an entity under id without going through POST.
func (f *FakeAPI) Seed(id string, entity model.Entity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fields := toFields(entity)
	f.upsert(entity.Kind(), id, fields)
}

// Remove deletes a record directly.
func (f *FakeAPI) Remove(kind model.Kind, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delete(kind, id)
}

// IDs returns the ids held for kind in insertion order.
func (f *FakeAPI) IDs(kind model.Kind) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.records[kind]))
	for _, r := range f.records[kind] {
		ids = append(ids, r.id)
	}
	return ids
}

// Field returns one field of a stored record.
func (f *FakeAPI) Field(kind model.Kind, id, field string) (any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records[kind] {
		if r.id == id {
			v, ok := r.fields[field]
			return v, ok
		}
	}
	return nil, false
}

// Requests returns "METHOD /path" for every request received.
func (f *FakeAPI) Requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

// RequestCount returns how many requests of method hit kind's collection.
func (f *FakeAPI) RequestCount(method string, kind model.Kind) int {
	endpoint, err := kind.Endpoint()
	if err != nil {
		return 0
	}
	n := 0
	for _, r := range f.Requests() {
		if r == method+" "+endpoint || strings.HasPrefix(r, method+" "+endpoint+"/") {
			n++
		}
	}
	return n
}

func (f *FakeAPI) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, r.Method+" "+r.URL.Path)

	if f.down {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	if f.token != "" && r.Header.Get("Authorization") != "Bearer "+f.token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if r.URL.Path == "/health" {
		w.WriteHeader(http.StatusOK)
		return
	}

	kind, id, ok := route(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	key := r.Method + " " + string(kind)
	if queued := f.failures[key]; len(queued) > 0 {
		f.failures[key] = queued[1:]
		http.Error(w, "scripted failure", queued[0])
		return
	}

	switch {
	case r.Method == http.MethodGet && id == "":
		out := make([]map[string]any, 0, len(f.records[kind]))
		for _, rec := range f.records[kind] {
			out = append(out, withID(rec))
		}
		writeJSON(w, http.StatusOK, out)

	case r.Method == http.MethodGet:
		rec, found := f.find(kind, id)
		if !found {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, http.StatusOK, withID(rec))

	case r.Method == http.MethodPost && id == "":
		var fields map[string]any
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		newID := strconv.Itoa(f.nextID)
		f.nextID++
		f.upsert(kind, newID, fields)
		rec, _ := f.find(kind, newID)
		writeJSON(w, http.StatusCreated, withID(rec))

	case r.Method == http.MethodPut && id != "":
		if _, found := f.find(kind, id); !found {
			http.NotFound(w, r)
			return
		}
		var fields map[string]any
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.upsert(kind, id, fields)
		rec, _ := f.find(kind, id)
		writeJSON(w, http.StatusOK, withID(rec))

	case r.Method == http.MethodDelete && id != "":
		if !f.delete(kind, id) {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (f *FakeAPI) find(kind model.Kind, id string) (fakeRecord, bool) {
	for _, r := range f.records[kind] {
		if r.id == id {
			return r, true
		}
	}
	return fakeRecord{}, false
}

func (f *FakeAPI) upsert(kind model.Kind, id string, fields map[string]any) {
	delete(fields, "id")
	for i, r := range f.records[kind] {
		if r.id == id {
			f.records[kind][i].fields = fields
			return
		}
	}
	f.records[kind] = append(f.records[kind], fakeRecord{id: id, fields: fields})
}

func (f *FakeAPI) delete(kind model.Kind, id string) bool {
	recs := f.records[kind]
	for i, r := range recs {
		if r.id == id {
			f.records[kind] = append(recs[:i:i], recs[i+1:]...)
			return true
		}
	}
	return false
}

// route splits "/goals/42" into (goals, "42").
func route(path string) (model.Kind, string, bool) {
	for _, kind := range model.EntityKinds {
		endpoint, _ := kind.Endpoint()
		if path == endpoint {
			return kind, "", true
		}
		if id, ok := strings.CutPrefix(path, endpoint+"/"); ok && id != "" && !strings.Contains(id, "/") {
			return kind, id, true
		}
	}
	return "", "", false
}

func withID(r fakeRecord) map[string]any {
	out := make(map[string]any, len(r.fields)+1)
	for k, v := range r.fields {
		out[k] = v
	}
	if n, err := strconv.Atoi(r.id); err == nil {
		out["id"] = n
	} else {
		out["id"] = r.id
	}
	return out
}

func toFields(e model.Entity) map[string]any {
	data, _ := json.Marshal(e)
	var fields map[string]any
	_ = json.Unmarshal(data, &fields)
	return fields
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
