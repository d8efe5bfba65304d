package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"
)

// Record is one JSON object served by FakeAPI.
type Record map[string]any

// DefaultFixtures mirrors the json-server database the scenarios were written
// against: more users and products than the "first five" services return,
// and posts owned by users 1 and 2.
func DefaultFixtures() map[string][]Record {
	return map[string][]Record{
		"users": {
			{"id": 1, "name": "Ana Torres", "email": "ana@example.com"},
			{"id": 2, "name": "Bruno Diaz", "email": "bruno@example.com"},
			{"id": 3, "name": "Carla Mendez", "email": "carla@example.com"},
			{"id": 4, "name": "Diego Ruiz", "email": "diego@example.com"},
			{"id": 5, "name": "Elena Paz", "email": "elena@example.com"},
			{"id": 6, "name": "Fabian Soto", "email": "fabian@example.com"},
			{"id": 7, "name": "Gabriela Rios", "email": "gabriela@example.com"},
		},
		"posts": {
			{"id": 1, "userId": 1, "title": "Observables 101"},
			{"id": 2, "userId": 1, "title": "Operators with pipe"},
			{"id": 3, "userId": 1, "title": "switchMap in practice"},
			{"id": 4, "userId": 2, "title": "Retry strategies"},
		},
		"products": {
			{"id": 1, "name": "Keyboard", "price": 49.9},
			{"id": 2, "name": "Mouse", "price": 19.5},
			{"id": 3, "name": "Monitor", "price": 189},
			{"id": 4, "name": "Headset", "price": 75},
			{"id": 5, "name": "Webcam", "price": 60},
			{"id": 6, "name": "Dock", "price": 120},
		},
	}
}

// FakeAPI is an httptest server answering GET /{resource} (optionally
// filtered by ?userId=) and GET /{resource}/{id} from in-memory fixtures.
// Failures, raw bodies and per-request delays can be injected.
type FakeAPI struct {
	Server *httptest.Server

	mu       sync.Mutex
	data     map[string][]Record
	failures map[string]failure
	raw      map[string]string
	delay    func(r *http.Request) time.Duration
	requests map[string]int
}

type failure struct {
	remaining int
	status    int
}

// NewFakeAPI starts a FakeAPI loaded with DefaultFixtures. The server is
// closed when the test finishes.
func NewFakeAPI(t *testing.T) *FakeAPI {
	t.Helper()
	f := &FakeAPI{
		data:     DefaultFixtures(),
		failures: make(map[string]failure),
		raw:      make(map[string]string),
		requests: make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{resource}", f.handleList)
	mux.HandleFunc("GET /{resource}/{id}", f.handleGet)
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)
	return f
}

// URL returns the base URL of the server.
func (f *FakeAPI) URL() string {
	return f.Server.URL
}

// FailNext makes the next n requests for resource answer with status.
func (f *FakeAPI) FailNext(resource string, n, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[resource] = failure{remaining: n, status: status}
}

// ServeRaw makes every request for resource answer 200 with body verbatim.
func (f *FakeAPI) ServeRaw(resource, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raw[resource] = body
}

// SetDelay installs a function deciding how long each request is held
// before it is answered.
func (f *FakeAPI) SetDelay(delay func(r *http.Request) time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = delay
}

// Requests returns how many requests were received for resource.
func (f *FakeAPI) Requests(resource string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[resource]
}

// prepare records the request, applies delay and injected failures, and
// reports whether the handler should continue.
func (f *FakeAPI) prepare(w http.ResponseWriter, r *http.Request, resource string) bool {
	f.mu.Lock()
	f.requests[resource]++
	delay := f.delay
	fail, failing := f.failures[resource]
	if failing && fail.remaining > 0 {
		fail.remaining--
		f.failures[resource] = fail
	} else {
		failing = false
	}
	raw, isRaw := f.raw[resource]
	f.mu.Unlock()

	if delay != nil {
		if d := delay(r); d > 0 {
			select {
			case <-time.After(d):
			case <-r.Context().Done():
				return false
			}
		}
	}
	if failing {
		http.Error(w, http.StatusText(fail.status), fail.status)
		return false
	}
	if isRaw {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(raw))
		return false
	}
	return true
}

func (f *FakeAPI) handleList(w http.ResponseWriter, r *http.Request) {
	resource := r.PathValue("resource")
	if !f.prepare(w, r, resource) {
		return
	}

	f.mu.Lock()
	records, ok := f.data[resource]
	f.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}

	out := make([]Record, 0, len(records))
	userID := r.URL.Query().Get("userId")
	for _, rec := range records {
		if userID != "" && strconv.Itoa(asInt(rec["userId"])) != userID {
			continue
		}
		out = append(out, rec)
	}
	writeJSON(w, out)
}

func (f *FakeAPI) handleGet(w http.ResponseWriter, r *http.Request) {
	resource := r.PathValue("resource")
	if !f.prepare(w, r, resource) {
		return
	}

	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	records := f.data[resource]
	f.mu.Unlock()
	for _, rec := range records {
		if asInt(rec["id"]) == id {
			writeJSON(w, rec)
			return
		}
	}
	http.NotFound(w, r)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return -1
	}
}
