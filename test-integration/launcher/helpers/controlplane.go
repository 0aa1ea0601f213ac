// Package helpers provides a fake control plane and launcher lifecycle helpers for the
// integration suite.
package helpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/workload-launcher/internal/workload"
)

// FakeControlPlane serves the ledger and dataplane endpoints from memory
type FakeControlPlane struct {
	server *httptest.Server

	mu        sync.Mutex
	identity  workload.DataplaneInitResponse
	workloads map[string]*workload.Workload
	groups    map[string]string
	failures  map[string]string
}

// NewFakeControlPlane starts a control plane that assigns identity to every caller
func NewFakeControlPlane(identity workload.DataplaneInitResponse) *FakeControlPlane {
	cp := &FakeControlPlane{
		identity:  identity,
		workloads: map[string]*workload.Workload{},
		groups:    map[string]string{},
		failures:  map[string]string{},
	}

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/dataplanes/initialize", cp.initialize)
		r.Post("/workload/list", cp.list)
		r.Post("/workload/queue/poll", cp.poll)
		r.Put("/workload/claim", cp.claim)
		r.Post("/workload/launched", cp.launched)
		r.Post("/workload/failure", cp.failure)
	})
	cp.server = httptest.NewServer(r)
	return cp
}

// URL is the base URL of the fake
func (cp *FakeControlPlane) URL() string {
	return cp.server.URL
}

// Close shuts the fake down
func (cp *FakeControlPlane) Close() {
	cp.server.Close()
}

// SetEnabled flips the dataplane's enabled flag returned by later handshakes
func (cp *FakeControlPlane) SetEnabled(enabled bool) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	cp.identity.DataplaneEnabled = enabled
}

// AddClaimed records a workload already claimed by this plane
func (cp *FakeControlPlane) AddClaimed(w workload.Workload) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	w.Status = workload.StatusClaimed
	w.DataplaneID = cp.identity.DataplaneID
	cp.workloads[w.ID] = &w
}

// Enqueue adds a pending workload for a dataplane group
func (cp *FakeControlPlane) Enqueue(groupID string, w workload.Workload) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	w.Status = workload.StatusPending
	cp.workloads[w.ID] = &w
	cp.groups[w.ID] = groupID
}

// Status returns the status of a workload
func (cp *FakeControlPlane) Status(id string) workload.Status {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	if w, ok := cp.workloads[id]; ok {
		return w.Status
	}
	return ""
}

// FailureReason returns the reason a workload was failed with
func (cp *FakeControlPlane) FailureReason(id string) string {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return cp.failures[id]
}

func (cp *FakeControlPlane) initialize(w http.ResponseWriter, _ *http.Request) {
	cp.mu.Lock()
	identity := cp.identity
	cp.mu.Unlock()
	writeJSON(w, identity)
}

func (cp *FakeControlPlane) list(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Dataplane []string          `json:"dataplane"`
		Status    []workload.Status `json:"status"`
	}
	if !readJSON(w, r, &req) {
		return
	}

	cp.mu.Lock()
	defer cp.mu.Unlock()
	out := []workload.Workload{}
	for _, wl := range cp.workloads {
		if len(req.Dataplane) > 0 && !slices.Contains(req.Dataplane, wl.DataplaneID) {
			continue
		}
		if len(req.Status) > 0 && !slices.Contains(req.Status, wl.Status) {
			continue
		}
		out = append(out, *wl)
	}
	writeJSON(w, map[string]any{"workloads": out})
}

func (cp *FakeControlPlane) poll(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DataplaneGroup string `json:"dataplaneGroup"`
		Quantity       int    `json:"quantity"`
	}
	if !readJSON(w, r, &req) {
		return
	}

	cp.mu.Lock()
	defer cp.mu.Unlock()
	out := []workload.Workload{}
	for id, wl := range cp.workloads {
		if len(out) >= req.Quantity {
			break
		}
		if wl.Status == workload.StatusPending && cp.groups[id] == req.DataplaneGroup {
			out = append(out, *wl)
		}
	}
	writeJSON(w, map[string]any{"workloads": out})
}

func (cp *FakeControlPlane) claim(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WorkloadID  string `json:"workloadId"`
		DataplaneID string `json:"dataplaneId"`
	}
	if !readJSON(w, r, &req) {
		return
	}

	cp.mu.Lock()
	defer cp.mu.Unlock()
	wl, ok := cp.workloads[req.WorkloadID]
	claimed := ok && wl.Status == workload.StatusPending
	if claimed {
		wl.Status = workload.StatusClaimed
		wl.DataplaneID = req.DataplaneID
	}
	writeJSON(w, map[string]bool{"claimed": claimed})
}

func (cp *FakeControlPlane) launched(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WorkloadID string `json:"workloadId"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	cp.setStatus(req.WorkloadID, workload.StatusLaunched)
	w.WriteHeader(http.StatusNoContent)
}

func (cp *FakeControlPlane) failure(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WorkloadID string `json:"workloadId"`
		Reason     string `json:"reason"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	cp.setStatus(req.WorkloadID, workload.StatusFailure)

	cp.mu.Lock()
	cp.failures[req.WorkloadID] = req.Reason
	cp.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (cp *FakeControlPlane) setStatus(id string, status workload.Status) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	if wl, ok := cp.workloads[id]; ok {
		wl.Status = status
	}
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
