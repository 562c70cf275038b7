// Package health exposes liveness and readiness endpoints for the gate.
package health

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
)

// Readiness states.
const (
	StateStarting = "starting"
	StateReady    = "ready"
	StateDraining = "draining"
)

// Checker tracks readiness. It starts in the Starting state and is safe
// for concurrent use.
type Checker struct {
	state atomic.Value
}

// NewChecker creates a Checker in the Starting state.
func NewChecker() *Checker {
	c := &Checker{}
	c.state.Store(StateStarting)
	return c
}

// SetReady marks the gate ready to serve.
func (c *Checker) SetReady() { c.state.Store(StateReady) }

// SetDraining marks the gate as shutting down.
func (c *Checker) SetDraining() { c.state.Store(StateDraining) }

// State returns the current readiness state.
func (c *Checker) State() string {
	return c.state.Load().(string)
}

// LivenessHandler always responds 200; wire it to /healthz.
func (*Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, "ok")
	}
}

// ReadinessHandler responds 200 when ready, 503 while starting or
// draining; wire it to /readyz.
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		state := c.State()
		code := http.StatusServiceUnavailable
		if state == StateReady {
			code = http.StatusOK
		}
		writeStatus(w, code, state)
	}
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}
