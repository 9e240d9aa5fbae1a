package health

import (
	"encoding/json"
	"net/http"
)

// ReadinessReporter reports whether filters can be served and how many
// service interfaces are live.
type ReadinessReporter interface {
	Readiness() (ready bool, interfaces int)
}

func Readiness(rr ReadinessReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		type resp struct {
			Status     string `json:"status"`
			Interfaces int    `json:"interfaces"`
		}
		ready, n := rr.Readiness()
		out := resp{Status: "not_ready", Interfaces: n}
		if ready {
			out.Status = "ready"
		}
		w.Header().Set("Content-Type", "application/json")
		if !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}
