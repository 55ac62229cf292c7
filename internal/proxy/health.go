package proxy

import "net/http"

type healthStatus struct {
	Status string `json:"status"`
}

// livenessHandler reports that the process is serving requests.
func livenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		writeJSON(r.Context(), w, healthStatus{Status: "alive"}, http.StatusOK)
	}
}

// readinessHandler reports 200 while checker is ready and 503 otherwise.
// Readiness tracks whether an upstream access token is available.
func readinessHandler(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		if checker.IsReady() {
			writeJSON(r.Context(), w, healthStatus{Status: "ready"}, http.StatusOK)
			return
		}
		writeJSON(r.Context(), w, healthStatus{Status: "not_ready"}, http.StatusServiceUnavailable)
	}
}
