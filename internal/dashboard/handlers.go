package dashboard

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"slices"
	"strconv"

	"github.com/tkingovr/spawnguard/api"
	"github.com/tkingovr/spawnguard/internal/filter"
	"github.com/tkingovr/spawnguard/internal/spawn"
	"gopkg.in/yaml.v3"
)

const pageRecords = 100

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	stats, err := s.auditStore.Stats(r.Context())
	if err != nil {
		http.Error(w, "failed to get stats", http.StatusInternalServerError)
		return
	}

	data := map[string]any{
		"Page":  "overview",
		"Stats": stats,
	}
	renderPage(w, "overview", data)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	qf, err := queryFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if qf.Limit == 0 {
		qf.Limit = pageRecords
	}
	records, err := s.newest(r, qf)
	if err != nil {
		http.Error(w, "failed to query audit log", http.StatusInternalServerError)
		return
	}

	// Newest first
	slices.Reverse(records)

	data := map[string]any{
		"Page":    "audit",
		"Records": records,
		"Filter":  qf,
	}
	renderPage(w, "audit", data)
}

func (s *Server) handlePolicy(w http.ResponseWriter, r *http.Request) {
	policyYAML, err := yaml.Marshal(s.policy)
	if err != nil {
		http.Error(w, "failed to render policy", http.StatusInternalServerError)
		return
	}

	data := map[string]any{
		"Page":       "policy",
		"PolicyYAML": string(policyYAML),
		"Policy":     s.policy,
	}
	if path := s.policy.Settings.OPAPolicy; path != "" {
		rego, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("reading rego policy", "path", path, "error", err)
		} else {
			data["Rego"] = string(rego)
		}
	}
	renderPage(w, "policy", data)
}

func (s *Server) handleAPIStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.auditStore.Stats(r.Context())
	if err != nil {
		http.Error(w, "failed to get stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, stats)
}

func (s *Server) handleAPIAudit(w http.ResponseWriter, r *http.Request) {
	qf, err := queryFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	records, err := s.newest(r, qf)
	if err != nil {
		http.Error(w, "failed to query audit log", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []*api.AuditRecord{}
	}
	writeJSON(w, records)
}

func (s *Server) handleAPICheck(w http.ResponseWriter, r *http.Request) {
	var in api.CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	req, err := filter.RequestFromCheck(in)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	fc := filter.NewFilterContext(req)
	if err := s.checks.Process(r.Context(), fc); err != nil {
		if errors.Is(err, spawn.ErrInvalidRequest) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "evaluation error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, api.CheckResponse{
		Verdict: fc.Verdict,
		Rule:    fc.MatchedRule,
		Message: fc.VerdictMessage,
	})
}

// newest returns the last qf.Limit matching records, oldest first.
func (s *Server) newest(r *http.Request, qf api.QueryFilter) ([]*api.AuditRecord, error) {
	limit := qf.Limit
	qf.Limit = 0
	records, err := s.auditStore.Query(r.Context(), qf)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	return records, nil
}

func queryFilter(r *http.Request) (api.QueryFilter, error) {
	q := r.URL.Query()
	qf := api.QueryFilter{
		Event:   api.Event(q.Get("event")),
		Command: q.Get("command"),
		Verdict: api.Verdict(q.Get("verdict")),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return qf, errors.New("invalid limit")
		}
		qf.Limit = n
	}
	return qf, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
