package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"

	"juris-rag/internal/core/domain"
	"juris-rag/internal/core/ports"
	"juris-rag/internal/observability/metrics"
)

type Router struct {
	service     ports.PrecedentSearchService
	metrics     *metrics.HTTPServerMetrics
	serviceName string
}

func NewRouter(service ports.PrecedentSearchService, m *metrics.HTTPServerMetrics, serviceName string) *Router {
	return &Router{service: service, metrics: m, serviceName: serviceName}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/search", rt.search)
	mux.HandleFunc("/v1/answer", rt.answer)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.serviceName, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// searchRequest is the wire form of a query. Overrides are passed through to
// tuning resolution, which clamps and ignores unknown keys. prefer_recent
// defaults to true when the caller omits it.
type searchRequest struct {
	Query             string         `json:"query"`
	Filter            domain.Filter  `json:"filter"`
	Sources           []string       `json:"sources"`
	PreferRecent      *bool          `json:"prefer_recent"`
	PreferUserSources bool           `json:"prefer_user_sources"`
	RerankBackend     string         `json:"rerank_backend"`
	Overrides         map[string]any `json:"overrides"`
}

func decodeSearchRequest(r *http.Request) (domain.SearchRequest, bool) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return domain.SearchRequest{}, false
	}
	preferRecent := true
	if req.PreferRecent != nil {
		preferRecent = *req.PreferRecent
	}
	return domain.SearchRequest{
		Query:             req.Query,
		Filter:            req.Filter,
		Sources:           req.Sources,
		PreferRecent:      preferRecent,
		PreferUserSources: req.PreferUserSources,
		RerankBackend:     req.RerankBackend,
		Overrides:         req.Overrides,
	}, true
}

func (rt *Router) search(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	req, ok := decodeSearchRequest(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}

	result, err := rt.service.SearchAndRank(r.Context(), req)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	if rt.metrics != nil {
		rt.metrics.ObserveReturnedDocs(len(result.Documents))
		rt.metrics.RecordRerankBackend(result.Meta.RerankBackend)
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) answer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	req, ok := decodeSearchRequest(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}

	result, err := rt.service.Answer(r.Context(), req)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	if rt.metrics != nil {
		rt.metrics.ObserveReturnedDocs(len(result.Documents))
		rt.metrics.RecordRerankBackend(result.Meta.RerankBackend)
	}
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
