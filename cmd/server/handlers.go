package main

import (
	"fmt"
	"net/http"

	"github.com/lychee-technology/eavsearch"
	"github.com/lychee-technology/eavsearch/internal"
	"go.uber.org/zap"
)

// handleSearch handles POST /api/v1/search
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeSearchRequest(w, r)
	if !ok {
		return
	}
	result, err := s.searcher.Search(r.Context(), req)
	if err != nil {
		writeSearchError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, result)
}

// handleCount handles POST /api/v1/search/count
func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeSearchRequest(w, r)
	if !ok {
		return
	}
	total, err := s.searcher.Count(r.Context(), req)
	if err != nil {
		writeSearchError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, CountResponse{Count: total})
}

// handleCompile handles POST /api/v1/compile. It returns both statements
// without executing them.
func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeSearchRequest(w, r)
	if !ok {
		return
	}
	page, err := s.searcher.CreateQuery(r.Context(), req)
	if err != nil {
		writeSearchError(w, err)
		return
	}
	count, err := s.searcher.CreateCountQuery(r.Context(), req)
	if err != nil {
		writeSearchError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, CompileResponse{Page: page, Count: count})
}

// handleHealth handles GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := internal.DatabaseHealthCheck(r.Context(), s.db, 0); err != nil {
		zap.S().Warnw("health check failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeSuccess(w, http.StatusOK, APIResponse{Success: true})
}

func (s *Server) decodeSearchRequest(w http.ResponseWriter, r *http.Request) (*eavsearch.SearchRequest, bool) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return nil, false
	}
	var req eavsearch.SearchRequest
	if err := readJSONBody(r, &req); err != nil {
		if eavsearch.IsClientError(err) {
			writeSearchError(w, err)
		} else {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json body: %v", err))
		}
		return nil, false
	}
	applyPagination(&req, s.search)
	return &req, true
}
