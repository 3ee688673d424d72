package main

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/lychee-technology/eavsearch"
	"github.com/stretchr/testify/assert"
)

func TestApplyPagination(t *testing.T) {
	cfg := eavsearch.SearchConfig{DefaultPageSize: 20, MaxPageSize: 100}

	tests := []struct {
		name     string
		req      eavsearch.SearchRequest
		wantPage int
		wantSize int
	}{
		{name: "defaults", req: eavsearch.SearchRequest{}, wantPage: 1, wantSize: 20},
		{name: "kept", req: eavsearch.SearchRequest{PageNumber: 4, PageSize: 50}, wantPage: 4, wantSize: 50},
		{name: "capped", req: eavsearch.SearchRequest{PageNumber: 2, PageSize: 500}, wantPage: 2, wantSize: 100},
		{name: "negative", req: eavsearch.SearchRequest{PageNumber: -1, PageSize: -5}, wantPage: 1, wantSize: 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			applyPagination(&req, cfg)
			assert.Equal(t, tt.wantPage, req.PageNumber)
			assert.Equal(t, tt.wantSize, req.PageSize)
		})
	}
}

func TestStatusForError(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusForError(eavsearch.NewUnknownPropertyError("x")))
	assert.Equal(t, http.StatusBadRequest, statusForError(eavsearch.NewUnknownJoinFilterError("x")))
	assert.Equal(t, http.StatusBadRequest, statusForError(eavsearch.NewNestingTooDeepError("a.b.c")))
	assert.Equal(t, http.StatusBadRequest, statusForError(eavsearch.NewNoConditionsError()))
	assert.Equal(t, http.StatusNotFound, statusForError(eavsearch.NewSchemaNotFoundError("s3://b/k")))
	assert.Equal(t, http.StatusInternalServerError, statusForError(eavsearch.NewMissingPrimaryKeyError("t")))
	assert.Equal(t, http.StatusInternalServerError, statusForError(fmt.Errorf("plain")))
	assert.Equal(t, http.StatusBadRequest, statusForError(fmt.Errorf("wrapped: %w", eavsearch.NewInvalidLogicError("xor"))))
}
