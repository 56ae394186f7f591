package httputil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSON(t *testing.T) {
	t.Run("valid body", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(`{"name":"Acme"}`))
		var dest struct {
			Name string `json:"name"`
		}
		require.NoError(t, ParseJSON(req, &dest))
		assert.Equal(t, "Acme", dest.Name)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(`{`))
		var dest map[string]string
		err := ParseJSON(req, &dest)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid JSON")
	})
}

func TestParsePathInt64(t *testing.T) {
	router := mux.NewRouter()
	var got int64
	var gotErr error
	router.HandleFunc("/organizations/{orgId}", func(w http.ResponseWriter, r *http.Request) {
		got, gotErr = ParsePathInt64(r, "orgId")
	})

	t.Run("valid id", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/organizations/42", nil)
		router.ServeHTTP(httptest.NewRecorder(), req)
		require.NoError(t, gotErr)
		assert.Equal(t, int64(42), got)
	})

	t.Run("non-numeric id", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/organizations/abc", nil)
		router.ServeHTTP(httptest.NewRecorder(), req)
		require.Error(t, gotErr)
	})
}

func TestParseQueryString(t *testing.T) {
	req := httptest.NewRequest("GET", "/invitations/lookup?token=abc", nil)
	assert.Equal(t, "abc", ParseQueryString(req, "token", ""))
	assert.Equal(t, "fallback", ParseQueryString(req, "missing", "fallback"))
}

func TestRequireNonEmpty(t *testing.T) {
	rec := httptest.NewRecorder()
	assert.True(t, RequireNonEmpty(rec, "value", "name"))

	rec = httptest.NewRecorder()
	assert.False(t, RequireNonEmpty(rec, "", "name"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
