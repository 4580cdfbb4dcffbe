package httputil

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePathString(t *testing.T) {
	router := mux.NewRouter()
	var got string
	var gotErr error
	router.HandleFunc("/organizations/{orgID}", func(w http.ResponseWriter, r *http.Request) {
		got, gotErr = ParsePathString(r, "orgID")
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/organizations/org-1", nil))
	require.NoError(t, gotErr)
	assert.Equal(t, "org-1", got)
}

func TestParsePathString_Missing(t *testing.T) {
	_, err := ParsePathString(httptest.NewRequest(http.MethodGet, "/", nil), "orgID")
	assert.Error(t, err)
}

func TestParseQueryString(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/login/start?returnTo=/boards", nil)

	assert.Equal(t, "/boards", ParseQueryString(req, "returnTo", "/"))
	assert.Equal(t, "/", ParseQueryString(req, "missing", "/"))
}
