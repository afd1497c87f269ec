package routes_test

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yashrajoria/docstore-service/repository"
	"github.com/yashrajoria/docstore-service/routes"
	"github.com/yashrajoria/docstore-service/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	testUser     = "admin"
	testPassword = "s3cret"
)

func setupRouter(t *testing.T) (*gin.Engine, *store.MemoryBackend) {
	t.Helper()
	backend := store.NewMemoryBackend()
	registry := store.NewRegistry(backend)
	provider := repository.NewProvider(registry, nil, 0)
	r := routes.NewRouter(provider, registry, routes.Options{
		ServiceName:    "docstore",
		AuthUser:       testUser,
		AuthSecret:     testPassword,
		AllowedOrigins: []string{"*"},
	})
	return r, backend
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(testUser, testPassword)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestProductLifecycle(t *testing.T) {
	r, backend := setupRouter(t)

	w := do(r, http.MethodPost, "/memory/product", `{"sku":"p1","description":"Widget","price":9.99}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"sku":"p1"}`, w.Body.String())

	w = do(r, http.MethodPatch, "/memory/product/p1", `{"price":12.50}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"sku":"p1"}`, w.Body.String())

	w = do(r, http.MethodGet, "/memory/product/p1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"sku":"p1","description":"Widget","price":12.50}`, w.Body.String())

	w = do(r, http.MethodDelete, "/memory/product/p1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"sku":"p1"}`, w.Body.String())

	w = do(r, http.MethodGet, "/memory/product/p1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"SKU p1 not found"}`, w.Body.String())

	assert.Zero(t, backend.OpenSessions())
}

func TestCartLifecycle(t *testing.T) {
	r, backend := setupRouter(t)

	w := do(r, http.MethodPost, "/memory/cart", `{"cartID":"c1","userID":"u1","items":[{"sku":"a","quantity":1},{"sku":"b","quantity":2}]}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"cartID":"c1"}`, w.Body.String())

	for _, body := range []string{
		`{"sku":"b","quantity":4}`,
		`{"sku":"a","quantity":0}`,
		`{"sku":"c","quantity":1}`,
	} {
		w = do(r, http.MethodPatch, "/memory/cart/c1", body)
		require.Equal(t, http.StatusOK, w.Code, body)
		assert.JSONEq(t, `{"cartID":"c1"}`, w.Body.String())
	}

	w = do(r, http.MethodGet, "/memory/cart/c1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"cartID":"c1","userID":"u1","items":[{"sku":"b","quantity":4},{"sku":"c","quantity":1}]}`, w.Body.String())

	w = do(r, http.MethodPatch, "/memory/cart/c1", `{"sku":"a"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"quantity is required"}`, w.Body.String())

	w = do(r, http.MethodPatch, "/memory/cart/c1", `{"quantity":1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"sku is required"}`, w.Body.String())

	w = do(r, http.MethodPatch, "/memory/cart/c1", `{"sku":"a","quantity":-1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"quantity must be >= 0"}`, w.Body.String())

	w = do(r, http.MethodPatch, "/memory/cart/c9", `{"sku":"a","quantity":1}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"Cart c9 not found"}`, w.Body.String())

	w = do(r, http.MethodDelete, "/memory/cart/c1", "")
	require.Equal(t, http.StatusOK, w.Code)
	w = do(r, http.MethodDelete, "/memory/cart/c1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	assert.Zero(t, backend.OpenSessions())
}

func TestCartCreateStoresBodyAsGiven(t *testing.T) {
	r, _ := setupRouter(t)

	w := do(r, http.MethodPost, "/memory/cart", `{"cartID":"c1","userID":42,"items":[]}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = do(r, http.MethodGet, "/memory/cart/c1", "")
	assert.JSONEq(t, `{"cartID":"c1","userID":42,"items":[]}`, w.Body.String())

	w = do(r, http.MethodPost, "/memory/cart", `{"cartID":"c2","userID":"u1"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(r, http.MethodPost, "/memory/cart", `{"cartID":"c3","items":[{"quantity":1}]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"items[0].sku is required"}`, w.Body.String())
}

func TestUserLifecycle(t *testing.T) {
	r, _ := setupRouter(t)

	w := do(r, http.MethodPost, "/memory/user", `{"userID":"u1","firstName":"Ada","city":"London"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"userID":"u1"}`, w.Body.String())

	w = do(r, http.MethodPatch, "/memory/user/u1", `{"city":"Paris","zip":"75001"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodGet, "/memory/user/u1", "")
	assert.JSONEq(t, `{"userID":"u1","firstName":"Ada","city":"Paris","zip":"75001"}`, w.Body.String())

	w = do(r, http.MethodPatch, "/memory/user/u1", `{}`)
	assert.Equal(t, http.StatusOK, w.Code, "empty update is vacuously acknowledged")

	w = do(r, http.MethodPatch, "/memory/user/u1", `{"userID":"u2"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUnknownDBType(t *testing.T) {
	r, _ := setupRouter(t)

	requests := []struct{ method, path, body string }{
		{http.MethodPost, "/oracle/cart", `{"cartID":"c1","items":[]}`},
		{http.MethodGet, "/oracle/cart/c1", ""},
		{http.MethodPatch, "/oracle/cart/c1", `{"sku":"a","quantity":1}`},
		{http.MethodDelete, "/oracle/cart/c1", ""},
		{http.MethodPost, "/oracle/product", `not json`},
		{http.MethodGet, "/oracle/product/p1", ""},
		{http.MethodPatch, "/oracle/product/p1", `{"price":1}`},
		{http.MethodDelete, "/oracle/product/p1", ""},
		{http.MethodPost, "/oracle/user", `{"userID":"u1"}`},
		{http.MethodGet, "/oracle/user/u1", ""},
		{http.MethodPatch, "/oracle/user/u1", `{"zip":"1"}`},
		{http.MethodDelete, "/oracle/user/u1", ""},
	}
	for _, req := range requests {
		w := do(r, req.method, req.path, req.body)
		assert.Equal(t, http.StatusBadRequest, w.Code, "%s %s", req.method, req.path)
		assert.JSONEq(t, `{"error":"Unknown DB Type"}`, w.Body.String(), "%s %s", req.method, req.path)
	}
}

func TestCreateValidation(t *testing.T) {
	r, _ := setupRouter(t)

	w := do(r, http.MethodPost, "/memory/product", `{"description":"no sku"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"missing identifier: sku is required"}`, w.Body.String())

	w = do(r, http.MethodPost, "/memory/product", `[1,2]`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"invalid JSON body"}`, w.Body.String())
}

func TestAuthRequired(t *testing.T) {
	r, backend := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/memory/product/p1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/oracle/product/p1", nil)
	req.SetBasicAuth(testUser, "nope")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "credentials are checked before the dbType")

	assert.Zero(t, backend.OpenSessions())
}

func TestStoreUnavailable(t *testing.T) {
	r, backend := setupRouter(t)
	backend.FailConnect(errors.New("connection refused"))

	w := do(r, http.MethodGet, "/memory/user/u1", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"error":"User u1 not read: memory backend unavailable"}`, w.Body.String())
}

func TestHealthz(t *testing.T) {
	r, backend := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","backends":{"memory":"ok"}}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	backend.FailConnect(errors.New("down"))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"degraded","backends":{"memory":"unavailable"}}`, w.Body.String())
}
