package controllers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	apperrors "github.com/yashrajoria/docstore-service/common/errors"
	"github.com/yashrajoria/docstore-service/controllers"
	"github.com/yashrajoria/docstore-service/models"
	"github.com/yashrajoria/docstore-service/repository"
	"github.com/yashrajoria/docstore-service/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// --- Mocks ---

type mockCartStore struct {
	createFn     func(ctx context.Context, doc models.Document) (string, error)
	getFn        func(ctx context.Context, id string) (json.RawMessage, error)
	updateFn     func(ctx context.Context, id string, fields map[string]any) error
	deleteFn     func(ctx context.Context, id string) error
	updateItemFn func(ctx context.Context, id string, item models.CartItem) (models.MergeOutcome, error)
}

func (m *mockCartStore) Create(ctx context.Context, doc models.Document) (string, error) {
	return m.createFn(ctx, doc)
}
func (m *mockCartStore) Get(ctx context.Context, id string) (json.RawMessage, error) {
	return m.getFn(ctx, id)
}
func (m *mockCartStore) Update(ctx context.Context, id string, fields map[string]any) error {
	return m.updateFn(ctx, id, fields)
}
func (m *mockCartStore) Delete(ctx context.Context, id string) error {
	return m.deleteFn(ctx, id)
}
func (m *mockCartStore) UpdateItem(ctx context.Context, id string, item models.CartItem) (models.MergeOutcome, error) {
	return m.updateItemFn(ctx, id, item)
}

type mockResolver struct {
	repo *mockCartStore
}

func (m *mockResolver) Carts(dbType string) (repository.CartStore, error) {
	if dbType != "redis" {
		return nil, store.ErrUnknownBackend
	}
	return m.repo, nil
}

func (m *mockResolver) Documents(_ models.Kind, dbType string) (repository.DocumentStore, error) {
	if dbType != "redis" {
		return nil, store.ErrUnknownBackend
	}
	return m.repo, nil
}

// --- Helpers ---

func setupRouter(repo *mockCartStore) *gin.Engine {
	r := gin.New()
	r.Use(apperrors.ErrorMiddleware())
	resolver := &mockResolver{repo: repo}

	cc := controllers.NewCartController(resolver)
	r.POST("/:dbType/cart", cc.Create)
	r.GET("/:dbType/cart/:cartID", cc.Get)
	r.PATCH("/:dbType/cart/:cartID", cc.UpdateItem)
	r.DELETE("/:dbType/cart/:cartID", cc.Delete)

	pc := controllers.NewDocumentController(resolver, models.KindProduct)
	r.POST("/:dbType/product", pc.Create)
	r.PATCH("/:dbType/product/:sku", pc.Update)
	return r
}

func send(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// --- Tests ---

func TestController_UpdateItem_Success(t *testing.T) {
	var got models.CartItem
	repo := &mockCartStore{
		updateItemFn: func(_ context.Context, id string, item models.CartItem) (models.MergeOutcome, error) {
			assert.Equal(t, "c1", id)
			got = item
			return models.ItemRemoved, nil
		},
	}
	w := send(setupRouter(repo), http.MethodPatch, "/redis/cart/c1", `{"sku":"a","quantity":0}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"cartID":"c1"}`, w.Body.String())
	assert.Equal(t, models.CartItem{SKU: "a", Quantity: 0}, got)
}

func TestController_UpdateItem_BadBody(t *testing.T) {
	repo := &mockCartStore{
		updateItemFn: func(context.Context, string, models.CartItem) (models.MergeOutcome, error) {
			t.Fatal("repository must not be called for an unreadable body")
			return "", nil
		},
	}
	r := setupRouter(repo)

	tests := []struct{ body, msg string }{
		{`{"sku":"a"}`, "quantity is required"},
		{`{"sku":"a","quantity":null}`, "quantity is required"},
		{`{"sku":"a","quantity":"2"}`, "invalid JSON body"},
		{`nope`, "invalid JSON body"},
	}
	for _, tt := range tests {
		w := send(r, http.MethodPatch, "/redis/cart/c1", tt.body)
		assert.Equal(t, http.StatusBadRequest, w.Code, tt.body)
		assert.JSONEq(t, `{"error":"`+tt.msg+`"}`, w.Body.String(), tt.body)
	}
}

func TestController_UpdateItem_RepositoryValidationMessage(t *testing.T) {
	var got models.CartItem
	repo := &mockCartStore{
		updateItemFn: func(_ context.Context, _ string, item models.CartItem) (models.MergeOutcome, error) {
			got = item
			return "", &repository.Error{Msg: "quantity must be >= 0", Err: repository.ErrValidation}
		},
	}
	w := send(setupRouter(repo), http.MethodPatch, "/redis/cart/c1", `{"sku":"a","quantity":-1}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"quantity must be >= 0"}`, w.Body.String())
	assert.Equal(t, models.CartItem{SKU: "a", Quantity: -1}, got)
}

func TestController_UpdateItem_Conflict(t *testing.T) {
	repo := &mockCartStore{
		updateItemFn: func(context.Context, string, models.CartItem) (models.MergeOutcome, error) {
			return "", &repository.Error{Msg: "Cart c1 was modified concurrently", Err: store.ErrConflict}
		},
	}
	w := send(setupRouter(repo), http.MethodPatch, "/redis/cart/c1", `{"sku":"a","quantity":1}`)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"error":"Cart c1 was modified concurrently"}`, w.Body.String())
}

func TestController_Get_ReturnsStoredDocument(t *testing.T) {
	repo := &mockCartStore{
		getFn: func(_ context.Context, id string) (json.RawMessage, error) {
			return json.RawMessage(`{"cartID":"c1","items":[]}`), nil
		},
	}
	w := send(setupRouter(repo), http.MethodGet, "/redis/cart/c1", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"cartID":"c1","items":[]}`, w.Body.String())
}

func TestController_Create_WriteIncomplete(t *testing.T) {
	repo := &mockCartStore{
		createFn: func(context.Context, models.Document) (string, error) {
			return "", &repository.Error{Msg: "SKU p1 not added", Err: store.ErrWriteIncomplete}
		},
	}
	w := send(setupRouter(repo), http.MethodPost, "/redis/product", `{"sku":"p1"}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"SKU p1 not added"}`, w.Body.String())
}

func TestController_Update_NullBodyIsEmptyMap(t *testing.T) {
	var got map[string]any
	repo := &mockCartStore{
		updateFn: func(_ context.Context, _ string, fields map[string]any) error {
			got = fields
			return nil
		},
	}
	w := send(setupRouter(repo), http.MethodPatch, "/redis/product/p1", `null`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestController_Delete_NotFound(t *testing.T) {
	repo := &mockCartStore{
		deleteFn: func(context.Context, string) error {
			return &repository.Error{Msg: "Cart c1 not found", Err: store.ErrNotFound}
		},
	}
	w := send(setupRouter(repo), http.MethodDelete, "/redis/cart/c1", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"Cart c1 not found"}`, w.Body.String())
}

func TestController_UnknownBackendSkipsBody(t *testing.T) {
	repo := &mockCartStore{}
	w := send(setupRouter(repo), http.MethodPost, "/mysql/cart", `garbage`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"Unknown DB Type"}`, w.Body.String())
}
