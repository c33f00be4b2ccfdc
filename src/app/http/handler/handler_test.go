package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"productservice/src/app/middleware"
	"productservice/src/core/domain"
	"productservice/src/core/usecase"
	"productservice/src/infra/db"
)

const productID = "0b7c9a5e-3f1d-4a8e-9c2b-6d5e4f3a2b1c"

func init() {
	gin.SetMode(gin.TestMode)
}

// memRepo is a minimal in-memory ports.ProductRepository.
type memRepo struct {
	products map[string]domain.Product
	err      error
	created  []domain.ProductDraft
}

func newMemRepo() *memRepo {
	return &memRepo{products: map[string]domain.Product{}}
}

func (r *memRepo) Health(context.Context) error { return r.err }

func (r *memRepo) FindAll(_ context.Context, f domain.ProductFilter) ([]domain.Product, error) {
	if r.err != nil {
		return nil, r.err
	}
	out := []domain.Product{}
	for _, p := range r.products {
		if f.Category == "" || p.Category == f.Category {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memRepo) Count(ctx context.Context, f domain.ProductFilter) (int, error) {
	ps, err := r.FindAll(ctx, f)
	return len(ps), err
}

func (r *memRepo) FindByID(_ context.Context, id string) (*domain.Product, error) {
	if r.err != nil {
		return nil, r.err
	}
	p, ok := r.products[id]
	if !ok {
		return nil, domain.NewNotFoundError("product")
	}
	return &p, nil
}

func (r *memRepo) FindBySKU(_ context.Context, sku string) (*domain.Product, error) {
	if r.err != nil {
		return nil, r.err
	}
	for _, p := range r.products {
		if p.SKU == sku {
			return &p, nil
		}
	}
	return nil, domain.NewNotFoundError("product")
}

func (r *memRepo) FindByCategory(ctx context.Context, c domain.Category, _ int) ([]domain.Product, error) {
	return r.FindAll(ctx, domain.ProductFilter{Category: c})
}

func (r *memRepo) FindLowStock(context.Context, int) ([]domain.Product, error) {
	var out []domain.Product
	for _, p := range r.products {
		if p.IsLowStock() {
			out = append(out, p)
		}
	}
	return out, r.err
}

func (r *memRepo) Create(_ context.Context, d domain.ProductDraft) (*domain.Product, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.created = append(r.created, d)
	p := domain.Product{
		ID: productID, Name: d.Name, Description: d.Description, Price: d.Price,
		Category: d.Category, Stock: d.Stock, SKU: d.SKU, CreatedBy: d.CreatedBy,
	}
	r.products[p.ID] = p
	return &p, nil
}

func (r *memRepo) Update(_ context.Context, id string, patch domain.ProductPatch) (*domain.Product, error) {
	p, ok := r.products[id]
	if !ok {
		return nil, domain.NewNotFoundError("product")
	}
	if patch.Stock != nil {
		p.Stock = *patch.Stock
	}
	r.products[id] = p
	return &p, nil
}

func (r *memRepo) Delete(_ context.Context, id string) error {
	if _, ok := r.products[id]; !ok {
		return domain.NewNotFoundError("product")
	}
	delete(r.products, id)
	return nil
}

type fakeDB struct{ report db.HealthReport }

func (f fakeDB) Check(context.Context) db.HealthReport { return f.report }

func newRouter(repo *memRepo, database DatabaseChecker) *gin.Engine {
	UseJSONFieldNames()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	products := NewProductHandler(usecase.NewProductService(repo, log))
	health := NewHealthHandler(usecase.NewHealthService(log, namedRepo{repo}), database, "product-service", 3002)

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.UserInfo())
	r.GET("/health", health.Health)
	r.GET("/health/detailed", health.DetailedHealth)
	r.GET("/health/db", health.Database)
	api := r.Group("/api/products")
	api.GET("", products.List)
	api.GET("/low-stock", products.LowStock)
	api.GET("/category/:category", products.ByCategory)
	api.GET("/:id", products.Get)
	api.POST("", products.Create)
	api.PUT("/:id", products.Update)
	api.DELETE("/:id", products.Delete)
	return r
}

type namedRepo struct{ *memRepo }

func (namedRepo) Name() string { return "postgres" }

func do(r http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestCreateProduct(t *testing.T) {
	repo := newMemRepo()
	r := newRouter(repo, fakeDB{})

	w := do(r, http.MethodPost, "/api/products", `{
		"name": "Espresso Machine",
		"description": "15 bar pump espresso machine",
		"price": 249.0,
		"category": "Home",
		"stock": 2,
		"sku": "ESP-15"
	}`, "X-User-Id", "user-9")

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	data := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, productID, data["id"])
	assert.Equal(t, "home", data["category"])
	assert.Equal(t, true, data["isLowStock"])
	assert.Equal(t, "user-9", data["createdBy"])
	require.Len(t, repo.created, 1)
	assert.Equal(t, "user-9", repo.created[0].CreatedBy)
}

func TestCreateProduct_BindingErrorNamesJSONField(t *testing.T) {
	r := newRouter(newMemRepo(), fakeDB{})

	w := do(r, http.MethodPost, "/api/products", `{
		"name": "Espresso Machine",
		"description": "15 bar pump espresso machine",
		"price": 10,
		"category": "home",
		"imageUrl": "not a url"
	}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	detail := decode(t, w)["error"].(map[string]any)
	assert.Equal(t, "VALIDATION_ERROR", detail["code"])
	assert.Equal(t, "imageUrl", detail["field"])

	w = do(r, http.MethodPost, "/api/products", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateProduct_UnknownCategory(t *testing.T) {
	r := newRouter(newMemRepo(), fakeDB{})
	w := do(r, http.MethodPost, "/api/products", `{
		"name": "Espresso Machine",
		"description": "15 bar pump espresso machine",
		"price": 10,
		"category": "kitchen"
	}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "category", decode(t, w)["error"].(map[string]any)["field"])
}

func TestGetProduct(t *testing.T) {
	repo := newMemRepo()
	repo.products[productID] = domain.Product{ID: productID, Name: "Kettle", Stock: 0}
	r := newRouter(repo, fakeDB{})

	w := do(r, http.MethodGet, "/api/products/"+productID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["data"].(map[string]any)["isAvailable"])

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/products/0b7c9a5e-3f1d-4a8e-9c2b-000000000000", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/products/42", "").Code)
}

func TestListProducts(t *testing.T) {
	repo := newMemRepo()
	repo.products[productID] = domain.Product{ID: productID, Category: domain.CategoryHome}
	r := newRouter(repo, fakeDB{})

	w := do(r, http.MethodGet, "/api/products?page=1&limit=5&category=home", "")
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]any)
	assert.Len(t, data["products"], 1)
	assert.Equal(t, map[string]any{"page": 1.0, "limit": 5.0, "total": 1.0, "totalPages": 1.0}, data["pagination"])

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/products?limit=500", "").Code)
}

func TestDatabaseUnavailableIs503(t *testing.T) {
	repo := newMemRepo()
	repo.err = domain.NewUnavailableError("database unavailable")
	r := newRouter(repo, fakeDB{})

	w := do(r, http.MethodGet, "/api/products", "")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "SERVICE_UNAVAILABLE", decode(t, w)["error"].(map[string]any)["code"])
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestUpdateAndDeleteProduct(t *testing.T) {
	repo := newMemRepo()
	repo.products[productID] = domain.Product{ID: productID, Stock: 10}
	r := newRouter(repo, fakeDB{})

	w := do(r, http.MethodPut, "/api/products/"+productID, `{"stock": 3}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 3.0, decode(t, w)["data"].(map[string]any)["stock"])

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPut, "/api/products/"+productID, `{}`).Code)
	assert.Equal(t, http.StatusNoContent, do(r, http.MethodDelete, "/api/products/"+productID, "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodDelete, "/api/products/"+productID, "").Code)
}

func TestLowStockAndCategory(t *testing.T) {
	repo := newMemRepo()
	repo.products[productID] = domain.Product{ID: productID, Category: domain.CategoryToys, Stock: 2}
	r := newRouter(repo, fakeDB{})

	w := do(r, http.MethodGet, "/api/products/low-stock", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, decode(t, w)["data"].(map[string]any)["count"])

	w = do(r, http.MethodGet, "/api/products/category/toys", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, decode(t, w)["data"].(map[string]any)["count"])

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/products/category/spaceships", "").Code)
}

func TestHealthEndpoints(t *testing.T) {
	repo := newMemRepo()
	healthy := db.HealthReport{Status: db.StatusHealthy, LatencyMS: 3, Timestamp: time.Now()}
	r := newRouter(repo, fakeDB{report: healthy})

	w := do(r, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "product-service", body["service"])
	assert.Equal(t, 3002.0, body["port"])

	w = do(r, http.MethodGet, "/health/db", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode(t, w)["status"])

	unhealthy := db.HealthReport{Status: db.StatusUnhealthy, Error: "connection refused", ErrorKind: "connectivity"}
	r = newRouter(repo, fakeDB{report: unhealthy})
	w = do(r, http.MethodGet, "/health/db", "")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "connectivity", decode(t, w)["error_kind"])

	repo.err = errors.New("down")
	w = do(r, http.MethodGet, "/health/detailed", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "degraded", decode(t, w)["status"])
}
