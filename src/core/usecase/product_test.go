package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"productservice/src/core/domain"
)

const testID = "6f1c1d2e-9a4b-4c51-8d7e-2b3a4c5d6e7f"

// stubRepo implements ports.ProductRepository with overridable functions.
type stubRepo struct {
	mu sync.Mutex

	FindAllFunc        func(ctx context.Context, f domain.ProductFilter) ([]domain.Product, error)
	CountFunc          func(ctx context.Context, f domain.ProductFilter) (int, error)
	FindByIDFunc       func(ctx context.Context, id string) (*domain.Product, error)
	FindBySKUFunc      func(ctx context.Context, sku string) (*domain.Product, error)
	FindByCategoryFunc func(ctx context.Context, c domain.Category, limit int) ([]domain.Product, error)
	FindLowStockFunc   func(ctx context.Context, threshold int) ([]domain.Product, error)
	CreateFunc         func(ctx context.Context, d domain.ProductDraft) (*domain.Product, error)
	UpdateFunc         func(ctx context.Context, id string, p domain.ProductPatch) (*domain.Product, error)
	DeleteFunc         func(ctx context.Context, id string) error

	filters []domain.ProductFilter
}

func (r *stubRepo) Health(context.Context) error { return nil }

func (r *stubRepo) FindAll(ctx context.Context, f domain.ProductFilter) ([]domain.Product, error) {
	r.mu.Lock()
	r.filters = append(r.filters, f)
	r.mu.Unlock()
	if r.FindAllFunc != nil {
		return r.FindAllFunc(ctx, f)
	}
	return []domain.Product{}, nil
}

func (r *stubRepo) Count(ctx context.Context, f domain.ProductFilter) (int, error) {
	if r.CountFunc != nil {
		return r.CountFunc(ctx, f)
	}
	return 0, nil
}

func (r *stubRepo) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	if r.FindByIDFunc != nil {
		return r.FindByIDFunc(ctx, id)
	}
	return nil, domain.NewNotFoundError("product")
}

func (r *stubRepo) FindBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	if r.FindBySKUFunc != nil {
		return r.FindBySKUFunc(ctx, sku)
	}
	return nil, domain.NewNotFoundError("product")
}

func (r *stubRepo) FindByCategory(ctx context.Context, c domain.Category, limit int) ([]domain.Product, error) {
	if r.FindByCategoryFunc != nil {
		return r.FindByCategoryFunc(ctx, c, limit)
	}
	return nil, nil
}

func (r *stubRepo) FindLowStock(ctx context.Context, threshold int) ([]domain.Product, error) {
	if r.FindLowStockFunc != nil {
		return r.FindLowStockFunc(ctx, threshold)
	}
	return nil, nil
}

func (r *stubRepo) Create(ctx context.Context, d domain.ProductDraft) (*domain.Product, error) {
	if r.CreateFunc != nil {
		return r.CreateFunc(ctx, d)
	}
	return &domain.Product{ID: testID, Name: d.Name, SKU: d.SKU, CreatedBy: d.CreatedBy}, nil
}

func (r *stubRepo) Update(ctx context.Context, id string, p domain.ProductPatch) (*domain.Product, error) {
	if r.UpdateFunc != nil {
		return r.UpdateFunc(ctx, id, p)
	}
	return &domain.Product{ID: id}, nil
}

func (r *stubRepo) Delete(ctx context.Context, id string) error {
	if r.DeleteFunc != nil {
		return r.DeleteFunc(ctx, id)
	}
	return nil
}

func newTestService(repo *stubRepo) *ProductService {
	return NewProductService(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func draft() domain.ProductDraft {
	return domain.ProductDraft{
		Name:        " Trail Running Shoes ",
		Description: "Lightweight shoes for rough terrain",
		Price:       89.5,
		Category:    domain.CategorySports,
		Stock:       4,
		SKU:         "TRS-42",
		CreatedBy:   "user-7",
	}
}

func TestProductService_ListDefaultsAndPagination(t *testing.T) {
	repo := &stubRepo{
		FindAllFunc: func(context.Context, domain.ProductFilter) ([]domain.Product, error) {
			return []domain.Product{{ID: "a"}, {ID: "b"}}, nil
		},
		CountFunc: func(context.Context, domain.ProductFilter) (int, error) { return 42, nil },
	}
	svc := newTestService(repo)

	list, err := svc.List(context.Background(), ListProductsInput{Page: 3, Category: "Books", Search: "  go  "})
	require.NoError(t, err)
	assert.Len(t, list.Products, 2)
	assert.Equal(t, domain.Pagination{Page: 3, Limit: 10, Total: 42, TotalPages: 5}, list.Pagination)

	require.Len(t, repo.filters, 1)
	assert.Equal(t, domain.ProductFilter{Category: domain.CategoryBooks, Search: "go", Limit: 10, Offset: 20}, repo.filters[0])
}

func TestProductService_ListClampsLimit(t *testing.T) {
	repo := &stubRepo{}
	_, err := newTestService(repo).List(context.Background(), ListProductsInput{Page: -1, Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, domain.MaxPageLimit, repo.filters[0].Limit)
	assert.Equal(t, 0, repo.filters[0].Offset)
}

func TestProductService_ListRejectsUnknownCategory(t *testing.T) {
	repo := &stubRepo{}
	_, err := newTestService(repo).List(context.Background(), ListProductsInput{Category: "spaceships"})
	assert.True(t, domain.IsValidationError(err))
	assert.Empty(t, repo.filters, "repository is not queried")
}

func TestProductService_ListPropagatesUnavailable(t *testing.T) {
	repo := &stubRepo{
		CountFunc: func(context.Context, domain.ProductFilter) (int, error) {
			return 0, domain.NewUnavailableError("database unavailable")
		},
	}
	_, err := newTestService(repo).List(context.Background(), ListProductsInput{})
	assert.True(t, domain.IsUnavailable(err))
}

func TestProductService_GetValidatesID(t *testing.T) {
	svc := newTestService(&stubRepo{})
	_, err := svc.Get(context.Background(), "not-a-uuid")
	assert.True(t, domain.IsValidationError(err))

	_, err = svc.Get(context.Background(), testID)
	assert.True(t, domain.IsNotFound(err))
}

func TestProductService_CreateNormalizesAndValidates(t *testing.T) {
	var stored domain.ProductDraft
	repo := &stubRepo{
		CreateFunc: func(_ context.Context, d domain.ProductDraft) (*domain.Product, error) {
			stored = d
			return &domain.Product{ID: testID, Name: d.Name}, nil
		},
	}

	p, err := newTestService(repo).Create(context.Background(), draft())
	require.NoError(t, err)
	assert.Equal(t, testID, p.ID)
	assert.Equal(t, "Trail Running Shoes", stored.Name)

	bad := draft()
	bad.Price = -1
	_, err = newTestService(repo).Create(context.Background(), bad)
	assert.True(t, domain.IsValidationError(err))
}

func TestProductService_CreateDuplicateSKU(t *testing.T) {
	repo := &stubRepo{
		FindBySKUFunc: func(context.Context, string) (*domain.Product, error) {
			return &domain.Product{ID: "other"}, nil
		},
		CreateFunc: func(context.Context, domain.ProductDraft) (*domain.Product, error) {
			t.Fatal("create must not run for a taken SKU")
			return nil, nil
		},
	}
	_, err := newTestService(repo).Create(context.Background(), draft())
	assert.True(t, domain.IsConflict(err))
}

func TestProductService_CreateSKULookupFailure(t *testing.T) {
	boom := domain.NewUnavailableError("database unavailable")
	repo := &stubRepo{
		FindBySKUFunc: func(context.Context, string) (*domain.Product, error) { return nil, boom },
	}
	_, err := newTestService(repo).Create(context.Background(), draft())
	assert.True(t, errors.Is(err, domain.ErrUnavailable))
}

func TestProductService_UpdateOwnSKUIsAllowed(t *testing.T) {
	sku := "TRS-42"
	repo := &stubRepo{
		FindBySKUFunc: func(context.Context, string) (*domain.Product, error) {
			return &domain.Product{ID: testID, SKU: sku}, nil
		},
	}
	p, err := newTestService(repo).Update(context.Background(), testID, domain.ProductPatch{SKU: &sku})
	require.NoError(t, err)
	assert.Equal(t, testID, p.ID)
}

func TestProductService_UpdateRejectsEmptyPatch(t *testing.T) {
	_, err := newTestService(&stubRepo{}).Update(context.Background(), testID, domain.ProductPatch{})
	assert.True(t, domain.IsValidationError(err))
}

func TestProductService_Delete(t *testing.T) {
	var deleted string
	repo := &stubRepo{DeleteFunc: func(_ context.Context, id string) error { deleted = id; return nil }}
	require.NoError(t, newTestService(repo).Delete(context.Background(), testID))
	assert.Equal(t, testID, deleted)
}

func TestProductService_LowStockUsesThreshold(t *testing.T) {
	var got int
	repo := &stubRepo{FindLowStockFunc: func(_ context.Context, threshold int) ([]domain.Product, error) {
		got = threshold
		return nil, nil
	}}
	_, err := newTestService(repo).LowStock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.LowStockThreshold, got)
}

func TestProductService_ByCategory(t *testing.T) {
	var gotCat domain.Category
	var gotLimit int
	repo := &stubRepo{FindByCategoryFunc: func(_ context.Context, c domain.Category, limit int) ([]domain.Product, error) {
		gotCat, gotLimit = c, limit
		return nil, nil
	}}
	_, err := newTestService(repo).ByCategory(context.Background(), "TOYS", 0)
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryToys, gotCat)
	assert.Equal(t, domain.DefaultCategoryLimit, gotLimit)
}
