package usecase

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"productservice/src/core/domain"
	"productservice/src/core/ports"
)

// ProductService handles the product catalog flows.
type ProductService struct {
	repo ports.ProductRepository
	log  *slog.Logger
}

// NewProductService creates a new ProductService.
func NewProductService(repo ports.ProductRepository, log *slog.Logger) *ProductService {
	return &ProductService{repo: repo, log: log}
}

// ListProductsInput are the listing query parameters. Zero values select
// the defaults.
type ListProductsInput struct {
	Page     int
	Limit    int
	Category string
	Search   string
}

// ProductList is one page of products.
type ProductList struct {
	Products   []domain.Product
	Pagination domain.Pagination
}

// List returns one page of products, newest first.
func (s *ProductService) List(ctx context.Context, in ListProductsInput) (*ProductList, error) {
	page := in.Page
	if page < 1 {
		page = 1
	}
	limit := in.Limit
	switch {
	case limit <= 0:
		limit = domain.DefaultPageLimit
	case limit > domain.MaxPageLimit:
		limit = domain.MaxPageLimit
	}

	filter := domain.ProductFilter{
		Search: strings.TrimSpace(in.Search),
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
	if in.Category != "" {
		c, err := domain.ParseCategory(in.Category)
		if err != nil {
			return nil, err
		}
		filter.Category = c
	}

	var (
		products []domain.Product
		total    int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		products, err = s.repo.FindAll(gctx, filter)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.repo.Count(gctx, filter)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &ProductList{
		Products:   products,
		Pagination: domain.NewPagination(page, limit, total),
	}, nil
}

// Get returns one product.
func (s *ProductService) Get(ctx context.Context, id string) (*domain.Product, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	return s.repo.FindByID(ctx, id)
}

// ByCategory lists up to limit products of one category.
func (s *ProductService) ByCategory(ctx context.Context, category string, limit int) ([]domain.Product, error) {
	c, err := domain.ParseCategory(category)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > domain.MaxPageLimit {
		limit = domain.DefaultCategoryLimit
	}
	return s.repo.FindByCategory(ctx, c, limit)
}

// LowStock lists products that are still available but running out.
func (s *ProductService) LowStock(ctx context.Context) ([]domain.Product, error) {
	return s.repo.FindLowStock(ctx, domain.LowStockThreshold)
}

// Create validates draft, enforces SKU uniqueness and stores the product.
func (s *ProductService) Create(ctx context.Context, draft domain.ProductDraft) (*domain.Product, error) {
	draft.Normalize()
	if err := draft.Validate(); err != nil {
		return nil, err
	}
	if err := s.ensureSKUFree(ctx, draft.SKU, ""); err != nil {
		return nil, err
	}

	p, err := s.repo.Create(ctx, draft)
	if err != nil {
		return nil, err
	}
	s.log.Info("product created", "product_id", p.ID, "sku", p.SKU, "created_by", p.CreatedBy)
	return p, nil
}

// Update applies a partial update.
func (s *ProductService) Update(ctx context.Context, id string, patch domain.ProductPatch) (*domain.Product, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	if patch.SKU != nil {
		if err := s.ensureSKUFree(ctx, strings.TrimSpace(*patch.SKU), id); err != nil {
			return nil, err
		}
	}

	p, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	s.log.Info("product updated", "product_id", p.ID)
	return p, nil
}

// Delete removes a product.
func (s *ProductService) Delete(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info("product deleted", "product_id", id)
	return nil
}

// ensureSKUFree fails with a conflict when sku belongs to a product other
// than exceptID. The unique index still decides races.
func (s *ProductService) ensureSKUFree(ctx context.Context, sku, exceptID string) error {
	if sku == "" {
		return nil
	}
	existing, err := s.repo.FindBySKU(ctx, sku)
	switch {
	case domain.IsNotFound(err):
		return nil
	case err != nil:
		return err
	case existing.ID != exceptID:
		return domain.NewConflictError("product with this SKU already exists")
	}
	return nil
}

func validateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return domain.NewValidationError("id", "must be a valid UUID")
	}
	return nil
}
