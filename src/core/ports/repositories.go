// Package ports defines interfaces (ports) that connect core domain to infrastructure.
// These interfaces follow the ports and adapters (hexagonal) architecture pattern.
//
// Ports are defined here in the core layer, while implementations (adapters)
// live in src/infra/repo. This ensures the core has no dependency on infrastructure.
package ports

import (
	"context"

	"productservice/src/core/domain"
)

// Repository is the base interface for all repositories.
// Concrete repositories should embed this and add entity-specific methods.
type Repository interface {
	// Health checks if the underlying storage is reachable.
	Health(ctx context.Context) error
}

// ProductRepository persists products.
//
// Lookups that find nothing return a domain not-found error. Storage
// outages surface as domain.ErrUnavailable.
type ProductRepository interface {
	Repository

	// FindAll lists products newest first.
	FindAll(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error)
	// Count returns how many products match the filter, ignoring limit and offset.
	Count(ctx context.Context, filter domain.ProductFilter) (int, error)
	FindByID(ctx context.Context, id string) (*domain.Product, error)
	FindBySKU(ctx context.Context, sku string) (*domain.Product, error)
	FindByCategory(ctx context.Context, category domain.Category, limit int) ([]domain.Product, error)
	// FindLowStock lists available products with stock at or below threshold.
	FindLowStock(ctx context.Context, threshold int) ([]domain.Product, error)
	Create(ctx context.Context, draft domain.ProductDraft) (*domain.Product, error)
	// Update applies patch atomically and returns the updated product.
	Update(ctx context.Context, id string, patch domain.ProductPatch) (*domain.Product, error)
	Delete(ctx context.Context, id string) error
}
