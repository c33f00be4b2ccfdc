package dto

import (
	"time"

	"productservice/src/core/domain"
	"productservice/src/core/usecase"
)

// CreateProductRequest is the payload for POST /api/products.
type CreateProductRequest struct {
	Name        string   `json:"name" binding:"required,min=3,max=200"`
	Description string   `json:"description" binding:"required,min=10,max=2000"`
	Price       *float64 `json:"price" binding:"required,gte=0"`
	Category    string   `json:"category" binding:"required"`
	Stock       int      `json:"stock" binding:"gte=0"`
	ImageURL    string   `json:"imageUrl" binding:"omitempty,url"`
	SKU         string   `json:"sku" binding:"omitempty,max=100"`
}

// ToDraft converts the request into a draft attributed to createdBy.
func (r CreateProductRequest) ToDraft(createdBy string) domain.ProductDraft {
	d := domain.ProductDraft{
		Name:        r.Name,
		Description: r.Description,
		Category:    domain.Category(r.Category),
		Stock:       r.Stock,
		ImageURL:    r.ImageURL,
		SKU:         r.SKU,
		CreatedBy:   createdBy,
	}
	if r.Price != nil {
		d.Price = *r.Price
	}
	if c, err := domain.ParseCategory(r.Category); err == nil {
		d.Category = c
	}
	return d
}

// UpdateProductRequest is the payload for PUT /api/products/:id. Omitted
// fields are left unchanged.
type UpdateProductRequest struct {
	Name        *string  `json:"name" binding:"omitempty,min=3,max=200"`
	Description *string  `json:"description" binding:"omitempty,min=10,max=2000"`
	Price       *float64 `json:"price" binding:"omitempty,gte=0"`
	Category    *string  `json:"category"`
	Stock       *int     `json:"stock" binding:"omitempty,gte=0"`
	ImageURL    *string  `json:"imageUrl" binding:"omitempty,url"`
	SKU         *string  `json:"sku" binding:"omitempty,max=100"`
}

// ToPatch converts the request into a domain patch.
func (r UpdateProductRequest) ToPatch() domain.ProductPatch {
	p := domain.ProductPatch{
		Name:        r.Name,
		Description: r.Description,
		Price:       r.Price,
		Stock:       r.Stock,
		ImageURL:    r.ImageURL,
		SKU:         r.SKU,
	}
	if r.Category != nil {
		c := domain.Category(*r.Category)
		if parsed, err := domain.ParseCategory(*r.Category); err == nil {
			c = parsed
		}
		p.Category = &c
	}
	return p
}

// ListProductsQuery holds the query parameters of GET /api/products.
type ListProductsQuery struct {
	Page     int    `form:"page" binding:"omitempty,min=1"`
	Limit    int    `form:"limit" binding:"omitempty,min=1,max=100"`
	Category string `form:"category"`
	Search   string `form:"search" binding:"omitempty,max=200"`
}

// ToInput converts the query into use case input.
func (q ListProductsQuery) ToInput() usecase.ListProductsInput {
	return usecase.ListProductsInput{
		Page:     q.Page,
		Limit:    q.Limit,
		Category: q.Category,
		Search:   q.Search,
	}
}

// ProductResponse is the API representation of a product.
type ProductResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	Category    string    `json:"category"`
	Stock       int       `json:"stock"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	SKU         string    `json:"sku,omitempty"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	IsAvailable bool      `json:"isAvailable"`
	IsLowStock  bool      `json:"isLowStock"`
}

// ProductFromDomain maps a domain product to its response.
func ProductFromDomain(p domain.Product) ProductResponse {
	return ProductResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Category:    string(p.Category),
		Stock:       p.Stock,
		ImageURL:    p.ImageURL,
		SKU:         p.SKU,
		CreatedBy:   p.CreatedBy,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
		IsAvailable: p.IsAvailable(),
		IsLowStock:  p.IsLowStock(),
	}
}

// ProductsFromDomain maps a slice, never returning nil.
func ProductsFromDomain(ps []domain.Product) []ProductResponse {
	out := make([]ProductResponse, 0, len(ps))
	for _, p := range ps {
		out = append(out, ProductFromDomain(p))
	}
	return out
}

// ProductListResponse is one page of products.
type ProductListResponse struct {
	Products   []ProductResponse `json:"products"`
	Pagination domain.Pagination `json:"pagination"`
}

// ProductCollectionResponse is an unpaginated product listing.
type ProductCollectionResponse struct {
	Products []ProductResponse `json:"products"`
	Count    int               `json:"count"`
}
