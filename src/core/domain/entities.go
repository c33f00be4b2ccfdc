package domain

import (
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

// Category is the closed set of product categories.
type Category string

const (
	CategoryElectronics Category = "electronics"
	CategoryClothing    Category = "clothing"
	CategoryBooks       Category = "books"
	CategoryHome        Category = "home"
	CategorySports      Category = "sports"
	CategoryBeauty      Category = "beauty"
	CategoryToys        Category = "toys"
	CategoryAutomotive  Category = "automotive"
	CategoryHealth      Category = "health"
	CategoryFood        Category = "food"
)

var categories = []Category{
	CategoryElectronics,
	CategoryClothing,
	CategoryBooks,
	CategoryHome,
	CategorySports,
	CategoryBeauty,
	CategoryToys,
	CategoryAutomotive,
	CategoryHealth,
	CategoryFood,
}

// Categories returns every valid category.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, known := range categories {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCategory normalizes s and checks it against the closed set.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", NewValidationError("category", "must be one of: "+joinCategories())
	}
	return c, nil
}

func joinCategories() string {
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}

// Product is a catalog item.
type Product struct {
	ID          string
	Name        string
	Description string
	Price       float64
	Category    Category
	Stock       int
	ImageURL    string
	SKU         string
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsAvailable reports whether the product can be ordered.
func (p Product) IsAvailable() bool {
	return p.Stock > 0
}

// IsOutOfStock reports whether the stock is exhausted.
func (p Product) IsOutOfStock() bool {
	return p.Stock <= 0
}

// IsLowStock reports whether the product is still available but at or below
// LowStockThreshold.
func (p Product) IsLowStock() bool {
	return p.Stock > 0 && p.Stock <= LowStockThreshold
}

// CanReduceStock reports whether qty units can be taken from stock.
func (p Product) CanReduceStock(qty int) bool {
	return qty > 0 && p.Stock >= qty
}

// ReduceStock takes qty units out of stock.
func (p *Product) ReduceStock(qty int) error {
	if qty <= 0 {
		return NewValidationError("stock", "quantity must be greater than 0")
	}
	if !p.CanReduceStock(qty) {
		return NewValidationError("stock", "insufficient stock")
	}
	p.Stock -= qty
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// IncreaseStock adds qty units to stock.
func (p *Product) IncreaseStock(qty int) error {
	if qty <= 0 {
		return NewValidationError("stock", "quantity must be greater than 0")
	}
	p.Stock += qty
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// UpdatePrice replaces the price. Negative prices are rejected.
func (p *Product) UpdatePrice(price float64) error {
	if price < 0 {
		return NewValidationError("price", "must not be negative")
	}
	p.Price = price
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// ProductDraft holds the fields of a product to be created.
type ProductDraft struct {
	Name        string
	Description string
	Price       float64
	Category    Category
	Stock       int
	ImageURL    string
	SKU         string
	CreatedBy   string
}

// Normalize trims text fields in place.
func (d *ProductDraft) Normalize() {
	d.Name = strings.TrimSpace(d.Name)
	d.Description = strings.TrimSpace(d.Description)
	d.ImageURL = strings.TrimSpace(d.ImageURL)
	d.SKU = strings.TrimSpace(d.SKU)
	d.CreatedBy = strings.TrimSpace(d.CreatedBy)
}

// Validate checks the draft against the catalog rules and returns the first
// violation.
func (d ProductDraft) Validate() error {
	if err := validateName(d.Name); err != nil {
		return err
	}
	if err := validateDescription(d.Description); err != nil {
		return err
	}
	if d.Price < 0 {
		return NewValidationError("price", "must not be negative")
	}
	if !d.Category.Valid() {
		return NewValidationError("category", "must be one of: "+joinCategories())
	}
	if d.Stock < 0 {
		return NewValidationError("stock", "must not be negative")
	}
	if err := validateImageURL(d.ImageURL); err != nil {
		return err
	}
	if err := validateSKU(d.SKU); err != nil {
		return err
	}
	if d.CreatedBy == "" {
		return NewValidationError("createdBy", "is required")
	}
	return nil
}

// ProductField names a column that a partial update may change.
type ProductField string

const (
	FieldName        ProductField = "name"
	FieldDescription ProductField = "description"
	FieldPrice       ProductField = "price"
	FieldCategory    ProductField = "category"
	FieldStock       ProductField = "stock"
	FieldImageURL    ProductField = "imageUrl"
	FieldSKU         ProductField = "sku"
)

// productColumns is the closed mapping from updatable fields to columns.
var productColumns = map[ProductField]string{
	FieldName:        "name",
	FieldDescription: "description",
	FieldPrice:       "price",
	FieldCategory:    "category",
	FieldStock:       "stock",
	FieldImageURL:    "image_url",
	FieldSKU:         "sku",
}

// Column returns the column backing f. Unknown fields report false.
func (f ProductField) Column() (string, bool) {
	col, ok := productColumns[f]
	return col, ok
}

// UpdatableFields lists the fields a patch may set, in column order.
func UpdatableFields() []ProductField {
	return []ProductField{FieldName, FieldDescription, FieldPrice, FieldCategory, FieldStock, FieldImageURL, FieldSKU}
}

// ProductPatch is a partial update. Nil fields are left unchanged.
type ProductPatch struct {
	Name        *string
	Description *string
	Price       *float64
	Category    *Category
	Stock       *int
	ImageURL    *string
	SKU         *string
}

// Values returns the set fields and their new values.
func (p ProductPatch) Values() map[ProductField]any {
	out := make(map[ProductField]any)
	if p.Name != nil {
		out[FieldName] = strings.TrimSpace(*p.Name)
	}
	if p.Description != nil {
		out[FieldDescription] = strings.TrimSpace(*p.Description)
	}
	if p.Price != nil {
		out[FieldPrice] = *p.Price
	}
	if p.Category != nil {
		out[FieldCategory] = string(*p.Category)
	}
	if p.Stock != nil {
		out[FieldStock] = *p.Stock
	}
	if p.ImageURL != nil {
		out[FieldImageURL] = strings.TrimSpace(*p.ImageURL)
	}
	if p.SKU != nil {
		out[FieldSKU] = strings.TrimSpace(*p.SKU)
	}
	return out
}

// Empty reports whether the patch changes nothing.
func (p ProductPatch) Empty() bool {
	return len(p.Values()) == 0
}

// Validate applies the creation rules to every set field.
func (p ProductPatch) Validate() error {
	if p.Empty() {
		return NewValidationError("body", "at least one field must be provided")
	}
	if p.Name != nil {
		if err := validateName(strings.TrimSpace(*p.Name)); err != nil {
			return err
		}
	}
	if p.Description != nil {
		if err := validateDescription(strings.TrimSpace(*p.Description)); err != nil {
			return err
		}
	}
	if p.Price != nil && *p.Price < 0 {
		return NewValidationError("price", "must not be negative")
	}
	if p.Category != nil && !p.Category.Valid() {
		return NewValidationError("category", "must be one of: "+joinCategories())
	}
	if p.Stock != nil && *p.Stock < 0 {
		return NewValidationError("stock", "must not be negative")
	}
	if p.ImageURL != nil {
		if err := validateImageURL(strings.TrimSpace(*p.ImageURL)); err != nil {
			return err
		}
	}
	if p.SKU != nil {
		if err := validateSKU(strings.TrimSpace(*p.SKU)); err != nil {
			return err
		}
	}
	return nil
}

// ProductFilter narrows a product listing.
type ProductFilter struct {
	Category Category
	// Search matches name or description, case-insensitively.
	Search string
	Limit  int
	Offset int
}

// Pagination describes one page of a listing.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// NewPagination computes page counts for total items.
func NewPagination(page, limit, total int) Pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Pagination{Page: page, Limit: limit, Total: total, TotalPages: pages}
}

func validateName(name string) error {
	n := utf8.RuneCountInString(name)
	if n < NameMinLen || n > NameMaxLen {
		return NewValidationError("name", "must be between 3 and 200 characters")
	}
	return nil
}

func validateDescription(desc string) error {
	n := utf8.RuneCountInString(desc)
	if n < DescriptionMinLen || n > DescriptionMaxLen {
		return NewValidationError("description", "must be between 10 and 2000 characters")
	}
	return nil
}

func validateImageURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return NewValidationError("imageUrl", "must be a valid absolute URL")
	}
	return nil
}

func validateSKU(sku string) error {
	if utf8.RuneCountInString(sku) > SKUMaxLen {
		return NewValidationError("sku", "must be at most 100 characters")
	}
	return nil
}
