package domain

// LowStockThreshold is the stock level at or below which an available
// product counts as low on stock.
const LowStockThreshold = 5

// DefaultPageLimit is the page size used when a listing does not specify one.
const DefaultPageLimit = 10

// MaxPageLimit caps the page size of a listing.
const MaxPageLimit = 100

// DefaultCategoryLimit bounds FindByCategory results.
const DefaultCategoryLimit = 50

// Field length bounds.
const (
	NameMinLen        = 3
	NameMaxLen        = 200
	DescriptionMinLen = 10
	DescriptionMaxLen = 2000
	SKUMaxLen         = 100
)
