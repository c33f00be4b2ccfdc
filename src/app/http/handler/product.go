package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"productservice/src/app/http/dto"
	"productservice/src/app/http/response"
	"productservice/src/app/middleware"
	"productservice/src/core/usecase"
)

// ProductHandler handles the product catalog endpoints.
type ProductHandler struct {
	products *usecase.ProductService
}

func NewProductHandler(products *usecase.ProductService) *ProductHandler {
	return &ProductHandler{products: products}
}

// List returns one page of products.
// GET /api/products?page=&limit=&category=&search=
func (h *ProductHandler) List(c *gin.Context) {
	var q dto.ListProductsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BindingError(c, err, middleware.GetRequestID(c))
		return
	}

	list, err := h.products.List(c.Request.Context(), q.ToInput())
	if err != nil {
		fail(c, err)
		return
	}
	response.OK(c, dto.ProductListResponse{
		Products:   dto.ProductsFromDomain(list.Products),
		Pagination: list.Pagination,
	})
}

// Get returns a single product.
// GET /api/products/:id
func (h *ProductHandler) Get(c *gin.Context) {
	p, err := h.products.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	response.OK(c, dto.ProductFromDomain(*p))
}

// ByCategory lists products of one category.
// GET /api/products/category/:category?limit=
func (h *ProductHandler) ByCategory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	ps, err := h.products.ByCategory(c.Request.Context(), c.Param("category"), limit)
	if err != nil {
		fail(c, err)
		return
	}
	response.OK(c, dto.ProductCollectionResponse{Products: dto.ProductsFromDomain(ps), Count: len(ps)})
}

// LowStock lists products that are running out.
// GET /api/products/low-stock
func (h *ProductHandler) LowStock(c *gin.Context) {
	ps, err := h.products.LowStock(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	response.OK(c, dto.ProductCollectionResponse{Products: dto.ProductsFromDomain(ps), Count: len(ps)})
}

// Create adds a product attributed to the calling user.
// POST /api/products
func (h *ProductHandler) Create(c *gin.Context) {
	var req dto.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindingError(c, err, middleware.GetRequestID(c))
		return
	}

	p, err := h.products.Create(c.Request.Context(), req.ToDraft(middleware.GetUser(c).CreatedBy()))
	if err != nil {
		fail(c, err)
		return
	}
	response.Created(c, dto.ProductFromDomain(*p))
}

// Update applies a partial update.
// PUT /api/products/:id
func (h *ProductHandler) Update(c *gin.Context) {
	var req dto.UpdateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindingError(c, err, middleware.GetRequestID(c))
		return
	}

	p, err := h.products.Update(c.Request.Context(), c.Param("id"), req.ToPatch())
	if err != nil {
		fail(c, err)
		return
	}
	response.OK(c, dto.ProductFromDomain(*p))
}

// Delete removes a product.
// DELETE /api/products/:id
func (h *ProductHandler) Delete(c *gin.Context) {
	if err := h.products.Delete(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	response.NoContent(c)
}

// fail attaches err for the logging middleware and writes the mapped response.
func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	response.FromDomainError(c, err, middleware.GetRequestID(c))
}
