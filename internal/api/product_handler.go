package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MorseWayne/cart_shop/internal/domain"
	"github.com/MorseWayne/cart_shop/internal/resp"
	"github.com/MorseWayne/cart_shop/internal/service"
)

// ProductHandler 商品与分类相关的HTTP处理器
type ProductHandler struct {
	productService  service.ProductService
	categoryService service.CategoryService
	logger          *zap.Logger
}

// NewProductHandler 创建商品处理器实例
func NewProductHandler(productService service.ProductService, categoryService service.CategoryService, logger *zap.Logger) *ProductHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProductHandler{
		productService:  productService,
		categoryService: categoryService,
		logger:          logger,
	}
}

// CreateProduct 创建商品
// POST /products
// 需要管理员权限
func (h *ProductHandler) CreateProduct(c *gin.Context) {
	var req domain.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid request body", zap.String("request_id", requestID(c)), zap.Error(err))
		badRequest(c, "invalid request body")
		return
	}

	product, err := h.productService.CreateProduct(c.Request.Context(), &req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	resp.Created(c.Writer, "product created", product, requestID(c), "")
}

// GetProduct 获取商品详情
// GET /products/:id
func (h *ProductHandler) GetProduct(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	product, err := h.productService.GetProduct(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	resp.OK(c.Writer, product, requestID(c), "")
}

// UpdateProduct 更新商品，只修改请求中出现的字段
// PUT /products/:id
// 需要管理员权限
func (h *ProductHandler) UpdateProduct(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req domain.UpdateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	product, err := h.productService.UpdateProduct(c.Request.Context(), id, &req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	resp.OK(c.Writer, product, requestID(c), "")
}

// ListProducts 商品列表
// GET /products?category=<id>&page=1&page_size=20
func (h *ProductHandler) ListProducts(c *gin.Context) {
	req := &domain.ProductListRequest{
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "page_size", 20),
	}
	if v := c.Query("category"); v != "" {
		cid, err := strconv.ParseInt(v, 10, 64)
		if err != nil || cid <= 0 {
			badRequest(c, "invalid category")
			return
		}
		req.CategoryID = &cid
	}

	list, err := h.productService.ListProducts(c.Request.Context(), req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	resp.OK(c.Writer, list, requestID(c), "")
}

// CreateCategory 创建分类
// POST /categories
// 需要管理员权限
func (h *ProductHandler) CreateCategory(c *gin.Context) {
	var req domain.CreateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "name is required")
		return
	}
	category, err := h.categoryService.CreateCategory(c.Request.Context(), &req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	resp.WriteJSON(c.Writer, http.StatusCreated, resp.CodeOK, "category created", category, requestID(c), "")
}

// GetCategory 分类详情
// GET /categories/:id
func (h *ProductHandler) GetCategory(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	category, err := h.categoryService.GetCategory(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	resp.OK(c.Writer, category, requestID(c), "")
}

// ListCategories 分类列表
// GET /categories?page=1&limit=10
func (h *ProductHandler) ListCategories(c *gin.Context) {
	list, err := h.categoryService.ListCategories(c.Request.Context(), queryInt(c, "page", 1), queryInt(c, "limit", 10))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	resp.OK(c.Writer, list, requestID(c), "")
}
