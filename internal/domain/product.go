// Package domain 定义购物车与订单相关的业务领域模型和核心业务规则。
package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Product 表示商品领域模型
type Product struct {
	ID          int64            `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Price       decimal.Decimal  `json:"price"`
	OldPrice    *decimal.Decimal `json:"old_price,omitempty"`
	Stock       int              `json:"stock"`
	CategoryID  *int64           `json:"category_id"`
	Weight      *float64         `json:"weight,omitempty"`
	IsExclusive bool             `json:"is_exclusive"`
	ImageURL    string           `json:"image_url"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// HasStock 判断库存是否足够
func (p *Product) HasStock(qty int) bool {
	return qty > 0 && p.Stock >= qty
}

// Category 商品分类，被商品引用但不内嵌商品
type Category struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	IsExclusive bool      `json:"is_exclusive"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreateProductRequest 表示创建商品请求
type CreateProductRequest struct {
	Name        string           `json:"name" binding:"required,min=1,max=255"`
	Description string           `json:"description"`
	Price       decimal.Decimal  `json:"price"`
	OldPrice    *decimal.Decimal `json:"old_price"`
	Stock       int              `json:"stock" binding:"min=0"`
	CategoryID  *int64           `json:"category_id"`
	Weight      *float64         `json:"weight"`
	IsExclusive bool             `json:"is_exclusive"`
	ImageURL    string           `json:"image_url"`
}

// Validate 校验价格与库存
func (r *CreateProductRequest) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidArgument)
	}
	if r.Price.IsNegative() {
		return fmt.Errorf("%w: price must be >= 0", ErrInvalidArgument)
	}
	if r.OldPrice != nil && r.OldPrice.IsNegative() {
		return fmt.Errorf("%w: old_price must be >= 0", ErrInvalidArgument)
	}
	if r.Stock < 0 {
		return fmt.Errorf("%w: stock must be >= 0", ErrInvalidArgument)
	}
	return nil
}

// UpdateProductRequest 表示更新商品请求，nil 字段保持不变
type UpdateProductRequest struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	OldPrice    *decimal.Decimal `json:"old_price"`
	Stock       *int             `json:"stock"`
	CategoryID  *int64           `json:"category_id"`
	Weight      *float64         `json:"weight"`
	IsExclusive *bool            `json:"is_exclusive"`
	ImageURL    *string          `json:"image_url"`
}

// Apply 将更新应用到商品上
func (r *UpdateProductRequest) Apply(p *Product) error {
	if r.Name != nil {
		if *r.Name == "" {
			return fmt.Errorf("%w: name must not be empty", ErrInvalidArgument)
		}
		p.Name = *r.Name
	}
	if r.Description != nil {
		p.Description = *r.Description
	}
	if r.Price != nil {
		if r.Price.IsNegative() {
			return fmt.Errorf("%w: price must be >= 0", ErrInvalidArgument)
		}
		p.Price = *r.Price
	}
	if r.OldPrice != nil {
		p.OldPrice = r.OldPrice
	}
	if r.Stock != nil {
		if *r.Stock < 0 {
			return fmt.Errorf("%w: stock must be >= 0", ErrInvalidArgument)
		}
		p.Stock = *r.Stock
	}
	if r.CategoryID != nil {
		p.CategoryID = r.CategoryID
	}
	if r.Weight != nil {
		p.Weight = r.Weight
	}
	if r.IsExclusive != nil {
		p.IsExclusive = *r.IsExclusive
	}
	if r.ImageURL != nil {
		p.ImageURL = *r.ImageURL
	}
	return nil
}

// ProductListRequest 表示商品列表查询请求
type ProductListRequest struct {
	Page       int    `json:"page"`        // 页码，从1开始
	PageSize   int    `json:"page_size"`   // 每页大小
	CategoryID *int64 `json:"category_id"` // 分类过滤
}

// Normalize 填充分页默认值
func (r *ProductListRequest) Normalize() {
	if r.Page <= 0 {
		r.Page = 1
	}
	if r.PageSize <= 0 {
		r.PageSize = 20
	}
	if r.PageSize > 100 {
		r.PageSize = 100
	}
}

// ProductListResponse 表示商品列表查询响应
type ProductListResponse struct {
	Products []*Product `json:"products"`
	Total    int64      `json:"total"`
	Page     int        `json:"page"`
	PageSize int        `json:"page_size"`
}

// CreateCategoryRequest 创建分类请求
type CreateCategoryRequest struct {
	Name        string `json:"name" binding:"required,min=1,max=100"`
	IsExclusive bool   `json:"is_exclusive"`
}

// CategoryListResponse 分类分页结果
type CategoryListResponse struct {
	Categories []*Category `json:"categories"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	TotalPages int         `json:"total_pages"`
}
