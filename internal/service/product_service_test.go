package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/MorseWayne/cart_shop/internal/domain"
	"github.com/MorseWayne/cart_shop/internal/repo/memstore"
)

func newTestCatalog() (ProductService, CategoryService) {
	store := memstore.New()
	return NewProductService(store.Repos().Products, store.Categories(), nil),
		NewCategoryService(store.Categories(), nil)
}

func TestProductService_CreateProduct(t *testing.T) {
	products, categories := newTestCatalog()
	ctx := context.Background()

	cat, err := categories.CreateCategory(ctx, &domain.CreateCategoryRequest{Name: "pens"})
	if err != nil {
		t.Fatalf("CreateCategory() error = %v", err)
	}
	missing := int64(404)

	tests := []struct {
		name    string
		req     *domain.CreateProductRequest
		wantErr error
	}{
		{
			name: "valid product",
			req:  &domain.CreateProductRequest{Name: "Pen", Price: decimal.RequireFromString("9.99"), Stock: 3, CategoryID: &cat.ID},
		},
		{
			name:    "negative price",
			req:     &domain.CreateProductRequest{Name: "Pen", Price: decimal.NewFromInt(-1)},
			wantErr: domain.ErrInvalidArgument,
		},
		{
			name:    "negative stock",
			req:     &domain.CreateProductRequest{Name: "Pen", Price: decimal.NewFromInt(1), Stock: -1},
			wantErr: domain.ErrInvalidArgument,
		},
		{
			name:    "unknown category",
			req:     &domain.CreateProductRequest{Name: "Pen", Price: decimal.NewFromInt(1), CategoryID: &missing},
			wantErr: domain.ErrInvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			product, err := products.CreateProduct(ctx, tt.req)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("CreateProduct() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("CreateProduct() error = %v", err)
			}
			if product.ID == 0 || product.Name != tt.req.Name {
				t.Errorf("CreateProduct() = %+v", product)
			}
		})
	}
}

func TestProductService_GetAndUpdate(t *testing.T) {
	products, _ := newTestCatalog()
	ctx := context.Background()

	created, err := products.CreateProduct(ctx, &domain.CreateProductRequest{Name: "Pen", Price: decimal.NewFromInt(5), Stock: 1})
	if err != nil {
		t.Fatalf("CreateProduct() error = %v", err)
	}

	if _, err := products.GetProduct(ctx, 999); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetProduct() missing error = %v", err)
	}
	if _, err := products.GetProduct(ctx, 0); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("GetProduct() bad id error = %v", err)
	}

	name := "Fountain Pen"
	stock := 7
	updated, err := products.UpdateProduct(ctx, created.ID, &domain.UpdateProductRequest{Name: &name, Stock: &stock})
	if err != nil {
		t.Fatalf("UpdateProduct() error = %v", err)
	}
	if updated.Name != name || updated.Stock != 7 || !updated.Price.Equal(decimal.NewFromInt(5)) {
		t.Errorf("UpdateProduct() = %+v", updated)
	}

	negative := -3
	if _, err := products.UpdateProduct(ctx, created.ID, &domain.UpdateProductRequest{Stock: &negative}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("UpdateProduct() negative stock error = %v", err)
	}
}

func TestProductService_ListProducts(t *testing.T) {
	products, categories := newTestCatalog()
	ctx := context.Background()

	cat, _ := categories.CreateCategory(ctx, &domain.CreateCategoryRequest{Name: "books"})
	for i := 0; i < 5; i++ {
		req := &domain.CreateProductRequest{Name: "item", Price: decimal.NewFromInt(1)}
		if i < 2 {
			req.CategoryID = &cat.ID
		}
		if _, err := products.CreateProduct(ctx, req); err != nil {
			t.Fatalf("CreateProduct() error = %v", err)
		}
	}

	resp, err := products.ListProducts(ctx, &domain.ProductListRequest{})
	if err != nil {
		t.Fatalf("ListProducts() error = %v", err)
	}
	if resp.Total != 5 || resp.Page != 1 || resp.PageSize != 20 {
		t.Errorf("ListProducts() = total %d page %d size %d", resp.Total, resp.Page, resp.PageSize)
	}

	resp, err = products.ListProducts(ctx, &domain.ProductListRequest{CategoryID: &cat.ID})
	if err != nil {
		t.Fatalf("ListProducts() error = %v", err)
	}
	if resp.Total != 2 || len(resp.Products) != 2 {
		t.Errorf("category filter: total %d len %d", resp.Total, len(resp.Products))
	}
}

func TestCategoryService(t *testing.T) {
	_, categories := newTestCatalog()
	ctx := context.Background()

	if _, err := categories.CreateCategory(ctx, &domain.CreateCategoryRequest{Name: "  "}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("blank name error = %v", err)
	}
	for _, name := range []string{"a", "b", "c"} {
		if _, err := categories.CreateCategory(ctx, &domain.CreateCategoryRequest{Name: name}); err != nil {
			t.Fatalf("CreateCategory(%s) error = %v", name, err)
		}
	}
	if _, err := categories.CreateCategory(ctx, &domain.CreateCategoryRequest{Name: "a"}); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("duplicate name error = %v", err)
	}

	resp, err := categories.ListCategories(ctx, 2, 2)
	if err != nil {
		t.Fatalf("ListCategories() error = %v", err)
	}
	if resp.Total != 3 || resp.TotalPages != 2 || len(resp.Categories) != 1 {
		t.Errorf("ListCategories() = %+v", resp)
	}

	resp, err = categories.ListCategories(ctx, 0, 0)
	if err != nil {
		t.Fatalf("ListCategories() error = %v", err)
	}
	if resp.Limit != 10 || resp.Page != 1 || resp.TotalPages != 1 {
		t.Errorf("defaults = page %d limit %d pages %d", resp.Page, resp.Limit, resp.TotalPages)
	}

	if _, err := categories.GetCategory(ctx, 42); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetCategory() missing error = %v", err)
	}
}
