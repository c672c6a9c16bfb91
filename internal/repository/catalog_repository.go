package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"giftledger/internal/model"
)

// CatalogRepository defines product and variant persistence operations.
type CatalogRepository interface {
	CreateProduct(ctx context.Context, product *model.Product) error
	CreateVariant(ctx context.Context, variant *model.Variant) error
	FindVariant(ctx context.Context, id uuid.UUID) (*model.Variant, error)
	FindVariantBySKU(ctx context.Context, sku string) (*model.Variant, error)
}

type catalogRepository struct {
	db *gorm.DB
}

// NewCatalogRepository creates a new catalog repository.
func NewCatalogRepository(db *gorm.DB) CatalogRepository {
	return &catalogRepository{db: db}
}

// CreateProduct creates a new product.
func (r *catalogRepository) CreateProduct(ctx context.Context, product *model.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

// CreateVariant creates a new variant of an existing product.
func (r *catalogRepository) CreateVariant(ctx context.Context, variant *model.Variant) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(variant).Error
}

// FindVariant finds a variant with its product.
func (r *catalogRepository) FindVariant(ctx context.Context, id uuid.UUID) (*model.Variant, error) {
	var variant model.Variant
	if err := r.db.WithContext(ctx).Preload("Product").Where("id = ?", id).First(&variant).Error; err != nil {
		return nil, err
	}
	return &variant, nil
}

// FindVariantBySKU finds a variant with its product by SKU.
func (r *catalogRepository) FindVariantBySKU(ctx context.Context, sku string) (*model.Variant, error) {
	var variant model.Variant
	if err := r.db.WithContext(ctx).Preload("Product").Where("sku = ?", sku).First(&variant).Error; err != nil {
		return nil, err
	}
	return &variant, nil
}
