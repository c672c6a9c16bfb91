package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"giftledger/internal/model"
)

// OrderRepository defines order and line item persistence operations.
type OrderRepository interface {
	Create(ctx context.Context, order *model.Order) error
	Update(ctx context.Context, order *model.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Order, error)
	FindByNumber(ctx context.Context, number string) (*model.Order, error)
	CreateLineItem(ctx context.Context, item *model.LineItem) error
	FindLineItem(ctx context.Context, id uuid.UUID) (*model.LineItem, error)
}

type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new order repository.
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

// Create creates a new order without its line items.
func (r *orderRepository) Create(ctx context.Context, order *model.Order) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(order).Error
}

// Update saves order columns.
func (r *orderRepository) Update(ctx context.Context, order *model.Order) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(order).Error
}

// FindByID finds an order with its line items, variants and products.
func (r *orderRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	var order model.Order
	if err := r.withLineItems(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// FindByNumber finds an order by its public number.
func (r *orderRepository) FindByNumber(ctx context.Context, number string) (*model.Order, error) {
	var order model.Order
	if err := r.withLineItems(ctx).Where("number = ?", number).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// CreateLineItem creates a line item on an existing order.
func (r *orderRepository) CreateLineItem(ctx context.Context, item *model.LineItem) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(item).Error
}

// FindLineItem finds a line item with its order and variant.
func (r *orderRepository) FindLineItem(ctx context.Context, id uuid.UUID) (*model.LineItem, error) {
	var item model.LineItem
	if err := r.db.WithContext(ctx).
		Preload("Order").
		Preload("Variant.Product").
		Where("id = ?", id).
		First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *orderRepository) withLineItems(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Preload("LineItems.Variant.Product")
}
