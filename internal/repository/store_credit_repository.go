package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"giftledger/internal/model"
)

// StoreCreditRepository defines store credit persistence operations.
type StoreCreditRepository interface {
	Create(ctx context.Context, credit *model.StoreCredit) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.StoreCredit, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.StoreCredit, error)
}

type storeCreditRepository struct {
	db *gorm.DB
}

// NewStoreCreditRepository creates a new store credit repository.
func NewStoreCreditRepository(db *gorm.DB) StoreCreditRepository {
	return &storeCreditRepository{db: db}
}

// Create creates a new store credit grant.
func (r *storeCreditRepository) Create(ctx context.Context, credit *model.StoreCredit) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(credit).Error
}

// FindByID finds a store credit by ID.
func (r *storeCreditRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.StoreCredit, error) {
	var credit model.StoreCredit
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&credit).Error; err != nil {
		return nil, err
	}
	return &credit, nil
}

// ListByUser lists a user's credits in consumption order.
func (r *storeCreditRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.StoreCredit, error) {
	var credits []model.StoreCredit
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("priority ASC").
		Order("created_at ASC").
		Find(&credits).Error; err != nil {
		return nil, err
	}
	return credits, nil
}
