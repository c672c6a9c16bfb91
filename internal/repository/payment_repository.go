package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"giftledger/internal/model"
)

// PaymentRepository defines order payment persistence operations.
type PaymentRepository interface {
	Create(ctx context.Context, payment *model.Payment) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Payment, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID, sourceType model.PaymentSourceType) ([]model.Payment, error)
	ListByOrderInState(ctx context.Context, orderID uuid.UUID, sourceType model.PaymentSourceType, state model.PaymentState) ([]model.Payment, error)
	UpdateState(ctx context.Context, id uuid.UUID, state model.PaymentState) error
}

type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a new payment repository.
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

// Create creates a new payment record.
func (r *paymentRepository) Create(ctx context.Context, payment *model.Payment) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(payment).Error
}

// FindByID finds a payment by ID.
func (r *paymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	var payment model.Payment
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

// ListByOrder lists an order's payments funded by sourceType, in creation order.
func (r *paymentRepository) ListByOrder(ctx context.Context, orderID uuid.UUID, sourceType model.PaymentSourceType) ([]model.Payment, error) {
	var payments []model.Payment
	if err := r.db.WithContext(ctx).
		Where("order_id = ? AND source_type = ?", orderID, sourceType).
		Order("created_at ASC").
		Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

// ListByOrderInState lists an order's payments funded by sourceType in the given state.
func (r *paymentRepository) ListByOrderInState(ctx context.Context, orderID uuid.UUID, sourceType model.PaymentSourceType, state model.PaymentState) ([]model.Payment, error) {
	var payments []model.Payment
	if err := r.db.WithContext(ctx).
		Where("order_id = ? AND source_type = ? AND state = ?", orderID, sourceType, state).
		Order("created_at ASC").
		Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

// UpdateState moves a payment to state.
func (r *paymentRepository) UpdateState(ctx context.Context, id uuid.UUID, state model.PaymentState) error {
	return r.db.WithContext(ctx).Model(&model.Payment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"state": state, "updated_at": time.Now()}).Error
}

// GatewayLogRepository defines gateway call log persistence operations.
type GatewayLogRepository interface {
	Create(ctx context.Context, log *model.GatewayLog) error
	CreateBatch(ctx context.Context, logs []model.GatewayLog) error
	ListByGiftCard(ctx context.Context, cardID uuid.UUID) ([]model.GatewayLog, error)
}

type gatewayLogRepository struct {
	db *gorm.DB
}

// NewGatewayLogRepository creates a new gateway log repository.
func NewGatewayLogRepository(db *gorm.DB) GatewayLogRepository {
	return &gatewayLogRepository{db: db}
}

// Create creates a new gateway log entry.
func (r *gatewayLogRepository) Create(ctx context.Context, log *model.GatewayLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

// CreateBatch creates multiple gateway log entries in a single statement per 100 rows.
func (r *gatewayLogRepository) CreateBatch(ctx context.Context, logs []model.GatewayLog) error {
	if len(logs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(logs, 100).Error
}

// ListByGiftCard lists logged calls for a card, oldest first.
func (r *gatewayLogRepository) ListByGiftCard(ctx context.Context, cardID uuid.UUID) ([]model.GatewayLog, error) {
	var logs []model.GatewayLog
	if err := r.db.WithContext(ctx).
		Where("gift_card_id = ?", cardID).
		Order("created_at ASC").
		Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
