package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repositories groups every repository bound to the same connection or transaction.
type Repositories struct {
	db *gorm.DB

	GiftCards    GiftCardRepository
	Transactions GiftCardTransactionRepository
	Payments     PaymentRepository
	GatewayLogs  GatewayLogRepository
	Orders       OrderRepository
	Users        UserRepository
	StoreCredits StoreCreditRepository
	Catalog      CatalogRepository
}

// New creates the repository set for db.
func New(db *gorm.DB) *Repositories {
	return &Repositories{
		db:           db,
		GiftCards:    NewGiftCardRepository(db),
		Transactions: NewGiftCardTransactionRepository(db),
		Payments:     NewPaymentRepository(db),
		GatewayLogs:  NewGatewayLogRepository(db),
		Orders:       NewOrderRepository(db),
		Users:        NewUserRepository(db),
		StoreCredits: NewStoreCreditRepository(db),
		Catalog:      NewCatalogRepository(db),
	}
}

// WithTransaction executes fn within a database transaction. Every repository
// handed to fn shares the transaction; returning an error rolls it back.
func (r *Repositories) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx *Repositories) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, New(tx))
	})
}

// Ping checks the underlying database connection.
func (r *Repositories) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
