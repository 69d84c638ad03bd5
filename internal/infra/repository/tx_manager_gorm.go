package repository

import (
	"context"

	repo "app/internal/repository"

	"gorm.io/gorm"
)

// *gorm.DB のTransactionに委譲する実装。
// fnがerrorを返せばrollback、nilならcommit。
type TxManagerGorm struct {
	db *gorm.DB
}

func NewTxManagerGorm(db *gorm.DB) *TxManagerGorm {
	return &TxManagerGorm{db: db}
}

func (m *TxManagerGorm) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&txRepos{tx: tx})
	})
}

// Tx上に乗ったリポジトリ束。
type txRepos struct {
	tx *gorm.DB
}

func (r *txRepos) Orders() repo.OrderRepository {
	return NewOrderGormRepository(r.tx)
}

func (r *txRepos) Listings() repo.ListingRepository {
	return NewListingGormRepository(r.tx)
}

func (r *txRepos) Users() repo.UserRepository {
	return NewUserGormRepository(r.tx)
}

func (r *txRepos) WebhookEvents() repo.WebhookEventRepository {
	return NewWebhookEventGormRepository(r.tx)
}
