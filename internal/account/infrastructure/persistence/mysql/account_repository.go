package mysql

import (
	"context"
	"errors"

	"github.com/wyfcoding/gdip/internal/account/domain"
	pkgdb "github.com/wyfcoding/gdip/pkg/db"
	"gorm.io/gorm"
)

// accountRepository 投资账户仓储实现
type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository 创建投资账户仓储
func NewAccountRepository(db *gorm.DB) domain.AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) Save(ctx context.Context, account *domain.InvestmentAccount) error {
	return r.getDB(ctx).WithContext(ctx).Create(account).Error
}

// SaveCAS 带乐观锁更新账户，version 条件更新 + RowsAffected 判定
func (r *accountRepository) SaveCAS(ctx context.Context, account *domain.InvestmentAccount) error {
	currentVersion := account.Version
	result := r.getDB(ctx).WithContext(ctx).Model(&domain.InvestmentAccount{}).
		Where("account_id = ? AND version = ?", account.AccountID, currentVersion).
		Updates(map[string]any{
			"current_value":       account.CurrentValue,
			"status":              account.Status,
			"status_changed_at":   account.StatusChangedAt,
			"cycles_completed":    account.CyclesCompleted,
			"total_profit_earned": account.TotalProfitEarned,
			"certificate_id":      account.CertificateID,
			"version":             currentVersion + 1,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrVersionConflict
	}

	account.Version = currentVersion + 1
	return nil
}

func (r *accountRepository) Get(ctx context.Context, accountID string) (*domain.InvestmentAccount, error) {
	var account domain.InvestmentAccount
	if err := r.getDB(ctx).WithContext(ctx).
		Where("account_id = ?", accountID).
		First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) ListByUser(ctx context.Context, userID string) ([]*domain.InvestmentAccount, error) {
	var accounts []*domain.InvestmentAccount
	if err := r.getDB(ctx).WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

// ListSettleable 集群内结算候选账户；PENDING 从未入池，不参与。
// 冻结/到期是否参与由结算方按周期起点判定（ParticipatesIn）
func (r *accountRepository) ListSettleable(ctx context.Context, clusterID string) ([]*domain.InvestmentAccount, error) {
	var accounts []*domain.InvestmentAccount
	if err := r.getDB(ctx).WithContext(ctx).
		Where("cluster_id = ? AND status <> ?", clusterID, domain.AccountStatusPending).
		Order("position asc").
		Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *accountRepository) List(ctx context.Context, offset, limit int) ([]*domain.InvestmentAccount, int64, error) {
	var accounts []*domain.InvestmentAccount
	var total int64

	if err := r.getDB(ctx).WithContext(ctx).Model(&domain.InvestmentAccount{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := r.getDB(ctx).WithContext(ctx).
		Order("created_at desc").Offset(offset).Limit(limit).
		Find(&accounts).Error; err != nil {
		return nil, 0, err
	}
	return accounts, total, nil
}

// Delete 物理删除账户，准入补偿专用；此时账户尚未入池
func (r *accountRepository) Delete(ctx context.Context, accountID string) error {
	return r.getDB(ctx).WithContext(ctx).
		Unscoped().
		Where("account_id = ?", accountID).
		Delete(&domain.InvestmentAccount{}).Error
}

func (r *accountRepository) getDB(ctx context.Context) *gorm.DB {
	return pkgdb.FromContext(ctx, r.db)
}
