package mysql

import (
	"context"

	"github.com/wyfcoding/gdip/internal/settlement/domain"
	pkgdb "github.com/wyfcoding/gdip/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ledgerRepository 分润流水仓储实现
type ledgerRepository struct {
	db *gorm.DB
}

// NewLedgerRepository 创建分润流水仓储
func NewLedgerRepository(db *gorm.DB) domain.LedgerRepository {
	return &ledgerRepository{db: db}
}

// Apply 幂等写入流水。INSERT ... ON DUPLICATE KEY 冲突时不落新行，
// 读回已有流水供调用方续跑。
func (r *ledgerRepository) Apply(ctx context.Context, entry *domain.LedgerEntry) (*domain.LedgerEntry, bool, error) {
	result := r.getDB(ctx).WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(entry)
	if result.Error != nil {
		return nil, false, result.Error
	}
	if result.RowsAffected > 0 {
		return entry, true, nil
	}

	var existing domain.LedgerEntry
	if err := r.getDB(ctx).WithContext(ctx).
		Where("account_id = ? AND cycle_id = ?", entry.AccountID, entry.CycleID).
		First(&existing).Error; err != nil {
		return nil, false, err
	}
	return &existing, false, nil
}

func (r *ledgerRepository) ListByCycle(ctx context.Context, cycleID string) ([]*domain.LedgerEntry, error) {
	var entries []*domain.LedgerEntry
	if err := r.getDB(ctx).WithContext(ctx).
		Where("cycle_id = ?", cycleID).
		Order("account_id asc").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *ledgerRepository) ListByAccount(ctx context.Context, accountID string) ([]*domain.LedgerEntry, error) {
	var entries []*domain.LedgerEntry
	if err := r.getDB(ctx).WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at desc").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *ledgerRepository) getDB(ctx context.Context) *gorm.DB {
	return pkgdb.FromContext(ctx, r.db)
}
