package domain

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// EntryKind 分润入账方式
type EntryKind int8

const (
	EntryKindCompound EntryKind = 1 // 复利滚入账户本值
	EntryKindPayout   EntryKind = 2 // 派发给钱包系统
)

func (k EntryKind) String() string {
	switch k {
	case EntryKindCompound:
		return "COMPOUND"
	case EntryKindPayout:
		return "PAYOUT"
	default:
		return "UNKNOWN"
	}
}

// LedgerEntry 分润流水
// (account_id, cycle_id) 唯一索引保证同一周期对同一账户至多入账一次，
// 是结算幂等与崩溃续跑的裁决点
type LedgerEntry struct {
	gorm.Model
	EntryID   string          `gorm:"column:entry_id;type:varchar(64);uniqueIndex;not null" json:"entry_id"`
	AccountID string          `gorm:"column:account_id;type:varchar(64);uniqueIndex:idx_account_cycle;not null" json:"account_id"`
	CycleID   string          `gorm:"column:cycle_id;type:varchar(64);uniqueIndex:idx_account_cycle;not null" json:"cycle_id"`
	ClusterID string          `gorm:"column:cluster_id;type:varchar(64);index;not null" json:"cluster_id"`
	Kind      EntryKind       `gorm:"column:kind;type:tinyint;not null" json:"kind"`
	Base      decimal.Decimal `gorm:"column:base;type:decimal(20,2);not null" json:"base"`
	Rate      decimal.Decimal `gorm:"column:rate;type:decimal(10,6);not null" json:"rate"`
	Amount    decimal.Decimal `gorm:"column:amount;type:decimal(20,2);not null" json:"amount"`
}

// TableName 表名
func (LedgerEntry) TableName() string {
	return "ledger_entries"
}

// LedgerRepository 分润流水仓储接口
type LedgerRepository interface {
	// Apply 幂等写入：唯一索引冲突时返回已有流水且 inserted=false
	Apply(ctx context.Context, entry *LedgerEntry) (*LedgerEntry, bool, error)
	ListByCycle(ctx context.Context, cycleID string) ([]*LedgerEntry, error)
	ListByAccount(ctx context.Context, accountID string) ([]*LedgerEntry, error)
}
