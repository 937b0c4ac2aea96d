package domain

import (
	"context"
	"errors"
)

// ErrVersionConflict 乐观锁冲突
var ErrVersionConflict = errors.New("account modified by another transaction")

// AccountRepository 投资账户仓储接口
type AccountRepository interface {
	Save(ctx context.Context, account *InvestmentAccount) error
	// SaveCAS 带乐观锁更新；版本不匹配返回 ErrVersionConflict
	SaveCAS(ctx context.Context, account *InvestmentAccount) error
	Get(ctx context.Context, accountID string) (*InvestmentAccount, error)
	ListByUser(ctx context.Context, userID string) ([]*InvestmentAccount, error)
	// ListSettleable 返回集群内参与结算的账户（PENDING 除外），按槽位排序
	ListSettleable(ctx context.Context, clusterID string) ([]*InvestmentAccount, error)
	List(ctx context.Context, offset, limit int) ([]*InvestmentAccount, int64, error)
	// Delete 物理删除；仅用于准入失败的补偿清理
	Delete(ctx context.Context, accountID string) error
}
