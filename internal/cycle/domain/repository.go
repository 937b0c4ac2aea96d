package domain

import (
	"context"
	"time"
)

// CycleRepository 交易周期仓储接口
type CycleRepository interface {
	Save(ctx context.Context, cycle *TradeCycle) error
	Update(ctx context.Context, cycle *TradeCycle) error
	Get(ctx context.Context, cycleID string) (*TradeCycle, error)
	// GetLiveByCluster 返回集群的在途周期（ACTIVE 或 PROCESSING），不存在时返回 nil
	GetLiveByCluster(ctx context.Context, clusterID string) (*TradeCycle, error)
	// ListDue 返回 end_at <= now 的 ACTIVE 周期
	ListDue(ctx context.Context, now time.Time) ([]*TradeCycle, error)
	// ListProcessing 返回结算中周期，用于崩溃后续跑
	ListProcessing(ctx context.Context) ([]*TradeCycle, error)
	// ClaimProcessing ACTIVE→PROCESSING 的 CAS 认领；已被认领时返回 false
	ClaimProcessing(ctx context.Context, cycleID string) (bool, error)
	List(ctx context.Context, clusterID string, offset, limit int) ([]*TradeCycle, int64, error)
}
