package domain

import "context"

// ClusterRepository 集群仓储接口
type ClusterRepository interface {
	Save(ctx context.Context, cluster *Cluster) error
	// SaveCAS 带乐观锁更新集群聚合；版本不匹配返回 ErrVersionConflict
	SaveCAS(ctx context.Context, cluster *Cluster) error
	Get(ctx context.Context, clusterID string) (*Cluster, error)
	// FindFirstFit 返回指定商品下仍有空位的最小编号集群，不存在时返回 nil
	// excluded 中的集群被跳过（调用方在竞争失败后改试下一个）
	FindFirstFit(ctx context.Context, primaryCommodity string, excluded []string) (*Cluster, error)
	NextNumber(ctx context.Context) (int64, error)
	ListByStatus(ctx context.Context, status ClusterStatus) ([]*Cluster, error)
	List(ctx context.Context, offset, limit int) ([]*Cluster, int64, error)
	CountByStatus(ctx context.Context, status ClusterStatus) (int64, error)
}

// SlotRepository 槽位仓储接口
type SlotRepository interface {
	// Create 依赖 (cluster_id, position) 唯一索引；冲突返回 ErrPositionTaken
	Create(ctx context.Context, slot *ClusterSlot) error
	Get(ctx context.Context, clusterID string, position int) (*ClusterSlot, error)
	// ListActive 返回 RESERVED 与 COMMITTED 状态的槽位
	ListActive(ctx context.Context, clusterID string) ([]*ClusterSlot, error)
	// TransitionState 槽位状态 CAS；from 不匹配时返回 false
	TransitionState(ctx context.Context, clusterID string, position int, from, to SlotState, accountID string) (bool, error)
}
