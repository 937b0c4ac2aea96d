package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/gdip/internal/cluster/domain"
	"github.com/wyfcoding/gdip/pkg/metrics"
	"github.com/wyfcoding/gdip/pkg/utils"
	"gorm.io/gorm"
)

// ErrNoSlotAvailable 多轮竞争后仍未占到槽位
var ErrNoSlotAvailable = errors.New("no slot available after retries")

// 每次认购最多改试的集群数；超过说明写入竞争异常激烈
const maxClusterAttempts = 5

// 乐观锁冲突时聚合更新的最大重试次数
const maxCASRetries = 3

// TxRunner 事务执行器，事务句柄通过 context 传递给仓储
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// SlotReservation 槽位预留结果，作为两阶段准入的第一阶段凭据
type SlotReservation struct {
	ClusterID     string
	ClusterNumber int64
	Position      int
}

// PoolService 集群池应用服务：first-fit 选簇、两阶段槽位占用与周期状态推进
type PoolService struct {
	clusters domain.ClusterRepository
	slots    domain.SlotRepository
	db       TxRunner
	idGen    *utils.SnowflakeID
	metrics  *metrics.Metrics
	logger   *slog.Logger
	capacity int
}

// NewPoolService 创建集群池服务
func NewPoolService(
	clusters domain.ClusterRepository,
	slots domain.SlotRepository,
	db TxRunner,
	idGen *utils.SnowflakeID,
	m *metrics.Metrics,
	logger *slog.Logger,
	capacity int,
) *PoolService {
	return &PoolService{
		clusters: clusters,
		slots:    slots,
		db:       db,
		idGen:    idGen,
		metrics:  m,
		logger:   logger,
		capacity: capacity,
	}
}

// AcquireSlot 为新认购占一个槽位（RESERVED）。
// first-fit：在同商品下按编号从小到大找未满集群；竞争失败换下一个；
// 全部满员则自动开新簇。占位成功后由调用方走保单签发，再 CommitSlot 或 ReleaseSlot。
func (s *PoolService) AcquireSlot(ctx context.Context, primaryCommodity string) (*SlotReservation, error) {
	excluded := make([]string, 0, maxClusterAttempts)

	for attempt := 0; attempt < maxClusterAttempts; attempt++ {
		cluster, err := s.clusters.FindFirstFit(ctx, primaryCommodity, excluded)
		if err != nil {
			return nil, err
		}
		if cluster == nil {
			cluster, err = s.openCluster(ctx, primaryCommodity)
			if err != nil {
				return nil, err
			}
		}

		position, err := s.reservePosition(ctx, cluster)
		if err == nil {
			return &SlotReservation{
				ClusterID:     cluster.ClusterID,
				ClusterNumber: cluster.Number,
				Position:      position,
			}, nil
		}
		if !errors.Is(err, domain.ErrCapacityExceeded) {
			return nil, err
		}

		// 该集群所有位置都被并发占走，换下一个
		s.metrics.SlotReservationRetriesTotal.Inc()
		excluded = append(excluded, cluster.ClusterID)
	}

	return nil, ErrNoSlotAvailable
}

// reservePosition 在单个集群内占一个位置。
// 位置从 1 到 Capacity 逐个尝试：无行则 INSERT（唯一索引裁决），
// 有行且为 RELEASED 则 CAS 回收；两者都失败说明位置被占，试下一个。
func (s *PoolService) reservePosition(ctx context.Context, cluster *domain.Cluster) (int, error) {
	active, err := s.slots.ListActive(ctx, cluster.ClusterID)
	if err != nil {
		return 0, err
	}

	occupied := make(map[int]bool, len(active))
	for _, slot := range active {
		occupied[slot.Position] = true
	}

	for position := 1; position <= cluster.Capacity; position++ {
		if occupied[position] {
			continue
		}

		slot := &domain.ClusterSlot{
			ClusterID: cluster.ClusterID,
			Position:  position,
			State:     domain.SlotStateReserved,
		}
		err := s.slots.Create(ctx, slot)
		if err == nil {
			return position, nil
		}
		if !errors.Is(err, domain.ErrPositionTaken) {
			return 0, err
		}

		// 行已存在：要么 RELEASED 可回收，要么刚被并发占走
		reclaimed, err := s.slots.TransitionState(ctx, cluster.ClusterID, position,
			domain.SlotStateReleased, domain.SlotStateReserved, "")
		if err != nil {
			return 0, err
		}
		if reclaimed {
			return position, nil
		}
		s.metrics.SlotReservationRetriesTotal.Inc()
	}

	return 0, domain.ErrCapacityExceeded
}

// openCluster 开一个新的组建中集群；编号唯一索引兜底并发开簇
func (s *PoolService) openCluster(ctx context.Context, primaryCommodity string) (*domain.Cluster, error) {
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		number, err := s.clusters.NextNumber(ctx)
		if err != nil {
			return nil, err
		}

		clusterID := fmt.Sprintf("GDC%d", s.idGen.Generate())
		cluster := domain.NewCluster(clusterID, number, s.capacity, primaryCommodity)

		err = s.clusters.Save(ctx, cluster)
		if err == nil {
			s.logger.InfoContext(ctx, "cluster opened",
				"cluster_id", clusterID, "number", number, "commodity", primaryCommodity)
			return cluster, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, err
		}
		// 编号被并发抢注，重取
	}
	return nil, ErrNoSlotAvailable
}

// CommitSlot 两阶段准入的第二阶段：槽位 RESERVED→COMMITTED 并把成员记入集群。
// 同一事务内完成，满员时集群原子转入 READY；乐观锁冲突时重载集群重试。
func (s *PoolService) CommitSlot(ctx context.Context, clusterID string, position int, accountID string, amount decimal.Decimal) error {
	return s.db.WithTx(ctx, func(txCtx context.Context) error {
		committed, err := s.slots.TransitionState(txCtx, clusterID, position,
			domain.SlotStateReserved, domain.SlotStateCommitted, accountID)
		if err != nil {
			return err
		}
		if !committed {
			return fmt.Errorf("slot %s/%d not in reserved state", clusterID, position)
		}

		var lastErr error
		for attempt := 0; attempt < maxCASRetries; attempt++ {
			cluster, err := s.clusters.Get(txCtx, clusterID)
			if err != nil {
				return err
			}
			if cluster == nil {
				return domain.ErrClusterNotFound
			}
			if err := cluster.AdmitMember(amount); err != nil {
				return err
			}

			err = s.clusters.SaveCAS(txCtx, cluster)
			if err == nil {
				if cluster.Status == domain.ClusterStatusReady {
					s.logger.InfoContext(txCtx, "cluster full, ready to trade",
						"cluster_id", clusterID, "capacity", cluster.Capacity,
						"total_capital", cluster.TotalCapital)
				}
				return nil
			}
			if !errors.Is(err, domain.ErrVersionConflict) {
				return err
			}
			lastErr = err
		}
		return lastErr
	})
}

// ReleaseSlot 准入失败的补偿：RESERVED→RELEASED，位置可再次被占用
func (s *PoolService) ReleaseSlot(ctx context.Context, clusterID string, position int) error {
	released, err := s.slots.TransitionState(ctx, clusterID, position,
		domain.SlotStateReserved, domain.SlotStateReleased, "")
	if err != nil {
		return err
	}
	if !released {
		s.logger.WarnContext(ctx, "release skipped, slot not reserved",
			"cluster_id", clusterID, "position", position)
	}
	return nil
}

// ListReady 返回满员待交易的集群，供调度器启动周期
func (s *PoolService) ListReady(ctx context.Context) ([]*domain.Cluster, error) {
	return s.clusters.ListByStatus(ctx, domain.ClusterStatusReady)
}

// MarkActive READY→ACTIVE，绑定新启动的周期
func (s *PoolService) MarkActive(ctx context.Context, clusterID, cycleID string) error {
	return s.mutateCluster(ctx, clusterID, func(c *domain.Cluster) error {
		return c.Activate(cycleID)
	})
}

// CompleteCycle 周期结算完成后回到 READY 并更新累计收益统计。
// 幂等：集群已不再绑定该周期时视为已完成，直接返回。
func (s *PoolService) CompleteCycle(ctx context.Context, clusterID, cycleID string, actualRate decimal.Decimal) error {
	cluster, err := s.clusters.Get(ctx, clusterID)
	if err != nil {
		return err
	}
	if cluster == nil {
		return domain.ErrClusterNotFound
	}
	if cluster.ActiveCycleID != cycleID {
		s.logger.WarnContext(ctx, "cycle completion skipped, cluster no longer bound to cycle",
			"cluster_id", clusterID, "cycle_id", cycleID, "bound_cycle_id", cluster.ActiveCycleID)
		return nil
	}

	return s.mutateCluster(ctx, clusterID, func(c *domain.Cluster) error {
		if c.ActiveCycleID != cycleID {
			return nil
		}
		return c.CompleteCycle(actualRate)
	})
}

// CommittedMembers 返回集群内已提交槽位对应的账户 ID，按位置排序
func (s *PoolService) CommittedMembers(ctx context.Context, clusterID string) ([]string, error) {
	slots, err := s.slots.ListActive(ctx, clusterID)
	if err != nil {
		return nil, err
	}
	members := make([]string, 0, len(slots))
	for _, slot := range slots {
		if slot.State == domain.SlotStateCommitted {
			members = append(members, slot.AccountID)
		}
	}
	return members, nil
}

// RefreshGauges 刷新 READY/ACTIVE 集群数指标
func (s *PoolService) RefreshGauges(ctx context.Context) {
	if ready, err := s.clusters.CountByStatus(ctx, domain.ClusterStatusReady); err == nil {
		s.metrics.ClustersReady.Set(float64(ready))
	}
	if active, err := s.clusters.CountByStatus(ctx, domain.ClusterStatusActive); err == nil {
		s.metrics.ClustersActive.Set(float64(active))
	}
}

// mutateCluster 读取-修改-CAS 写回，乐观锁冲突时重载重试
func (s *PoolService) mutateCluster(ctx context.Context, clusterID string, mutate func(*domain.Cluster) error) error {
	var lastErr error
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		cluster, err := s.clusters.Get(ctx, clusterID)
		if err != nil {
			return err
		}
		if cluster == nil {
			return domain.ErrClusterNotFound
		}
		if err := mutate(cluster); err != nil {
			return err
		}

		err = s.clusters.SaveCAS(ctx, cluster)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return err
		}
		lastErr = err
	}
	return lastErr
}
