package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	clusterdomain "github.com/wyfcoding/gdip/internal/cluster/domain"
	"github.com/wyfcoding/gdip/internal/cycle/domain"
	"github.com/wyfcoding/gdip/pkg/metrics"
	"github.com/wyfcoding/gdip/pkg/utils"
)

// ClusterDirectory 调度器可见的集群池操作
type ClusterDirectory interface {
	ListReady(ctx context.Context) ([]*clusterdomain.Cluster, error)
	MarkActive(ctx context.Context, clusterID, cycleID string) error
	RefreshGauges(ctx context.Context)
}

// SettlementTrigger 周期结算入口；实现必须幂等，同一周期可安全重入
type SettlementTrigger interface {
	Settle(ctx context.Context, cycle *domain.TradeCycle) error
}

// Scheduler 周期调度器：为满员集群启动周期，到期周期认领并触发结算。
// Tick 接收外部时钟，崩溃后续跑依赖 PROCESSING 周期重扫。
type Scheduler struct {
	cycles     domain.CycleRepository
	clusters   ClusterDirectory
	settler    SettlementTrigger
	idGen      *utils.SnowflakeID
	metrics    *metrics.Metrics
	logger     *slog.Logger
	duration   time.Duration
	targetRate decimal.Decimal
	tickEvery  time.Duration
}

// NewScheduler 创建周期调度器
func NewScheduler(
	cycles domain.CycleRepository,
	clusters ClusterDirectory,
	settler SettlementTrigger,
	idGen *utils.SnowflakeID,
	m *metrics.Metrics,
	logger *slog.Logger,
	cycleDuration time.Duration,
	defaultTargetRate decimal.Decimal,
	tickEvery time.Duration,
) *Scheduler {
	return &Scheduler{
		cycles:     cycles,
		clusters:   clusters,
		settler:    settler,
		idGen:      idGen,
		metrics:    m,
		logger:     logger,
		duration:   cycleDuration,
		targetRate: defaultTargetRate,
		tickEvery:  tickEvery,
	}
}

// Run 按固定间隔驱动 Tick，直到 ctx 取消
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tickEvery)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "cycle scheduler started",
		"tick_interval", s.tickEvery, "cycle_duration", s.duration)

	s.Tick(ctx, time.Now())

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "cycle scheduler stopped")
			return nil
		case now := <-ticker.C:
			s.Tick(ctx, now)
		}
	}
}

// Tick 单轮调度：启动新周期、结算到期周期、续跑中断的结算
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	s.startCycles(ctx, now)
	s.settleDue(ctx, now)
	s.resumeProcessing(ctx)
	s.clusters.RefreshGauges(ctx)
}

// startCycles 为每个 READY 集群启动下一个周期
func (s *Scheduler) startCycles(ctx context.Context, now time.Time) {
	ready, err := s.clusters.ListReady(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list ready clusters", "error", err)
		return
	}

	for _, cluster := range ready {
		if err := s.startCycle(ctx, cluster, now); err != nil {
			s.logger.ErrorContext(ctx, "failed to start trade cycle",
				"cluster_id", cluster.ClusterID, "error", err)
		}
	}
}

func (s *Scheduler) startCycle(ctx context.Context, cluster *clusterdomain.Cluster, now time.Time) error {
	live, err := s.cycles.GetLiveByCluster(ctx, cluster.ClusterID)
	if err != nil {
		return err
	}
	if live != nil {
		// READY 集群却有在途周期：上次启动在绑定前中断，或出现了重叠。
		// 重新绑定而不是再开一个，并记录违规计数供告警。
		s.metrics.InvariantViolationsTotal.Inc()
		s.logger.ErrorContext(ctx, "live cycle found for ready cluster, re-binding",
			"cluster_id", cluster.ClusterID, "cycle_id", live.CycleID,
			"error", domain.ErrCycleOverlap)
		return s.clusters.MarkActive(ctx, cluster.ClusterID, live.CycleID)
	}

	cycleID := fmt.Sprintf("CYC%d", s.idGen.Generate())
	cycle := domain.NewTradeCycle(cycleID, cluster.ClusterID,
		cluster.CyclesCompleted+1, now, s.duration, s.targetRate, cluster.TotalCapital)

	if err := s.cycles.Save(ctx, cycle); err != nil {
		return err
	}
	if err := s.clusters.MarkActive(ctx, cluster.ClusterID, cycleID); err != nil {
		return err
	}

	s.metrics.CyclesStartedTotal.Inc()
	s.logger.InfoContext(ctx, "trade cycle started",
		"cycle_id", cycleID, "cluster_id", cluster.ClusterID,
		"sequence", cycle.Sequence, "end_at", cycle.EndAt)
	return nil
}

// settleDue 认领到期周期并触发结算
func (s *Scheduler) settleDue(ctx context.Context, now time.Time) {
	due, err := s.cycles.ListDue(ctx, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list due cycles", "error", err)
		return
	}

	for _, cycle := range due {
		claimed, err := s.cycles.ClaimProcessing(ctx, cycle.CycleID)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to claim due cycle",
				"cycle_id", cycle.CycleID, "error", err)
			continue
		}
		if !claimed {
			continue
		}
		cycle.Status = domain.CycleStatusProcessing

		if err := s.settler.Settle(ctx, cycle); err != nil {
			// 周期停在 PROCESSING，下一轮续跑
			s.logger.ErrorContext(ctx, "cycle settlement failed, will retry",
				"cycle_id", cycle.CycleID, "error", err)
		}
	}
}

// resumeProcessing 续跑因崩溃或失败停在 PROCESSING 的周期
func (s *Scheduler) resumeProcessing(ctx context.Context) {
	processing, err := s.cycles.ListProcessing(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list processing cycles", "error", err)
		return
	}

	for _, cycle := range processing {
		if err := s.settler.Settle(ctx, cycle); err != nil {
			s.logger.ErrorContext(ctx, "cycle settlement retry failed",
				"cycle_id", cycle.CycleID, "error", err)
		}
	}
}
