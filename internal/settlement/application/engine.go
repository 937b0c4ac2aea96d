package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	accountdomain "github.com/wyfcoding/gdip/internal/account/domain"
	cycledomain "github.com/wyfcoding/gdip/internal/cycle/domain"
	"github.com/wyfcoding/gdip/internal/settlement/domain"
	"github.com/wyfcoding/gdip/pkg/metrics"
	"github.com/wyfcoding/gdip/pkg/utils"
)

// TxRunner 事务执行器，事务句柄通过 context 传递给仓储
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ClusterBook 结算对集群池的回写
type ClusterBook interface {
	CompleteCycle(ctx context.Context, clusterID, cycleID string, actualRate decimal.Decimal) error
}

// CycleStore 结算对周期的回写
type CycleStore interface {
	Update(ctx context.Context, cycle *cycledomain.TradeCycle) error
}

// PayoutPublisher 派息事件发布
type PayoutPublisher interface {
	PublishPayout(ctx context.Context, event domain.PayoutEvent) error
}

// Engine 分润结算引擎。
// 整体幂等：流水唯一索引挡掉重复入账，任何一步失败后周期停在
// PROCESSING，由调度器续跑直到走完。
type Engine struct {
	ledger    domain.LedgerRepository
	accounts  accountdomain.AccountRepository
	cycles    CycleStore
	clusters  ClusterBook
	publisher PayoutPublisher
	db        TxRunner
	idGen     *utils.SnowflakeID
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewEngine 创建结算引擎
func NewEngine(
	ledger domain.LedgerRepository,
	accounts accountdomain.AccountRepository,
	cycles CycleStore,
	clusters ClusterBook,
	publisher PayoutPublisher,
	db TxRunner,
	idGen *utils.SnowflakeID,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		ledger:    ledger,
		accounts:  accounts,
		cycles:    cycles,
		clusters:  clusters,
		publisher: publisher,
		db:        db,
		idGen:     idGen,
		metrics:   m,
		logger:    logger,
	}
}

// Settle 结算一个 PROCESSING 周期：逐账户分润入账，最后收尾周期与集群
func (e *Engine) Settle(ctx context.Context, cycle *cycledomain.TradeCycle) error {
	if cycle.Status == cycledomain.CycleStatusCompleted {
		return nil
	}
	if cycle.Status != cycledomain.CycleStatusProcessing {
		return fmt.Errorf("cycle %s not claimed for settlement: %s", cycle.CycleID, cycle.Status)
	}

	start := time.Now()
	rate := cycle.EffectiveRate()

	members, err := e.accounts.ListSettleable(ctx, cycle.ClusterID)
	if err != nil {
		return err
	}

	shares := make([]domain.Share, 0, len(members))
	byAccount := make(map[string]*accountdomain.InvestmentAccount, len(members))
	for _, account := range members {
		// 周期开始前已冻结/到期的账户退出分润；开始后流转的在途周期照常结算
		if !account.ParticipatesIn(cycle.StartAt) {
			continue
		}
		kind := domain.EntryKindCompound
		if account.ProfitMode == accountdomain.ProfitModePayout {
			kind = domain.EntryKindPayout
		}
		shares = append(shares, domain.Share{
			AccountID: account.AccountID,
			Base:      account.SettlementBase(),
			Kind:      kind,
		})
		byAccount[account.AccountID] = account
	}

	for _, allocation := range domain.Distribute(shares, rate) {
		if err := e.settleAccount(ctx, cycle, allocation, byAccount[allocation.AccountID]); err != nil {
			return fmt.Errorf("settle account %s: %w", allocation.AccountID, err)
		}
	}

	if err := e.finishCycle(ctx, cycle, rate); err != nil {
		return err
	}

	e.metrics.CyclesSettledTotal.Inc()
	e.metrics.SettlementDuration.Observe(time.Since(start).Seconds())
	e.logger.InfoContext(ctx, "trade cycle settled",
		"cycle_id", cycle.CycleID, "cluster_id", cycle.ClusterID,
		"rate", rate, "members", len(shares), "pool_capital", cycle.TotalCapital,
		"elapsed", time.Since(start))
	return nil
}

// settleAccount 单账户入账。账面变更（复利滚存、累计收益、参与周期数）
// 与流水同一事务；派息在流水落库后发布事件，at-least-once，
// 钱包端按 entry_id 去重。
func (e *Engine) settleAccount(ctx context.Context, cycle *cycledomain.TradeCycle, allocation domain.Allocation, account *accountdomain.InvestmentAccount) error {
	entry := &domain.LedgerEntry{
		EntryID:   fmt.Sprintf("LED%d", e.idGen.Generate()),
		AccountID: allocation.AccountID,
		CycleID:   cycle.CycleID,
		ClusterID: cycle.ClusterID,
		Kind:      allocation.Kind,
		Base:      allocation.Base,
		Rate:      cycle.EffectiveRate(),
		Amount:    allocation.Amount,
	}

	var persisted *domain.LedgerEntry
	err := e.db.WithTx(ctx, func(txCtx context.Context) error {
		applied, inserted, err := e.ledger.Apply(txCtx, entry)
		if err != nil {
			return err
		}
		persisted = applied
		if !inserted {
			// 本周期已入账过，续跑时跳过账面变更
			return nil
		}

		account.SettleProfit(allocation.Amount)
		return e.accounts.SaveCAS(txCtx, account)
	})
	if err != nil {
		return err
	}

	if allocation.Kind == domain.EntryKindPayout {
		event := domain.PayoutEvent{
			EntryID:   persisted.EntryID,
			AccountID: account.AccountID,
			UserID:    account.UserID,
			CycleID:   cycle.CycleID,
			ClusterID: cycle.ClusterID,
			Amount:    persisted.Amount,
			Timestamp: time.Now(),
		}
		if err := e.publisher.PublishPayout(ctx, event); err != nil {
			return err
		}
		e.metrics.PayoutsPublishedTotal.Inc()
	}

	return nil
}

// finishCycle 周期收尾：周期转 COMPLETED 并释放集群，同一事务内完成。
// 陈旧副本续跑时库里已是终态，回写被条件更新挡下，视为已收尾。
func (e *Engine) finishCycle(ctx context.Context, cycle *cycledomain.TradeCycle, rate decimal.Decimal) error {
	return e.db.WithTx(ctx, func(txCtx context.Context) error {
		if err := cycle.MarkDistributed(rate, time.Now()); err != nil {
			return err
		}
		if err := e.cycles.Update(txCtx, cycle); err != nil {
			if errors.Is(err, cycledomain.ErrCycleCompleted) {
				return nil
			}
			return err
		}
		return e.clusters.CompleteCycle(txCtx, cycle.ClusterID, cycle.CycleID, rate)
	})
}
