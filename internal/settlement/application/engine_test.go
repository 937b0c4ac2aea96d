package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	accountdomain "github.com/wyfcoding/gdip/internal/account/domain"
	cycledomain "github.com/wyfcoding/gdip/internal/cycle/domain"
	"github.com/wyfcoding/gdip/internal/settlement/domain"
	"github.com/wyfcoding/gdip/pkg/metrics"
	"github.com/wyfcoding/gdip/pkg/utils"
)

type fakeLedger struct {
	entries map[string]*domain.LedgerEntry
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{entries: make(map[string]*domain.LedgerEntry)}
}

func ledgerKey(accountID, cycleID string) string {
	return fmt.Sprintf("%s|%s", accountID, cycleID)
}

func (l *fakeLedger) Apply(ctx context.Context, entry *domain.LedgerEntry) (*domain.LedgerEntry, bool, error) {
	key := ledgerKey(entry.AccountID, entry.CycleID)
	if existing, ok := l.entries[key]; ok {
		copied := *existing
		return &copied, false, nil
	}
	copied := *entry
	l.entries[key] = &copied
	return entry, true, nil
}

func (l *fakeLedger) ListByCycle(ctx context.Context, cycleID string) ([]*domain.LedgerEntry, error) {
	var out []*domain.LedgerEntry
	for _, e := range l.entries {
		if e.CycleID == cycleID {
			copied := *e
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (l *fakeLedger) ListByAccount(ctx context.Context, accountID string) ([]*domain.LedgerEntry, error) {
	var out []*domain.LedgerEntry
	for _, e := range l.entries {
		if e.AccountID == accountID {
			copied := *e
			out = append(out, &copied)
		}
	}
	return out, nil
}

type fakeAccounts struct {
	accounts map[string]*accountdomain.InvestmentAccount
}

func newFakeAccounts(accounts ...*accountdomain.InvestmentAccount) *fakeAccounts {
	repo := &fakeAccounts{accounts: make(map[string]*accountdomain.InvestmentAccount)}
	for _, a := range accounts {
		copied := *a
		repo.accounts[a.AccountID] = &copied
	}
	return repo
}

func (r *fakeAccounts) Save(ctx context.Context, account *accountdomain.InvestmentAccount) error {
	copied := *account
	r.accounts[account.AccountID] = &copied
	return nil
}

func (r *fakeAccounts) SaveCAS(ctx context.Context, account *accountdomain.InvestmentAccount) error {
	stored, ok := r.accounts[account.AccountID]
	if !ok || stored.Version != account.Version {
		return accountdomain.ErrVersionConflict
	}
	copied := *account
	copied.Version++
	r.accounts[account.AccountID] = &copied
	account.Version++
	return nil
}

func (r *fakeAccounts) Get(ctx context.Context, accountID string) (*accountdomain.InvestmentAccount, error) {
	if stored, ok := r.accounts[accountID]; ok {
		copied := *stored
		return &copied, nil
	}
	return nil, nil
}

func (r *fakeAccounts) ListByUser(ctx context.Context, userID string) ([]*accountdomain.InvestmentAccount, error) {
	return nil, nil
}

func (r *fakeAccounts) ListSettleable(ctx context.Context, clusterID string) ([]*accountdomain.InvestmentAccount, error) {
	var out []*accountdomain.InvestmentAccount
	for _, a := range r.accounts {
		if a.ClusterID == clusterID && a.Status != accountdomain.AccountStatusPending {
			copied := *a
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (r *fakeAccounts) List(ctx context.Context, offset, limit int) ([]*accountdomain.InvestmentAccount, int64, error) {
	return nil, 0, nil
}

func (r *fakeAccounts) Delete(ctx context.Context, accountID string) error {
	delete(r.accounts, accountID)
	return nil
}

type fakeCycleStore struct {
	updated   []*cycledomain.TradeCycle
	completed map[string]bool
}

func (s *fakeCycleStore) Update(ctx context.Context, cycle *cycledomain.TradeCycle) error {
	if s.completed[cycle.CycleID] {
		return cycledomain.ErrCycleCompleted
	}
	copied := *cycle
	s.updated = append(s.updated, &copied)
	if cycle.Status == cycledomain.CycleStatusCompleted {
		if s.completed == nil {
			s.completed = make(map[string]bool)
		}
		s.completed[cycle.CycleID] = true
	}
	return nil
}

type fakeClusterBook struct {
	completed map[string]decimal.Decimal
}

func newFakeClusterBook() *fakeClusterBook {
	return &fakeClusterBook{completed: make(map[string]decimal.Decimal)}
}

func (b *fakeClusterBook) CompleteCycle(ctx context.Context, clusterID, cycleID string, actualRate decimal.Decimal) error {
	b.completed[clusterID] = actualRate
	return nil
}

type fakePublisher struct {
	events  []domain.PayoutEvent
	failFor map[string]bool
}

func (p *fakePublisher) PublishPayout(ctx context.Context, event domain.PayoutEvent) error {
	if p.failFor[event.AccountID] {
		return errors.New("kafka unavailable")
	}
	p.events = append(p.events, event)
	return nil
}

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func activeAccount(id, clusterID string, position int, principal int64, mode accountdomain.ProfitMode) *accountdomain.InvestmentAccount {
	account := accountdomain.NewInvestmentAccount(id, "user-"+id, clusterID, position, "cocoa",
		decimal.NewFromInt(principal), mode)
	if err := account.Activate("INS-" + id); err != nil {
		panic(err)
	}
	return account
}

func processingCycle(id, clusterID string) *cycledomain.TradeCycle {
	cycle := cycledomain.NewTradeCycle(id, clusterID, 1,
		time.Now().Add(-38*24*time.Hour), 37*24*time.Hour, decimal.NewFromFloat(0.10), decimal.NewFromInt(100000))
	cycle.Status = cycledomain.CycleStatusProcessing
	return cycle
}

func newTestEngine(ledger *fakeLedger, accounts *fakeAccounts, cycles *fakeCycleStore, clusters *fakeClusterBook, publisher *fakePublisher) *Engine {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(ledger, accounts, cycles, clusters, publisher, fakeTxRunner{},
		utils.NewSnowflakeID(1), metrics.New("test"), log)
}

func TestSettleDistributesProRata(t *testing.T) {
	ledger := newFakeLedger()
	accounts := newFakeAccounts(
		activeAccount("TPIA1", "GDC-A", 1, 10000, accountdomain.ProfitModeCompounding),
		activeAccount("TPIA2", "GDC-A", 2, 30000, accountdomain.ProfitModePayout),
	)
	cycles := &fakeCycleStore{}
	clusters := newFakeClusterBook()
	publisher := &fakePublisher{}
	engine := newTestEngine(ledger, accounts, cycles, clusters, publisher)

	cycle := processingCycle("CYC1", "GDC-A")
	require.NoError(t, engine.Settle(context.Background(), cycle))

	// 复利账户本值滚入，计数随账一起推进
	compound, _ := accounts.Get(context.Background(), "TPIA1")
	assert.True(t, compound.CurrentValue.Equal(decimal.NewFromInt(11000)),
		"expected 11000, got %s", compound.CurrentValue)
	assert.Equal(t, 1, compound.CyclesCompleted)
	assert.True(t, compound.TotalProfitEarned.Equal(decimal.NewFromInt(1000)))

	// 派息账户本值不变，累计收益照记，事件发出
	payout, _ := accounts.Get(context.Background(), "TPIA2")
	assert.True(t, payout.CurrentValue.Equal(decimal.NewFromInt(30000)))
	assert.Equal(t, 1, payout.CyclesCompleted)
	assert.True(t, payout.TotalProfitEarned.Equal(decimal.NewFromInt(3000)))
	require.Len(t, publisher.events, 1)
	assert.Equal(t, "TPIA2", publisher.events[0].AccountID)
	assert.True(t, publisher.events[0].Amount.Equal(decimal.NewFromInt(3000)))
	assert.NotEmpty(t, publisher.events[0].EntryID)

	// 周期收尾、集群释放
	assert.Equal(t, cycledomain.CycleStatusCompleted, cycle.Status)
	require.Len(t, cycles.updated, 1)
	rate, ok := clusters.completed["GDC-A"]
	require.True(t, ok)
	assert.True(t, rate.Equal(decimal.NewFromFloat(0.10)))

	entries, _ := ledger.ListByCycle(context.Background(), "CYC1")
	assert.Len(t, entries, 2)
}

func TestSettleUsesActualRate(t *testing.T) {
	ledger := newFakeLedger()
	accounts := newFakeAccounts(
		activeAccount("TPIA1", "GDC-A", 1, 10000, accountdomain.ProfitModeCompounding),
	)
	engine := newTestEngine(ledger, accounts, &fakeCycleStore{}, newFakeClusterBook(), &fakePublisher{})

	cycle := processingCycle("CYC1", "GDC-A")
	require.NoError(t, cycle.SetActualRate(decimal.NewFromFloat(0.05)))
	require.NoError(t, engine.Settle(context.Background(), cycle))

	account, _ := accounts.Get(context.Background(), "TPIA1")
	assert.True(t, account.CurrentValue.Equal(decimal.NewFromInt(10500)))
}

func TestSettleIsIdempotent(t *testing.T) {
	ledger := newFakeLedger()
	accounts := newFakeAccounts(
		activeAccount("TPIA1", "GDC-A", 1, 10000, accountdomain.ProfitModeCompounding),
	)
	cycles := &fakeCycleStore{}
	clusters := newFakeClusterBook()
	engine := newTestEngine(ledger, accounts, cycles, clusters, &fakePublisher{})

	first := processingCycle("CYC1", "GDC-A")
	require.NoError(t, engine.Settle(context.Background(), first))

	// 同一周期再次触发：已 COMPLETED，直接返回
	require.NoError(t, engine.Settle(context.Background(), first))

	// 哪怕状态还停在 PROCESSING（调度器视角的陈旧副本），流水唯一索引也挡住二次入账
	stale := processingCycle("CYC1", "GDC-A")
	require.NoError(t, engine.Settle(context.Background(), stale))

	account, _ := accounts.Get(context.Background(), "TPIA1")
	assert.True(t, account.CurrentValue.Equal(decimal.NewFromInt(11000)),
		"profit credited exactly once, got %s", account.CurrentValue)
	entries, _ := ledger.ListByCycle(context.Background(), "CYC1")
	assert.Len(t, entries, 1)
	assert.Len(t, cycles.updated, 1, "stale rerun must not rewrite the completed cycle")
}

func TestSettleResumesAfterPartialFailure(t *testing.T) {
	ledger := newFakeLedger()
	accounts := newFakeAccounts(
		activeAccount("TPIA1", "GDC-A", 1, 10000, accountdomain.ProfitModeCompounding),
		activeAccount("TPIA2", "GDC-A", 2, 20000, accountdomain.ProfitModePayout),
	)
	cycles := &fakeCycleStore{}
	clusters := newFakeClusterBook()
	publisher := &fakePublisher{failFor: map[string]bool{"TPIA2": true}}
	engine := newTestEngine(ledger, accounts, cycles, clusters, publisher)

	cycle := processingCycle("CYC1", "GDC-A")
	err := engine.Settle(context.Background(), cycle)
	require.Error(t, err, "payout publish failure aborts the run")
	assert.Equal(t, cycledomain.CycleStatusProcessing, cycle.Status)
	assert.Empty(t, clusters.completed)

	// 续跑：复利账户不重复入账，派息补发
	publisher.failFor = nil
	require.NoError(t, engine.Settle(context.Background(), cycle))

	compound, _ := accounts.Get(context.Background(), "TPIA1")
	assert.True(t, compound.CurrentValue.Equal(decimal.NewFromInt(11000)),
		"no double credit across retries, got %s", compound.CurrentValue)
	require.Len(t, publisher.events, 1)
	assert.Equal(t, "TPIA2", publisher.events[0].AccountID)
	assert.Equal(t, cycledomain.CycleStatusCompleted, cycle.Status)
}

func TestSettleIncludesSuspendedAccounts(t *testing.T) {
	suspended := activeAccount("TPIA1", "GDC-A", 1, 10000, accountdomain.ProfitModeCompounding)
	require.NoError(t, suspended.Suspend())

	ledger := newFakeLedger()
	accounts := newFakeAccounts(suspended)
	engine := newTestEngine(ledger, accounts, &fakeCycleStore{}, newFakeClusterBook(), &fakePublisher{})

	cycle := processingCycle("CYC1", "GDC-A")
	require.NoError(t, engine.Settle(context.Background(), cycle))

	account, _ := accounts.Get(context.Background(), "TPIA1")
	assert.True(t, account.CurrentValue.Equal(decimal.NewFromInt(11000)),
		"in-flight cycle settles suspended members")
}

func TestSettleExcludesAccountsTerminatedBeforeCycle(t *testing.T) {
	cycle := processingCycle("CYC2", "GDC-A")

	matured := activeAccount("TPIA1", "GDC-A", 1, 10000, accountdomain.ProfitModeCompounding)
	require.NoError(t, matured.Mature())
	matured.StatusChangedAt = cycle.StartAt.Add(-time.Hour)

	frozen := activeAccount("TPIA2", "GDC-A", 2, 20000, accountdomain.ProfitModePayout)
	require.NoError(t, frozen.Suspend())
	frozen.StatusChangedAt = cycle.StartAt.Add(-24 * time.Hour)

	live := activeAccount("TPIA3", "GDC-A", 3, 30000, accountdomain.ProfitModeCompounding)

	ledger := newFakeLedger()
	accounts := newFakeAccounts(matured, frozen, live)
	publisher := &fakePublisher{}
	engine := newTestEngine(ledger, accounts, &fakeCycleStore{}, newFakeClusterBook(), publisher)

	require.NoError(t, engine.Settle(context.Background(), cycle))

	// 周期开始前已退出的账户不分润、不记流水
	stored, _ := accounts.Get(context.Background(), "TPIA1")
	assert.True(t, stored.CurrentValue.Equal(decimal.NewFromInt(10000)),
		"matured before cycle start must not earn, got %s", stored.CurrentValue)
	assert.Equal(t, 0, stored.CyclesCompleted)
	assert.Empty(t, publisher.events, "no payout for members frozen before cycle start")

	entries, _ := ledger.ListByCycle(context.Background(), "CYC2")
	require.Len(t, entries, 1)
	assert.Equal(t, "TPIA3", entries[0].AccountID)

	remaining, _ := accounts.Get(context.Background(), "TPIA3")
	assert.True(t, remaining.CurrentValue.Equal(decimal.NewFromInt(33000)),
		"remaining member keeps its own share, got %s", remaining.CurrentValue)
}

func TestSettleRejectsUnclaimedCycle(t *testing.T) {
	engine := newTestEngine(newFakeLedger(), newFakeAccounts(), &fakeCycleStore{}, newFakeClusterBook(), &fakePublisher{})

	cycle := cycledomain.NewTradeCycle("CYC1", "GDC-A", 1, time.Now(), time.Hour, decimal.NewFromFloat(0.10), decimal.NewFromInt(100000))
	assert.Error(t, engine.Settle(context.Background(), cycle), "ACTIVE cycle must be claimed first")
}
