package application

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/gdip/internal/cluster/domain"
	"github.com/wyfcoding/gdip/pkg/metrics"
	"github.com/wyfcoding/gdip/pkg/utils"
	"gorm.io/gorm"
)

type fakeClusterRepo struct {
	mu          sync.Mutex
	clusters    map[string]*domain.Cluster
	failCASOnce bool
	saveErr     error
}

func newFakeClusterRepo() *fakeClusterRepo {
	return &fakeClusterRepo{clusters: make(map[string]*domain.Cluster)}
}

func (r *fakeClusterRepo) Save(ctx context.Context, cluster *domain.Cluster) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	for _, c := range r.clusters {
		if c.Number == cluster.Number {
			return gorm.ErrDuplicatedKey
		}
	}
	copied := *cluster
	r.clusters[cluster.ClusterID] = &copied
	return nil
}

func (r *fakeClusterRepo) SaveCAS(ctx context.Context, cluster *domain.Cluster) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCASOnce {
		r.failCASOnce = false
		return domain.ErrVersionConflict
	}
	stored, ok := r.clusters[cluster.ClusterID]
	if !ok || stored.Version != cluster.Version {
		return domain.ErrVersionConflict
	}
	copied := *cluster
	copied.Version++
	r.clusters[cluster.ClusterID] = &copied
	cluster.Version++
	return nil
}

func (r *fakeClusterRepo) Get(ctx context.Context, clusterID string) (*domain.Cluster, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.clusters[clusterID]
	if !ok {
		return nil, nil
	}
	copied := *stored
	return &copied, nil
}

func (r *fakeClusterRepo) FindFirstFit(ctx context.Context, primaryCommodity string, excluded []string) (*domain.Cluster, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	skip := make(map[string]bool, len(excluded))
	for _, id := range excluded {
		skip[id] = true
	}

	var candidates []*domain.Cluster
	for _, c := range r.clusters {
		if c.PrimaryCommodity == primaryCommodity && c.CurrentFill < c.Capacity && !skip[c.ClusterID] {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Number < candidates[j].Number })
	copied := *candidates[0]
	return &copied, nil
}

func (r *fakeClusterRepo) NextNumber(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var max int64
	for _, c := range r.clusters {
		if c.Number > max {
			max = c.Number
		}
	}
	return max + 1, nil
}

func (r *fakeClusterRepo) ListByStatus(ctx context.Context, status domain.ClusterStatus) ([]*domain.Cluster, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Cluster
	for _, c := range r.clusters {
		if c.Status == status {
			copied := *c
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (r *fakeClusterRepo) List(ctx context.Context, offset, limit int) ([]*domain.Cluster, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Cluster
	for _, c := range r.clusters {
		copied := *c
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, int64(len(out)), nil
}

func (r *fakeClusterRepo) CountByStatus(ctx context.Context, status domain.ClusterStatus) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, c := range r.clusters {
		if c.Status == status {
			n++
		}
	}
	return n, nil
}

type fakeSlotRepo struct {
	mu    sync.Mutex
	slots map[string]map[int]*domain.ClusterSlot
}

func newFakeSlotRepo() *fakeSlotRepo {
	return &fakeSlotRepo{slots: make(map[string]map[int]*domain.ClusterSlot)}
}

func (r *fakeSlotRepo) Create(ctx context.Context, slot *domain.ClusterSlot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	byPos, ok := r.slots[slot.ClusterID]
	if !ok {
		byPos = make(map[int]*domain.ClusterSlot)
		r.slots[slot.ClusterID] = byPos
	}
	if _, exists := byPos[slot.Position]; exists {
		return domain.ErrPositionTaken
	}
	copied := *slot
	byPos[slot.Position] = &copied
	return nil
}

func (r *fakeSlotRepo) Get(ctx context.Context, clusterID string, position int) (*domain.ClusterSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if slot, ok := r.slots[clusterID][position]; ok {
		copied := *slot
		return &copied, nil
	}
	return nil, nil
}

func (r *fakeSlotRepo) ListActive(ctx context.Context, clusterID string) ([]*domain.ClusterSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.ClusterSlot
	for _, slot := range r.slots[clusterID] {
		if slot.State == domain.SlotStateReserved || slot.State == domain.SlotStateCommitted {
			copied := *slot
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (r *fakeSlotRepo) TransitionState(ctx context.Context, clusterID string, position int, from, to domain.SlotState, accountID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot, ok := r.slots[clusterID][position]
	if !ok || slot.State != from {
		return false, nil
	}
	slot.State = to
	if accountID != "" {
		slot.AccountID = accountID
	}
	return true, nil
}

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func newTestPool(t *testing.T, clusters *fakeClusterRepo, slots *fakeSlotRepo, capacity int) *PoolService {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPoolService(clusters, slots, fakeTxRunner{}, utils.NewSnowflakeID(1),
		metrics.New("test"), log, capacity)
}

func TestAcquireSlotOpensClusterWhenNoneFit(t *testing.T) {
	clusters := newFakeClusterRepo()
	slots := newFakeSlotRepo()
	pool := newTestPool(t, clusters, slots, 10)

	reservation, err := pool.AcquireSlot(context.Background(), "cocoa")
	require.NoError(t, err)
	assert.Equal(t, int64(1), reservation.ClusterNumber)
	assert.Equal(t, 1, reservation.Position)

	stored, _ := clusters.Get(context.Background(), reservation.ClusterID)
	require.NotNil(t, stored)
	assert.Equal(t, domain.ClusterStatusForming, stored.Status)
	assert.Equal(t, "cocoa", stored.PrimaryCommodity)
}

func TestAcquireSlotPrefersLowestNumber(t *testing.T) {
	clusters := newFakeClusterRepo()
	slots := newFakeSlotRepo()
	pool := newTestPool(t, clusters, slots, 10)

	older := domain.NewCluster("GDC-A", 1, 10, "cocoa")
	older.CurrentFill = 4
	require.NoError(t, clusters.Save(context.Background(), older))
	newer := domain.NewCluster("GDC-B", 2, 10, "cocoa")
	require.NoError(t, clusters.Save(context.Background(), newer))
	for pos := 1; pos <= 4; pos++ {
		require.NoError(t, slots.Create(context.Background(), &domain.ClusterSlot{
			ClusterID: "GDC-A", Position: pos, State: domain.SlotStateCommitted,
		}))
	}

	reservation, err := pool.AcquireSlot(context.Background(), "cocoa")
	require.NoError(t, err)
	assert.Equal(t, "GDC-A", reservation.ClusterID)
	assert.Equal(t, 5, reservation.Position)
}

func TestAcquireSlotIgnoresOtherCommodity(t *testing.T) {
	clusters := newFakeClusterRepo()
	slots := newFakeSlotRepo()
	pool := newTestPool(t, clusters, slots, 10)

	require.NoError(t, clusters.Save(context.Background(), domain.NewCluster("GDC-A", 1, 10, "coffee")))

	reservation, err := pool.AcquireSlot(context.Background(), "cocoa")
	require.NoError(t, err)
	assert.NotEqual(t, "GDC-A", reservation.ClusterID)
}

func TestAcquireSlotReclaimsReleasedPosition(t *testing.T) {
	clusters := newFakeClusterRepo()
	slots := newFakeSlotRepo()
	pool := newTestPool(t, clusters, slots, 10)

	require.NoError(t, clusters.Save(context.Background(), domain.NewCluster("GDC-A", 1, 10, "cocoa")))
	require.NoError(t, slots.Create(context.Background(), &domain.ClusterSlot{
		ClusterID: "GDC-A", Position: 1, State: domain.SlotStateReleased,
	}))

	reservation, err := pool.AcquireSlot(context.Background(), "cocoa")
	require.NoError(t, err)
	assert.Equal(t, "GDC-A", reservation.ClusterID)
	assert.Equal(t, 1, reservation.Position, "released position is claimable again")

	slot, _ := slots.Get(context.Background(), "GDC-A", 1)
	assert.Equal(t, domain.SlotStateReserved, slot.State)
}

func TestAcquireSlotMovesOnWhenClusterContended(t *testing.T) {
	clusters := newFakeClusterRepo()
	slots := newFakeSlotRepo()
	pool := newTestPool(t, clusters, slots, 2)

	// 集群读出来还有空位，但两个位置都已被并发占走
	contended := domain.NewCluster("GDC-A", 1, 2, "cocoa")
	contended.CurrentFill = 1
	require.NoError(t, clusters.Save(context.Background(), contended))
	for pos := 1; pos <= 2; pos++ {
		require.NoError(t, slots.Create(context.Background(), &domain.ClusterSlot{
			ClusterID: "GDC-A", Position: pos, State: domain.SlotStateReserved,
		}))
	}

	reservation, err := pool.AcquireSlot(context.Background(), "cocoa")
	require.NoError(t, err)
	assert.NotEqual(t, "GDC-A", reservation.ClusterID, "contended cluster is skipped")
	assert.Equal(t, int64(2), reservation.ClusterNumber)
}

func TestCommitSlotFillsClusterToReady(t *testing.T) {
	clusters := newFakeClusterRepo()
	slots := newFakeSlotRepo()
	pool := newTestPool(t, clusters, slots, 1)

	reservation, err := pool.AcquireSlot(context.Background(), "cocoa")
	require.NoError(t, err)

	amount := decimal.NewFromInt(10000)
	require.NoError(t, pool.CommitSlot(context.Background(),
		reservation.ClusterID, reservation.Position, "TPIA1", amount))

	cluster, _ := clusters.Get(context.Background(), reservation.ClusterID)
	assert.Equal(t, domain.ClusterStatusReady, cluster.Status)
	assert.Equal(t, 1, cluster.CurrentFill)
	assert.True(t, cluster.TotalCapital.Equal(amount))

	slot, _ := slots.Get(context.Background(), reservation.ClusterID, reservation.Position)
	assert.Equal(t, domain.SlotStateCommitted, slot.State)
	assert.Equal(t, "TPIA1", slot.AccountID)

	members, err := pool.CommittedMembers(context.Background(), reservation.ClusterID)
	require.NoError(t, err)
	assert.Equal(t, []string{"TPIA1"}, members)
}

func TestCommitSlotRetriesVersionConflict(t *testing.T) {
	clusters := newFakeClusterRepo()
	slots := newFakeSlotRepo()
	pool := newTestPool(t, clusters, slots, 10)

	reservation, err := pool.AcquireSlot(context.Background(), "cocoa")
	require.NoError(t, err)

	clusters.failCASOnce = true
	require.NoError(t, pool.CommitSlot(context.Background(),
		reservation.ClusterID, reservation.Position, "TPIA1", decimal.NewFromInt(10000)))

	cluster, _ := clusters.Get(context.Background(), reservation.ClusterID)
	assert.Equal(t, 1, cluster.CurrentFill)
}

func TestCommitSlotRejectsUnreservedPosition(t *testing.T) {
	clusters := newFakeClusterRepo()
	slots := newFakeSlotRepo()
	pool := newTestPool(t, clusters, slots, 10)

	require.NoError(t, clusters.Save(context.Background(), domain.NewCluster("GDC-A", 1, 10, "cocoa")))

	err := pool.CommitSlot(context.Background(), "GDC-A", 1, "TPIA1", decimal.NewFromInt(10000))
	assert.Error(t, err)
}

func TestReleaseSlotFreesPosition(t *testing.T) {
	clusters := newFakeClusterRepo()
	slots := newFakeSlotRepo()
	pool := newTestPool(t, clusters, slots, 10)

	reservation, err := pool.AcquireSlot(context.Background(), "cocoa")
	require.NoError(t, err)

	require.NoError(t, pool.ReleaseSlot(context.Background(), reservation.ClusterID, reservation.Position))
	slot, _ := slots.Get(context.Background(), reservation.ClusterID, reservation.Position)
	assert.Equal(t, domain.SlotStateReleased, slot.State)

	// 释放后的位置可再次被占
	again, err := pool.AcquireSlot(context.Background(), "cocoa")
	require.NoError(t, err)
	assert.Equal(t, reservation.ClusterID, again.ClusterID)
	assert.Equal(t, reservation.Position, again.Position)
}

func TestAcquireSlotConcurrentFillsExactlyToCapacity(t *testing.T) {
	clusters := newFakeClusterRepo()
	slots := newFakeSlotRepo()
	pool := newTestPool(t, clusters, slots, 5)

	require.NoError(t, clusters.Save(context.Background(), domain.NewCluster("GDC-A", 1, 5, "cocoa")))
	// 关闭自动开簇，竞争只能落在这 5 个位置上
	clusters.saveErr = errors.New("cluster creation disabled")

	const buyers = 25
	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		reservations []*SlotReservation
		failures     int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reservation, err := pool.AcquireSlot(context.Background(), "cocoa")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
				return
			}
			reservations = append(reservations, reservation)
		}()
	}
	wg.Wait()

	require.Len(t, reservations, 5, "exactly capacity admissions succeed")
	assert.Equal(t, buyers-5, failures)

	positions := make(map[int]bool, len(reservations))
	for _, r := range reservations {
		assert.Equal(t, "GDC-A", r.ClusterID)
		assert.False(t, positions[r.Position], "position %d handed out twice", r.Position)
		assert.GreaterOrEqual(t, r.Position, 1)
		assert.LessOrEqual(t, r.Position, 5)
		positions[r.Position] = true
	}
}

func TestAcquireSlotConcurrentNeverOverfillsCluster(t *testing.T) {
	clusters := newFakeClusterRepo()
	slots := newFakeSlotRepo()
	pool := newTestPool(t, clusters, slots, 3)

	const buyers = 10
	var (
		wg sync.WaitGroup
		mu sync.Mutex
		// 每个 (cluster, position) 至多被占一次
		seen    = make(map[string]map[int]bool)
		perSize = make(map[string]int)
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reservation, err := pool.AcquireSlot(context.Background(), "cocoa")
			if err != nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if seen[reservation.ClusterID] == nil {
				seen[reservation.ClusterID] = make(map[int]bool)
			}
			assert.False(t, seen[reservation.ClusterID][reservation.Position],
				"slot %s/%d handed out twice", reservation.ClusterID, reservation.Position)
			seen[reservation.ClusterID][reservation.Position] = true
			perSize[reservation.ClusterID]++
		}()
	}
	wg.Wait()

	total := 0
	for clusterID, n := range perSize {
		assert.LessOrEqual(t, n, 3, "cluster %s overfilled", clusterID)
		total += n
	}
	assert.GreaterOrEqual(t, total, 3, "open clusters absorb at least one full cluster of buyers")
}

func TestCompleteCycleSkipsWhenUnbound(t *testing.T) {
	clusters := newFakeClusterRepo()
	slots := newFakeSlotRepo()
	pool := newTestPool(t, clusters, slots, 1)

	cluster := domain.NewCluster("GDC-A", 1, 1, "cocoa")
	require.NoError(t, cluster.AdmitMember(decimal.NewFromInt(10000)))
	require.NoError(t, cluster.Activate("CYC1"))
	require.NoError(t, clusters.Save(context.Background(), cluster))

	// 已绑定 CYC1，完成 CYC2 是续跑残留，应当跳过
	require.NoError(t, pool.CompleteCycle(context.Background(), "GDC-A", "CYC2", decimal.NewFromFloat(0.10)))
	stored, _ := clusters.Get(context.Background(), "GDC-A")
	assert.Equal(t, domain.ClusterStatusActive, stored.Status)

	require.NoError(t, pool.CompleteCycle(context.Background(), "GDC-A", "CYC1", decimal.NewFromFloat(0.10)))
	stored, _ = clusters.Get(context.Background(), "GDC-A")
	assert.Equal(t, domain.ClusterStatusReady, stored.Status)
	assert.Equal(t, 1, stored.CyclesCompleted)
}
