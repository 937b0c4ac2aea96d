package mysql

import (
	"context"
	"errors"

	"github.com/wyfcoding/gdip/internal/cluster/domain"
	pkgdb "github.com/wyfcoding/gdip/pkg/db"
	"gorm.io/gorm"
)

// clusterRepository 集群仓储实现
type clusterRepository struct {
	db *gorm.DB
}

// NewClusterRepository 创建集群仓储
func NewClusterRepository(db *gorm.DB) domain.ClusterRepository {
	return &clusterRepository{db: db}
}

func (r *clusterRepository) Save(ctx context.Context, cluster *domain.Cluster) error {
	return r.getDB(ctx).WithContext(ctx).Create(cluster).Error
}

// SaveCAS 带乐观锁更新集群聚合，version 条件更新 + RowsAffected 判定
func (r *clusterRepository) SaveCAS(ctx context.Context, cluster *domain.Cluster) error {
	currentVersion := cluster.Version
	result := r.getDB(ctx).WithContext(ctx).Model(&domain.Cluster{}).
		Where("cluster_id = ? AND version = ?", cluster.ClusterID, currentVersion).
		Updates(map[string]any{
			"current_fill":     cluster.CurrentFill,
			"status":           cluster.Status,
			"total_capital":    cluster.TotalCapital,
			"cycles_completed": cluster.CyclesCompleted,
			"average_roi":      cluster.AverageROI,
			"active_cycle_id":  cluster.ActiveCycleID,
			"version":          currentVersion + 1,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrVersionConflict
	}

	cluster.Version = currentVersion + 1
	return nil
}

func (r *clusterRepository) Get(ctx context.Context, clusterID string) (*domain.Cluster, error) {
	var cluster domain.Cluster
	if err := r.getDB(ctx).WithContext(ctx).Where("cluster_id = ?", clusterID).First(&cluster).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cluster, nil
}

func (r *clusterRepository) FindFirstFit(ctx context.Context, primaryCommodity string, excluded []string) (*domain.Cluster, error) {
	var cluster domain.Cluster
	query := r.getDB(ctx).WithContext(ctx).
		Where("primary_commodity = ? AND current_fill < capacity", primaryCommodity)
	if len(excluded) > 0 {
		query = query.Where("cluster_id NOT IN ?", excluded)
	}
	if err := query.Order("number asc").First(&cluster).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cluster, nil
}

func (r *clusterRepository) NextNumber(ctx context.Context) (int64, error) {
	var maxNumber int64
	err := r.getDB(ctx).WithContext(ctx).Model(&domain.Cluster{}).
		Select("COALESCE(MAX(number), 0)").Scan(&maxNumber).Error
	if err != nil {
		return 0, err
	}
	return maxNumber + 1, nil
}

func (r *clusterRepository) ListByStatus(ctx context.Context, status domain.ClusterStatus) ([]*domain.Cluster, error) {
	var clusters []*domain.Cluster
	if err := r.getDB(ctx).WithContext(ctx).
		Where("status = ?", status).
		Order("number asc").
		Find(&clusters).Error; err != nil {
		return nil, err
	}
	return clusters, nil
}

func (r *clusterRepository) List(ctx context.Context, offset, limit int) ([]*domain.Cluster, int64, error) {
	var clusters []*domain.Cluster
	var total int64

	if err := r.getDB(ctx).WithContext(ctx).Model(&domain.Cluster{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := r.getDB(ctx).WithContext(ctx).
		Order("number asc").Offset(offset).Limit(limit).
		Find(&clusters).Error; err != nil {
		return nil, 0, err
	}
	return clusters, total, nil
}

func (r *clusterRepository) CountByStatus(ctx context.Context, status domain.ClusterStatus) (int64, error) {
	var count int64
	err := r.getDB(ctx).WithContext(ctx).Model(&domain.Cluster{}).
		Where("status = ?", status).Count(&count).Error
	return count, err
}

func (r *clusterRepository) getDB(ctx context.Context) *gorm.DB {
	return pkgdb.FromContext(ctx, r.db)
}

// slotRepository 槽位仓储实现
type slotRepository struct {
	db *gorm.DB
}

// NewSlotRepository 创建槽位仓储
func NewSlotRepository(db *gorm.DB) domain.SlotRepository {
	return &slotRepository{db: db}
}

// Create 占位写入；(cluster_id, position) 唯一索引冲突即竞争失败
func (r *slotRepository) Create(ctx context.Context, slot *domain.ClusterSlot) error {
	err := r.getDB(ctx).WithContext(ctx).Create(slot).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrPositionTaken
	}
	return err
}

func (r *slotRepository) Get(ctx context.Context, clusterID string, position int) (*domain.ClusterSlot, error) {
	var slot domain.ClusterSlot
	if err := r.getDB(ctx).WithContext(ctx).
		Where("cluster_id = ? AND position = ?", clusterID, position).
		First(&slot).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &slot, nil
}

func (r *slotRepository) ListActive(ctx context.Context, clusterID string) ([]*domain.ClusterSlot, error) {
	var slots []*domain.ClusterSlot
	if err := r.getDB(ctx).WithContext(ctx).
		Where("cluster_id = ? AND state IN ?", clusterID,
			[]domain.SlotState{domain.SlotStateReserved, domain.SlotStateCommitted}).
		Order("position asc").
		Find(&slots).Error; err != nil {
		return nil, err
	}
	return slots, nil
}

// TransitionState 槽位状态 CAS，from 不匹配时返回 false
func (r *slotRepository) TransitionState(ctx context.Context, clusterID string, position int, from, to domain.SlotState, accountID string) (bool, error) {
	updates := map[string]any{"state": to}
	if accountID != "" {
		updates["account_id"] = accountID
	}
	result := r.getDB(ctx).WithContext(ctx).Model(&domain.ClusterSlot{}).
		Where("cluster_id = ? AND position = ? AND state = ?", clusterID, position, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *slotRepository) getDB(ctx context.Context) *gorm.DB {
	return pkgdb.FromContext(ctx, r.db)
}
