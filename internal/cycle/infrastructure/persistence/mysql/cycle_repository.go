package mysql

import (
	"context"
	"errors"
	"time"

	"github.com/wyfcoding/gdip/internal/cycle/domain"
	pkgdb "github.com/wyfcoding/gdip/pkg/db"
	"gorm.io/gorm"
)

// cycleRepository 交易周期仓储实现
type cycleRepository struct {
	db *gorm.DB
}

// NewCycleRepository 创建交易周期仓储
func NewCycleRepository(db *gorm.DB) domain.CycleRepository {
	return &cycleRepository{db: db}
}

func (r *cycleRepository) Save(ctx context.Context, cycle *domain.TradeCycle) error {
	return r.getDB(ctx).WithContext(ctx).Create(cycle).Error
}

// Update 回写周期；COMPLETED 是终态，条件更新挡住并发完成后的改写
func (r *cycleRepository) Update(ctx context.Context, cycle *domain.TradeCycle) error {
	result := r.getDB(ctx).WithContext(ctx).
		Model(&domain.TradeCycle{}).
		Where("cycle_id = ? AND status <> ?", cycle.CycleID, domain.CycleStatusCompleted).
		Updates(map[string]any{
			"status":             cycle.Status,
			"actual_profit_rate": cycle.ActualProfitRate,
			"distributed_at":     cycle.DistributedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrCycleCompleted
	}
	return nil
}

func (r *cycleRepository) Get(ctx context.Context, cycleID string) (*domain.TradeCycle, error) {
	var cycle domain.TradeCycle
	if err := r.getDB(ctx).WithContext(ctx).
		Where("cycle_id = ?", cycleID).
		First(&cycle).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cycle, nil
}

func (r *cycleRepository) GetLiveByCluster(ctx context.Context, clusterID string) (*domain.TradeCycle, error) {
	var cycle domain.TradeCycle
	if err := r.getDB(ctx).WithContext(ctx).
		Where("cluster_id = ? AND status IN ?", clusterID,
			[]domain.CycleStatus{domain.CycleStatusActive, domain.CycleStatusProcessing}).
		First(&cycle).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cycle, nil
}

func (r *cycleRepository) ListDue(ctx context.Context, now time.Time) ([]*domain.TradeCycle, error) {
	var cycles []*domain.TradeCycle
	if err := r.getDB(ctx).WithContext(ctx).
		Where("status = ? AND end_at <= ?", domain.CycleStatusActive, now).
		Order("end_at asc").
		Find(&cycles).Error; err != nil {
		return nil, err
	}
	return cycles, nil
}

func (r *cycleRepository) ListProcessing(ctx context.Context) ([]*domain.TradeCycle, error) {
	var cycles []*domain.TradeCycle
	if err := r.getDB(ctx).WithContext(ctx).
		Where("status = ?", domain.CycleStatusProcessing).
		Order("end_at asc").
		Find(&cycles).Error; err != nil {
		return nil, err
	}
	return cycles, nil
}

// ClaimProcessing ACTIVE→PROCESSING 的 CAS，多实例下只有一个结算者胜出
func (r *cycleRepository) ClaimProcessing(ctx context.Context, cycleID string) (bool, error) {
	result := r.getDB(ctx).WithContext(ctx).
		Model(&domain.TradeCycle{}).
		Where("cycle_id = ? AND status = ?", cycleID, domain.CycleStatusActive).
		Update("status", domain.CycleStatusProcessing)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *cycleRepository) List(ctx context.Context, clusterID string, offset, limit int) ([]*domain.TradeCycle, int64, error) {
	var cycles []*domain.TradeCycle
	var total int64

	countQuery := r.getDB(ctx).WithContext(ctx).Model(&domain.TradeCycle{})
	if clusterID != "" {
		countQuery = countQuery.Where("cluster_id = ?", clusterID)
	}
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query := r.getDB(ctx).WithContext(ctx)
	if clusterID != "" {
		query = query.Where("cluster_id = ?", clusterID)
	}
	if err := query.Order("start_at desc").Offset(offset).Limit(limit).
		Find(&cycles).Error; err != nil {
		return nil, 0, err
	}
	return cycles, total, nil
}

func (r *cycleRepository) getDB(ctx context.Context) *gorm.DB {
	return pkgdb.FromContext(ctx, r.db)
}
