package application

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/gdip/internal/cycle/domain"
	"github.com/wyfcoding/gdip/pkg/utils"
)

// CycleService 周期查询与管理服务
type CycleService struct {
	cycles domain.CycleRepository
	logger *slog.Logger
}

// NewCycleService 创建周期服务
func NewCycleService(cycles domain.CycleRepository, logger *slog.Logger) *CycleService {
	return &CycleService{cycles: cycles, logger: logger}
}

// Get 周期详情
func (s *CycleService) Get(ctx context.Context, cycleID string) (*domain.TradeCycle, error) {
	cycle, err := s.cycles.Get(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	if cycle == nil {
		return nil, domain.ErrCycleNotFound
	}
	return cycle, nil
}

// List 管理端分页列出周期，可按集群过滤
func (s *CycleService) List(ctx context.Context, clusterID string, page, pageSize int) ([]*domain.TradeCycle, *utils.Pagination, error) {
	p := utils.NewPagination(page, pageSize, 0)
	cycles, total, err := s.cycles.List(ctx, clusterID, p.Offset(), p.Limit())
	if err != nil {
		return nil, nil, err
	}
	return cycles, utils.NewPagination(page, pageSize, total), nil
}

// SetActualRate 录入周期实际收益率；未录入的周期按目标收益率结算
func (s *CycleService) SetActualRate(ctx context.Context, cycleID string, rate decimal.Decimal) (*domain.TradeCycle, error) {
	cycle, err := s.cycles.Get(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	if cycle == nil {
		return nil, domain.ErrCycleNotFound
	}
	if err := cycle.SetActualRate(rate); err != nil {
		return nil, err
	}
	if err := s.cycles.Update(ctx, cycle); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "actual profit rate recorded",
		"cycle_id", cycleID, "rate", rate)
	return cycle, nil
}
