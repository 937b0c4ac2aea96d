package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wyfcoding/gdip/internal/commodity/domain"
)

// RegistryService 商品类型注册表应用服务
type RegistryService struct {
	repo   domain.CommodityRepository
	logger *slog.Logger
}

// NewRegistryService 创建商品类型注册表服务
func NewRegistryService(repo domain.CommodityRepository, logger *slog.Logger) *RegistryService {
	return &RegistryService{repo: repo, logger: logger}
}

// CreateCommand 创建商品类型命令
type CreateCommand struct {
	Name  string
	Label string
	Icon  string
}

// Create 新建商品类型，默认启用
func (s *RegistryService) Create(ctx context.Context, cmd CreateCommand) (*domain.CommodityType, error) {
	if cmd.Name == "" || cmd.Label == "" {
		return nil, fmt.Errorf("%w: name and label are required", domain.ErrInvalidCommodityType)
	}

	existing, err := s.repo.GetByName(ctx, cmd.Name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrDuplicateCommodityType
	}

	commodity := &domain.CommodityType{
		Name:   cmd.Name,
		Label:  cmd.Label,
		Icon:   cmd.Icon,
		Active: true,
	}
	if err := s.repo.Save(ctx, commodity); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "commodity type created", "name", cmd.Name)
	return commodity, nil
}

// UpdateCommand 编辑商品类型命令；nil 字段保持不变
type UpdateCommand struct {
	Label  *string
	Icon   *string
	Active *bool
}

// Update 编辑 label/icon 或切换启停；类型从不物理删除
func (s *RegistryService) Update(ctx context.Context, id uint, cmd UpdateCommand) (*domain.CommodityType, error) {
	commodity, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if commodity == nil {
		return nil, domain.ErrInvalidCommodityType
	}

	if cmd.Label != nil {
		commodity.Label = *cmd.Label
	}
	if cmd.Icon != nil {
		commodity.Icon = *cmd.Icon
	}
	if cmd.Active != nil {
		if *cmd.Active {
			commodity.Activate()
		} else {
			commodity.Deactivate()
		}
	}

	if err := s.repo.Update(ctx, commodity); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "commodity type updated",
		"name", commodity.Name, "active", commodity.Active)
	return commodity, nil
}

// Validate 校验商品类型可用于新认购；仅在认购时调用，从不回溯校验存量账户
func (s *RegistryService) Validate(ctx context.Context, name string) error {
	commodity, err := s.repo.GetByName(ctx, name)
	if err != nil {
		return err
	}
	if commodity == nil || !commodity.Active {
		return fmt.Errorf("%w: %s", domain.ErrInvalidCommodityType, name)
	}
	return nil
}

// List 列出商品类型；storefront 只看启用的
func (s *RegistryService) List(ctx context.Context, activeOnly bool) ([]*domain.CommodityType, error) {
	return s.repo.List(ctx, activeOnly)
}
