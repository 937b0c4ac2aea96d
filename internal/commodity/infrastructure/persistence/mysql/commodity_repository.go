package mysql

import (
	"context"
	"errors"

	"github.com/wyfcoding/gdip/internal/commodity/domain"
	pkgdb "github.com/wyfcoding/gdip/pkg/db"
	"gorm.io/gorm"
)

// commodityRepository 商品类型仓储实现
type commodityRepository struct {
	db *gorm.DB
}

// NewCommodityRepository 创建商品类型仓储
func NewCommodityRepository(db *gorm.DB) domain.CommodityRepository {
	return &commodityRepository{db: db}
}

func (r *commodityRepository) Save(ctx context.Context, commodity *domain.CommodityType) error {
	err := r.getDB(ctx).WithContext(ctx).Create(commodity).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrDuplicateCommodityType
	}
	return err
}

func (r *commodityRepository) Update(ctx context.Context, commodity *domain.CommodityType) error {
	return r.getDB(ctx).WithContext(ctx).Model(&domain.CommodityType{}).
		Where("id = ?", commodity.ID).
		Updates(map[string]any{
			"label":  commodity.Label,
			"icon":   commodity.Icon,
			"active": commodity.Active,
		}).Error
}

func (r *commodityRepository) GetByID(ctx context.Context, id uint) (*domain.CommodityType, error) {
	var commodity domain.CommodityType
	if err := r.getDB(ctx).WithContext(ctx).First(&commodity, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &commodity, nil
}

func (r *commodityRepository) GetByName(ctx context.Context, name string) (*domain.CommodityType, error) {
	var commodity domain.CommodityType
	if err := r.getDB(ctx).WithContext(ctx).Where("name = ?", name).First(&commodity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &commodity, nil
}

func (r *commodityRepository) List(ctx context.Context, activeOnly bool) ([]*domain.CommodityType, error) {
	var commodities []*domain.CommodityType
	query := r.getDB(ctx).WithContext(ctx)
	if activeOnly {
		query = query.Where("active = ?", true)
	}
	if err := query.Order("name asc").Find(&commodities).Error; err != nil {
		return nil, err
	}
	return commodities, nil
}

func (r *commodityRepository) getDB(ctx context.Context) *gorm.DB {
	return pkgdb.FromContext(ctx, r.db)
}
