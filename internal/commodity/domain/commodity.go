package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// ErrInvalidCommodityType 认购时商品类型不存在或已停用
var ErrInvalidCommodityType = errors.New("invalid commodity type")

// ErrDuplicateCommodityType 商品类型名称已存在
var ErrDuplicateCommodityType = errors.New("commodity type already exists")

// CommodityType 商品类型聚合根
// 被账户引用后即为不可变参照：停用仅阻止新认购，从不影响存量账户
type CommodityType struct {
	gorm.Model
	Name   string `gorm:"column:name;type:varchar(64);uniqueIndex;not null" json:"name"`
	Label  string `gorm:"column:label;type:varchar(128);not null" json:"label"`
	Icon   string `gorm:"column:icon;type:varchar(255)" json:"icon"`
	Active bool   `gorm:"column:active;not null;default:true" json:"active"`
}

// TableName 表名
func (CommodityType) TableName() string {
	return "commodity_types"
}

// Deactivate 停用商品类型，仅对新认购生效
func (t *CommodityType) Deactivate() {
	t.Active = false
}

// Activate 重新启用商品类型
func (t *CommodityType) Activate() {
	t.Active = true
}

// CommodityRepository 商品类型仓储接口
type CommodityRepository interface {
	Save(ctx context.Context, commodity *CommodityType) error
	Update(ctx context.Context, commodity *CommodityType) error
	GetByID(ctx context.Context, id uint) (*CommodityType, error)
	GetByName(ctx context.Context, name string) (*CommodityType, error)
	List(ctx context.Context, activeOnly bool) ([]*CommodityType, error)
}
