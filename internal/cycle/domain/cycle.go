package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrCycleNotFound 周期不存在
var ErrCycleNotFound = errors.New("trade cycle not found")

// ErrCycleOverlap 同一集群出现多个在途周期；属不变量违规，必须告警
var ErrCycleOverlap = errors.New("cluster already has a live trade cycle")

// ErrCycleCompleted 周期已结算完成，不可再修改
var ErrCycleCompleted = errors.New("trade cycle already completed")

// CycleStatus 周期状态
type CycleStatus int8

const (
	CycleStatusActive     CycleStatus = 1 // 周期运行中
	CycleStatusProcessing CycleStatus = 2 // 到期，结算进行中
	CycleStatusCompleted  CycleStatus = 3 // 分润完成
)

func (s CycleStatus) String() string {
	switch s {
	case CycleStatusActive:
		return "ACTIVE"
	case CycleStatusProcessing:
		return "PROCESSING"
	case CycleStatusCompleted:
		return "COMPLETED"
	default:
		return "UNKNOWN"
	}
}

// TradeCycle 交易周期聚合根
// 不变量：单集群同一时刻至多一个非 COMPLETED 周期
type TradeCycle struct {
	gorm.Model
	CycleID          string           `gorm:"column:cycle_id;type:varchar(64);uniqueIndex;not null" json:"cycle_id"`
	ClusterID        string           `gorm:"column:cluster_id;type:varchar(64);index;not null" json:"cluster_id"`
	Sequence         int              `gorm:"column:sequence;not null" json:"sequence"`
	Status           CycleStatus      `gorm:"column:status;type:tinyint;not null;default:1" json:"status"`
	StartAt          time.Time        `gorm:"column:start_at;not null" json:"start_at"`
	EndAt            time.Time        `gorm:"column:end_at;not null;index" json:"end_at"`
	TargetProfitRate decimal.Decimal  `gorm:"column:target_profit_rate;type:decimal(10,6);not null" json:"target_profit_rate"`
	ActualProfitRate *decimal.Decimal `gorm:"column:actual_profit_rate;type:decimal(10,6)" json:"actual_profit_rate,omitempty"`
	// TotalCapital 周期启动时的集群资金快照，之后不随成员状态变化
	TotalCapital  decimal.Decimal `gorm:"column:total_capital;type:decimal(20,2);not null" json:"total_capital"`
	DistributedAt *time.Time      `gorm:"column:distributed_at" json:"distributed_at,omitempty"`
}

// TableName 表名
func (TradeCycle) TableName() string {
	return "trade_cycles"
}

// NewTradeCycle 启动一个新周期，totalCapital 为启动时的集群资金快照
func NewTradeCycle(cycleID, clusterID string, sequence int, startAt time.Time, duration time.Duration, targetRate, totalCapital decimal.Decimal) *TradeCycle {
	return &TradeCycle{
		CycleID:          cycleID,
		ClusterID:        clusterID,
		Sequence:         sequence,
		Status:           CycleStatusActive,
		StartAt:          startAt,
		EndAt:            startAt.Add(duration),
		TargetProfitRate: targetRate,
		TotalCapital:     totalCapital,
	}
}

// Due 周期是否到期
func (c *TradeCycle) Due(now time.Time) bool {
	return c.Status == CycleStatusActive && !now.Before(c.EndAt)
}

// SetActualRate 录入实际收益率；完成后不可改
func (c *TradeCycle) SetActualRate(rate decimal.Decimal) error {
	if c.Status == CycleStatusCompleted {
		return ErrCycleCompleted
	}
	c.ActualProfitRate = &rate
	return nil
}

// EffectiveRate 结算使用的收益率：录入了实际值用实际值，否则回落到目标值
func (c *TradeCycle) EffectiveRate() decimal.Decimal {
	if c.ActualProfitRate != nil {
		return *c.ActualProfitRate
	}
	return c.TargetProfitRate
}

// MarkDistributed 分润完成 PROCESSING→COMPLETED
func (c *TradeCycle) MarkDistributed(rate decimal.Decimal, now time.Time) error {
	if c.Status != CycleStatusProcessing {
		return fmt.Errorf("invalid status for distribution: %s", c.Status)
	}
	c.Status = CycleStatusCompleted
	c.ActualProfitRate = &rate
	c.DistributedAt = &now
	return nil
}
