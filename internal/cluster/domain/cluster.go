package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrCapacityExceeded 槽位竞争失败或集群已满；调用方应改试下一个集群
var ErrCapacityExceeded = errors.New("cluster capacity exceeded")

// ErrPositionTaken 目标槽位已被并发占用
var ErrPositionTaken = errors.New("cluster position already taken")

// ErrVersionConflict 乐观锁冲突，聚合已被其他事务修改
var ErrVersionConflict = errors.New("cluster modified by another transaction")

// ErrClusterNotFound 集群不存在
var ErrClusterNotFound = errors.New("cluster not found")

// ClusterStatus 集群状态
type ClusterStatus int8

const (
	ClusterStatusForming ClusterStatus = 1 // 组建中
	ClusterStatusReady   ClusterStatus = 2 // 满员待交易
	ClusterStatusActive  ClusterStatus = 3 // 周期运行中
)

func (s ClusterStatus) String() string {
	switch s {
	case ClusterStatusForming:
		return "FORMING"
	case ClusterStatusReady:
		return "READY"
	case ClusterStatusActive:
		return "ACTIVE"
	default:
		return "UNKNOWN"
	}
}

// Cluster GDC 集群聚合根
// 不变量：0 <= CurrentFill <= Capacity；TotalCapital 为成员认购金额之和；
// Status=ACTIVE 当且仅当 ActiveCycleID 指向未完成周期
type Cluster struct {
	gorm.Model
	ClusterID        string          `gorm:"column:cluster_id;type:varchar(64);uniqueIndex;not null" json:"cluster_id"`
	Number           int64           `gorm:"column:number;uniqueIndex;not null" json:"number"`
	Capacity         int             `gorm:"column:capacity;not null" json:"capacity"`
	CurrentFill      int             `gorm:"column:current_fill;not null;default:0" json:"current_fill"`
	Status           ClusterStatus   `gorm:"column:status;type:tinyint;not null;default:1" json:"status"`
	TotalCapital     decimal.Decimal `gorm:"column:total_capital;type:decimal(20,2);not null" json:"total_capital"`
	CyclesCompleted  int             `gorm:"column:cycles_completed;not null;default:0" json:"cycles_completed"`
	AverageROI       decimal.Decimal `gorm:"column:average_roi;type:decimal(10,6);not null" json:"average_roi"`
	PrimaryCommodity string          `gorm:"column:primary_commodity;type:varchar(64);index;not null" json:"primary_commodity"`
	ActiveCycleID    string          `gorm:"column:active_cycle_id;type:varchar(64)" json:"active_cycle_id,omitempty"`
	Version          int64           `gorm:"column:version;not null;default:0" json:"-"`
}

// TableName 表名
func (Cluster) TableName() string {
	return "clusters"
}

// NewCluster 创建组建中的空集群
func NewCluster(clusterID string, number int64, capacity int, primaryCommodity string) *Cluster {
	return &Cluster{
		ClusterID:        clusterID,
		Number:           number,
		Capacity:         capacity,
		CurrentFill:      0,
		Status:           ClusterStatusForming,
		TotalCapital:     decimal.Zero,
		AverageROI:       decimal.Zero,
		PrimaryCommodity: primaryCommodity,
	}
}

// HasRoom 是否还有空余槽位
func (c *Cluster) HasRoom() bool {
	return c.CurrentFill < c.Capacity
}

// AdmitMember 记入一个已提交的成员；满员时原子地转入 READY
func (c *Cluster) AdmitMember(amount decimal.Decimal) error {
	if c.CurrentFill >= c.Capacity {
		return ErrCapacityExceeded
	}
	c.CurrentFill++
	c.TotalCapital = c.TotalCapital.Add(amount)
	if c.CurrentFill == c.Capacity && c.Status == ClusterStatusForming {
		c.Status = ClusterStatusReady
	}
	return nil
}

// Activate READY→ACTIVE，绑定运行中的周期
func (c *Cluster) Activate(cycleID string) error {
	if c.Status != ClusterStatusReady {
		return fmt.Errorf("invalid status for activate: %s", c.Status)
	}
	c.Status = ClusterStatusActive
	c.ActiveCycleID = cycleID
	return nil
}

// CompleteCycle 周期结算完成：累计周期数、更新平均收益率并回到 READY
func (c *Cluster) CompleteCycle(actualRate decimal.Decimal) error {
	if c.Status != ClusterStatusActive {
		return fmt.Errorf("invalid status for complete cycle: %s", c.Status)
	}
	completed := decimal.NewFromInt(int64(c.CyclesCompleted))
	c.AverageROI = c.AverageROI.Mul(completed).Add(actualRate).
		Div(completed.Add(decimal.NewFromInt(1)))
	c.CyclesCompleted++
	c.Status = ClusterStatusReady
	c.ActiveCycleID = ""
	return nil
}

// SlotState 槽位状态；两阶段准入的显式状态而非计数
type SlotState int8

const (
	SlotStateReserved  SlotState = 1 // 已预留，等待保单签发
	SlotStateCommitted SlotState = 2 // 已提交，成员生效
	SlotStateReleased  SlotState = 3 // 已释放，槽位可再次占用
)

func (s SlotState) String() string {
	switch s {
	case SlotStateReserved:
		return "RESERVED"
	case SlotStateCommitted:
		return "COMMITTED"
	case SlotStateReleased:
		return "RELEASED"
	default:
		return "UNKNOWN"
	}
}

// ClusterSlot 集群槽位表项
// (cluster_id, position) 唯一索引是并发占位的裁决点
type ClusterSlot struct {
	gorm.Model
	ClusterID string    `gorm:"column:cluster_id;type:varchar(64);uniqueIndex:idx_cluster_position;not null" json:"cluster_id"`
	Position  int       `gorm:"column:position;uniqueIndex:idx_cluster_position;not null" json:"position"`
	AccountID string    `gorm:"column:account_id;type:varchar(64);index" json:"account_id"`
	State     SlotState `gorm:"column:state;type:tinyint;not null;default:1" json:"state"`
}

// TableName 表名
func (ClusterSlot) TableName() string {
	return "cluster_slots"
}
