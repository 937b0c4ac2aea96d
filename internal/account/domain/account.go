package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrAccountNotFound 账户不存在
var ErrAccountNotFound = errors.New("investment account not found")

// ErrInvalidProfitMode 收益模式不合法
var ErrInvalidProfitMode = errors.New("invalid profit mode")

// ErrInvalidStatusTransition 账户状态流转不合法
var ErrInvalidStatusTransition = errors.New("invalid account status transition")

// ErrAmountTooSmall 认购金额低于门槛
var ErrAmountTooSmall = errors.New("purchase amount below minimum")

// ProfitMode 收益处理模式，认购时选定后不可变更
type ProfitMode int8

const (
	ProfitModeCompounding ProfitMode = 1 // 收益滚入本值，下周期按新本值计息
	ProfitModePayout      ProfitMode = 2 // 收益派发出去，本值保持本金
)

func (m ProfitMode) String() string {
	switch m {
	case ProfitModeCompounding:
		return "COMPOUNDING"
	case ProfitModePayout:
		return "PAYOUT"
	default:
		return "UNKNOWN"
	}
}

// ParseProfitMode 解析收益模式
func ParseProfitMode(s string) (ProfitMode, error) {
	switch s {
	case "COMPOUNDING":
		return ProfitModeCompounding, nil
	case "PAYOUT":
		return ProfitModePayout, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrInvalidProfitMode, s)
	}
}

// AccountStatus 账户状态
type AccountStatus int8

const (
	AccountStatusPending   AccountStatus = 1 // 两阶段准入中，尚未生效
	AccountStatusActive    AccountStatus = 2 // 参与周期与分润
	AccountStatusSuspended AccountStatus = 3 // 冻结；已在途周期仍正常结算
	AccountStatusMatured   AccountStatus = 4 // 到期，退出后续周期
)

func (s AccountStatus) String() string {
	switch s {
	case AccountStatusPending:
		return "PENDING"
	case AccountStatusActive:
		return "ACTIVE"
	case AccountStatusSuspended:
		return "SUSPENDED"
	case AccountStatusMatured:
		return "MATURED"
	default:
		return "UNKNOWN"
	}
}

// InvestmentAccount TPIA 投资账户聚合根
// 不变量：CurrentValue 仅由结算修改；PAYOUT 模式下 CurrentValue 恒等于 Principal
type InvestmentAccount struct {
	gorm.Model
	AccountID     string          `gorm:"column:account_id;type:varchar(64);uniqueIndex;not null" json:"account_id"`
	UserID        string          `gorm:"column:user_id;type:varchar(64);index;not null" json:"user_id"`
	ClusterID     string          `gorm:"column:cluster_id;type:varchar(64);index;not null" json:"cluster_id"`
	Position      int             `gorm:"column:position;not null" json:"position"`
	CommodityType string          `gorm:"column:commodity_type;type:varchar(64);not null" json:"commodity_type"`
	Principal     decimal.Decimal `gorm:"column:principal;type:decimal(20,2);not null" json:"principal"`
	CurrentValue  decimal.Decimal `gorm:"column:current_value;type:decimal(20,2);not null" json:"current_value"`
	ProfitMode    ProfitMode      `gorm:"column:profit_mode;type:tinyint;not null" json:"profit_mode"`
	Status        AccountStatus   `gorm:"column:status;type:tinyint;not null;default:1" json:"status"`
	// StatusChangedAt 最近一次状态流转时间，用于判定周期参与资格
	StatusChangedAt   time.Time       `gorm:"column:status_changed_at;not null" json:"status_changed_at"`
	CyclesCompleted   int             `gorm:"column:cycles_completed;not null;default:0" json:"cycles_completed"`
	TotalProfitEarned decimal.Decimal `gorm:"column:total_profit_earned;type:decimal(20,2);not null;default:0" json:"total_profit_earned"`
	CertificateID     string          `gorm:"column:certificate_id;type:varchar(64)" json:"certificate_id,omitempty"`
	Version           int64           `gorm:"column:version;not null;default:0" json:"-"`
}

// TableName 表名
func (InvestmentAccount) TableName() string {
	return "investment_accounts"
}

// NewInvestmentAccount 创建待生效账户；槽位已预留，保单未签发
func NewInvestmentAccount(accountID, userID, clusterID string, position int, commodityType string, principal decimal.Decimal, mode ProfitMode) *InvestmentAccount {
	return &InvestmentAccount{
		AccountID:         accountID,
		UserID:            userID,
		ClusterID:         clusterID,
		Position:          position,
		CommodityType:     commodityType,
		Principal:         principal,
		CurrentValue:      principal,
		ProfitMode:        mode,
		Status:            AccountStatusPending,
		StatusChangedAt:   time.Now(),
		TotalProfitEarned: decimal.Zero,
	}
}

// Activate 保单签发成功后生效
func (a *InvestmentAccount) Activate(certificateID string) error {
	if a.Status != AccountStatusPending {
		return fmt.Errorf("%w: %s -> ACTIVE", ErrInvalidStatusTransition, a.Status)
	}
	a.Status = AccountStatusActive
	a.CertificateID = certificateID
	a.StatusChangedAt = time.Now()
	return nil
}

// Suspend 冻结账户；不回溯影响已在途的周期结算
func (a *InvestmentAccount) Suspend() error {
	if a.Status != AccountStatusActive {
		return fmt.Errorf("%w: %s -> SUSPENDED", ErrInvalidStatusTransition, a.Status)
	}
	a.Status = AccountStatusSuspended
	a.StatusChangedAt = time.Now()
	return nil
}

// Resume 解冻账户
func (a *InvestmentAccount) Resume() error {
	if a.Status != AccountStatusSuspended {
		return fmt.Errorf("%w: %s -> ACTIVE", ErrInvalidStatusTransition, a.Status)
	}
	a.Status = AccountStatusActive
	a.StatusChangedAt = time.Now()
	return nil
}

// Mature 到期退出；之后不再参与新周期
func (a *InvestmentAccount) Mature() error {
	if a.Status != AccountStatusActive && a.Status != AccountStatusSuspended {
		return fmt.Errorf("%w: %s -> MATURED", ErrInvalidStatusTransition, a.Status)
	}
	a.Status = AccountStatusMatured
	a.StatusChangedAt = time.Now()
	return nil
}

// ParticipatesIn 账户是否参与给定起始时间的周期。
// 冻结和到期不回溯：周期开始后才流转的账户在该在途周期照常结算，
// 周期开始前已冻结/到期的账户不再分润。
func (a *InvestmentAccount) ParticipatesIn(cycleStart time.Time) bool {
	switch a.Status {
	case AccountStatusActive:
		return true
	case AccountStatusSuspended, AccountStatusMatured:
		return !a.StatusChangedAt.Before(cycleStart)
	default:
		return false
	}
}

// SettleProfit 周期结算入账：累计收益与参与周期数；复利账户同时滚入本值
func (a *InvestmentAccount) SettleProfit(amount decimal.Decimal) {
	if a.ProfitMode == ProfitModeCompounding {
		a.CurrentValue = a.CurrentValue.Add(amount)
	}
	a.TotalProfitEarned = a.TotalProfitEarned.Add(amount)
	a.CyclesCompleted++
}

// SettlementBase 本周期分润基数：复利账户按当前本值，派息账户按本金
func (a *InvestmentAccount) SettlementBase() decimal.Decimal {
	return a.CurrentValue
}
