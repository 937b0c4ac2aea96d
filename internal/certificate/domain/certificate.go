package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrCertificateIssuance 保单签发失败；认购流程据此走补偿释放槽位
var ErrCertificateIssuance = errors.New("insurance certificate issuance failed")

// CertificateStatus 保单状态
type CertificateStatus int8

const (
	CertificateStatusActive CertificateStatus = 1 // 保障生效中
	CertificateStatusVoid   CertificateStatus = 2 // 准入补偿作废
)

func (s CertificateStatus) String() string {
	switch s {
	case CertificateStatusActive:
		return "ACTIVE"
	case CertificateStatusVoid:
		return "VOID"
	default:
		return "UNKNOWN"
	}
}

// InsuranceCertificate 仓单保险凭证
// 每个账户至多一张（account_id 唯一索引），重复签发幂等返回已有保单
type InsuranceCertificate struct {
	gorm.Model
	CertificateID string `gorm:"column:certificate_id;type:varchar(64);uniqueIndex;not null" json:"certificate_id"`
	// CertificateNumber 承保方出具的保单号
	CertificateNumber string            `gorm:"column:certificate_number;type:varchar(64);uniqueIndex;not null" json:"certificate_number"`
	AccountID         string            `gorm:"column:account_id;type:varchar(64);uniqueIndex;not null" json:"account_id"`
	Provider          string            `gorm:"column:provider;type:varchar(128);not null" json:"provider"`
	CoverageAmount    decimal.Decimal   `gorm:"column:coverage_amount;type:decimal(20,2);not null" json:"coverage_amount"`
	WarehouseLocation string            `gorm:"column:warehouse_location;type:varchar(128);not null" json:"warehouse_location"`
	Status            CertificateStatus `gorm:"column:status;type:tinyint;not null;default:1" json:"status"`
	// 保障区间 [EffectiveDate, ExpiryDate]，覆盖一个完整交易周期
	EffectiveDate time.Time `gorm:"column:effective_date;not null" json:"effective_date"`
	ExpiryDate    time.Time `gorm:"column:expiry_date;not null" json:"expiry_date"`
	IssuedAt      time.Time `gorm:"column:issued_at;not null" json:"issued_at"`
}

// TableName 表名
func (InsuranceCertificate) TableName() string {
	return "insurance_certificates"
}

// InForce 给定时刻保单是否有效
func (c *InsuranceCertificate) InForce(now time.Time) bool {
	return c.Status == CertificateStatusActive &&
		!now.Before(c.EffectiveDate) && !now.After(c.ExpiryDate)
}

// CertificateRepository 保单仓储接口
type CertificateRepository interface {
	// Save 依赖 account_id 唯一索引；冲突返回 ErrDuplicateCertificate
	Save(ctx context.Context, cert *InsuranceCertificate) error
	GetByAccount(ctx context.Context, accountID string) (*InsuranceCertificate, error)
	// VoidByAccount 作废账户保单；保留行以供审计
	VoidByAccount(ctx context.Context, accountID string) error
}

// ErrDuplicateCertificate 该账户已有保单
var ErrDuplicateCertificate = errors.New("certificate already issued for account")
