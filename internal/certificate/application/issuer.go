package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/gdip/internal/certificate/domain"
	"github.com/wyfcoding/gdip/pkg/utils"
)

// Underwriter 外部承保方接口；签发失败返回错误，由准入流程补偿
type Underwriter interface {
	Underwrite(ctx context.Context, accountID string, coverage decimal.Decimal) error
}

// localUnderwriter 默认本地承保，直接通过
type localUnderwriter struct{}

func (localUnderwriter) Underwrite(ctx context.Context, accountID string, coverage decimal.Decimal) error {
	return nil
}

// NewLocalUnderwriter 创建本地承保方
func NewLocalUnderwriter() Underwriter {
	return localUnderwriter{}
}

// IssuerService 保单签发服务
type IssuerService struct {
	repo         domain.CertificateRepository
	underwriter  Underwriter
	idGen        *utils.SnowflakeID
	logger       *slog.Logger
	provider     string
	warehouse    string
	coverageTerm time.Duration
}

// NewIssuerService 创建保单签发服务；coverageTerm 为保障期，等于一个交易周期
func NewIssuerService(
	repo domain.CertificateRepository,
	underwriter Underwriter,
	idGen *utils.SnowflakeID,
	logger *slog.Logger,
	provider, warehouse string,
	coverageTerm time.Duration,
) *IssuerService {
	return &IssuerService{
		repo:         repo,
		underwriter:  underwriter,
		idGen:        idGen,
		logger:       logger,
		provider:     provider,
		warehouse:    warehouse,
		coverageTerm: coverageTerm,
	}
}

// Issue 为账户签发仓单保险，保额等于本金。
// 幂等：账户已有保单时直接返回已有的一张。
func (s *IssuerService) Issue(ctx context.Context, accountID string, coverage decimal.Decimal) (*domain.InsuranceCertificate, error) {
	existing, err := s.repo.GetByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	if err := s.underwriter.Underwrite(ctx, accountID, coverage); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCertificateIssuance, err)
	}

	now := time.Now()
	cert := &domain.InsuranceCertificate{
		CertificateID:     fmt.Sprintf("INS%d", s.idGen.Generate()),
		CertificateNumber: fmt.Sprintf("GIC-%s-%d", now.Format("20060102"), s.idGen.Generate()),
		AccountID:         accountID,
		Provider:          s.provider,
		CoverageAmount:    coverage,
		WarehouseLocation: s.warehouse,
		Status:            domain.CertificateStatusActive,
		EffectiveDate:     now,
		ExpiryDate:        now.Add(s.coverageTerm),
		IssuedAt:          now,
	}

	err = s.repo.Save(ctx, cert)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateCertificate) {
			// 并发签发撞到唯一索引，读回已有保单
			return s.repo.GetByAccount(ctx, accountID)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrCertificateIssuance, err)
	}

	s.logger.InfoContext(ctx, "insurance certificate issued",
		"certificate_id", cert.CertificateID, "certificate_number", cert.CertificateNumber,
		"account_id", accountID, "coverage", coverage,
		"provider", s.provider, "expiry_date", cert.ExpiryDate)
	return cert, nil
}

// Void 作废账户保单，认购补偿时调用
func (s *IssuerService) Void(ctx context.Context, accountID string) error {
	if err := s.repo.VoidByAccount(ctx, accountID); err != nil {
		return err
	}
	s.logger.WarnContext(ctx, "insurance certificate voided", "account_id", accountID)
	return nil
}

// GetByAccount 查询账户保单
func (s *IssuerService) GetByAccount(ctx context.Context, accountID string) (*domain.InsuranceCertificate, error) {
	return s.repo.GetByAccount(ctx, accountID)
}
