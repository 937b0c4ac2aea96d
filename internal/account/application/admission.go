package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/gdip/internal/account/domain"
	certdomain "github.com/wyfcoding/gdip/internal/certificate/domain"
	clusterapp "github.com/wyfcoding/gdip/internal/cluster/application"
	"github.com/wyfcoding/gdip/pkg/metrics"
	"github.com/wyfcoding/gdip/pkg/utils"
)

// CommodityValidator 商品类型校验；仅在认购时调用
type CommodityValidator interface {
	Validate(ctx context.Context, name string) error
}

// ClusterPool 集群池两阶段槽位协议
type ClusterPool interface {
	AcquireSlot(ctx context.Context, primaryCommodity string) (*clusterapp.SlotReservation, error)
	CommitSlot(ctx context.Context, clusterID string, position int, accountID string, amount decimal.Decimal) error
	ReleaseSlot(ctx context.Context, clusterID string, position int) error
}

// CertificateIssuer 保单签发；失败触发补偿，补偿时已出保单作废
type CertificateIssuer interface {
	Issue(ctx context.Context, accountID string, coverage decimal.Decimal) (*certdomain.InsuranceCertificate, error)
	Void(ctx context.Context, accountID string) error
}

// PurchaseCommand 认购命令
type PurchaseCommand struct {
	UserID        string
	CommodityType string
	Amount        decimal.Decimal
	ProfitMode    string
}

// PurchaseResult 认购结果
type PurchaseResult struct {
	AccountID     string          `json:"account_id"`
	ClusterID     string          `json:"cluster_id"`
	ClusterNumber int64           `json:"cluster_number"`
	Position      int             `json:"position"`
	CertificateID string          `json:"certificate_id"`
	Principal     decimal.Decimal `json:"principal"`
	ProfitMode    string          `json:"profit_mode"`
	Status        string          `json:"status"`
}

// AdmissionService 认购准入服务。
// 两阶段准入：先占槽（RESERVED）建 PENDING 账户，保单签发成功后
// 提交槽位并激活账户；任一步失败按逆序补偿，不留下半成品成员。
type AdmissionService struct {
	accounts    domain.AccountRepository
	validator   CommodityValidator
	pool        ClusterPool
	issuer      CertificateIssuer
	idGen       *utils.SnowflakeID
	metrics     *metrics.Metrics
	logger      *slog.Logger
	minPurchase decimal.Decimal
}

// NewAdmissionService 创建认购准入服务
func NewAdmissionService(
	accounts domain.AccountRepository,
	validator CommodityValidator,
	pool ClusterPool,
	issuer CertificateIssuer,
	idGen *utils.SnowflakeID,
	m *metrics.Metrics,
	logger *slog.Logger,
	minPurchase decimal.Decimal,
) *AdmissionService {
	return &AdmissionService{
		accounts:    accounts,
		validator:   validator,
		pool:        pool,
		issuer:      issuer,
		idGen:       idGen,
		metrics:     m,
		logger:      logger,
		minPurchase: minPurchase,
	}
}

// Purchase 认购一个 TPIA 账户并入池
func (s *AdmissionService) Purchase(ctx context.Context, cmd PurchaseCommand) (*PurchaseResult, error) {
	mode, err := domain.ParseProfitMode(cmd.ProfitMode)
	if err != nil {
		s.metrics.AdmissionFailuresTotal.Inc()
		return nil, err
	}
	if cmd.Amount.LessThan(s.minPurchase) {
		s.metrics.AdmissionFailuresTotal.Inc()
		return nil, fmt.Errorf("%w: got %s, minimum %s",
			domain.ErrAmountTooSmall, cmd.Amount, s.minPurchase)
	}
	if err := s.validator.Validate(ctx, cmd.CommodityType); err != nil {
		s.metrics.AdmissionFailuresTotal.Inc()
		return nil, err
	}

	reservation, err := s.pool.AcquireSlot(ctx, cmd.CommodityType)
	if err != nil {
		s.metrics.AdmissionFailuresTotal.Inc()
		return nil, err
	}

	accountID := fmt.Sprintf("TPIA%d", s.idGen.Generate())
	account := domain.NewInvestmentAccount(accountID, cmd.UserID,
		reservation.ClusterID, reservation.Position, cmd.CommodityType, cmd.Amount, mode)

	if err := s.accounts.Save(ctx, account); err != nil {
		s.compensateReservation(ctx, reservation)
		s.metrics.AdmissionFailuresTotal.Inc()
		return nil, err
	}

	cert, err := s.issuer.Issue(ctx, accountID, cmd.Amount)
	if err != nil {
		s.compensateAccount(ctx, accountID, reservation, false)
		s.metrics.AdmissionFailuresTotal.Inc()
		s.logger.WarnContext(ctx, "purchase rolled back, certificate issuance failed",
			"account_id", accountID, "cluster_id", reservation.ClusterID, "error", err)
		return nil, err
	}

	if err := account.Activate(cert.CertificateID); err != nil {
		s.compensateAccount(ctx, accountID, reservation, true)
		s.metrics.AdmissionFailuresTotal.Inc()
		return nil, err
	}
	if err := s.accounts.SaveCAS(ctx, account); err != nil {
		s.compensateAccount(ctx, accountID, reservation, true)
		s.metrics.AdmissionFailuresTotal.Inc()
		return nil, err
	}

	if err := s.pool.CommitSlot(ctx, reservation.ClusterID, reservation.Position, accountID, cmd.Amount); err != nil {
		// 账户已激活但入池失败，整体回滚
		s.compensateAccount(ctx, accountID, reservation, true)
		s.metrics.AdmissionFailuresTotal.Inc()
		s.logger.ErrorContext(ctx, "purchase rolled back, slot commit failed",
			"account_id", accountID, "cluster_id", reservation.ClusterID, "error", err)
		return nil, err
	}

	s.metrics.PurchasesTotal.Inc()
	s.logger.InfoContext(ctx, "purchase admitted",
		"account_id", accountID, "user_id", cmd.UserID,
		"cluster_id", reservation.ClusterID, "position", reservation.Position,
		"amount", cmd.Amount, "mode", mode.String())

	return &PurchaseResult{
		AccountID:     accountID,
		ClusterID:     reservation.ClusterID,
		ClusterNumber: reservation.ClusterNumber,
		Position:      reservation.Position,
		CertificateID: cert.CertificateID,
		Principal:     cmd.Amount,
		ProfitMode:    mode.String(),
		Status:        domain.AccountStatusActive.String(),
	}, nil
}

func (s *AdmissionService) compensateReservation(ctx context.Context, reservation *clusterapp.SlotReservation) {
	if err := s.pool.ReleaseSlot(ctx, reservation.ClusterID, reservation.Position); err != nil {
		s.logger.ErrorContext(ctx, "slot release failed during compensation",
			"cluster_id", reservation.ClusterID, "position", reservation.Position, "error", err)
	}
}

// compensateAccount 清理半成品账户并释放槽位；已出的保单一并作废
func (s *AdmissionService) compensateAccount(ctx context.Context, accountID string, reservation *clusterapp.SlotReservation, certIssued bool) {
	if certIssued {
		if err := s.issuer.Void(ctx, accountID); err != nil {
			s.logger.ErrorContext(ctx, "certificate void failed during compensation",
				"account_id", accountID, "error", err)
		}
	}
	if err := s.accounts.Delete(ctx, accountID); err != nil {
		s.logger.ErrorContext(ctx, "pending account cleanup failed during compensation",
			"account_id", accountID, "error", err)
	}
	s.compensateReservation(ctx, reservation)
}
