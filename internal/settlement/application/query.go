package application

import (
	"context"

	"github.com/wyfcoding/gdip/internal/settlement/domain"
)

// LedgerQueryService 分润流水查询
type LedgerQueryService struct {
	ledger domain.LedgerRepository
}

// NewLedgerQueryService 创建流水查询服务
func NewLedgerQueryService(ledger domain.LedgerRepository) *LedgerQueryService {
	return &LedgerQueryService{ledger: ledger}
}

// ListByAccount 账户的分润流水
func (s *LedgerQueryService) ListByAccount(ctx context.Context, accountID string) ([]*domain.LedgerEntry, error) {
	return s.ledger.ListByAccount(ctx, accountID)
}

// ListByCycle 周期的分润流水
func (s *LedgerQueryService) ListByCycle(ctx context.Context, cycleID string) ([]*domain.LedgerEntry, error) {
	return s.ledger.ListByCycle(ctx, cycleID)
}
