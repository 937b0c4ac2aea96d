package application

import (
	"context"
	"log/slog"

	"github.com/wyfcoding/gdip/internal/account/domain"
	"github.com/wyfcoding/gdip/pkg/utils"
)

// AccountService 账户查询与管理服务
type AccountService struct {
	accounts domain.AccountRepository
	logger   *slog.Logger
}

// NewAccountService 创建账户服务
func NewAccountService(accounts domain.AccountRepository, logger *slog.Logger) *AccountService {
	return &AccountService{accounts: accounts, logger: logger}
}

// Get 账户详情
func (s *AccountService) Get(ctx context.Context, accountID string) (*domain.InvestmentAccount, error) {
	account, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, domain.ErrAccountNotFound
	}
	return account, nil
}

// ListByUser 用户名下账户
func (s *AccountService) ListByUser(ctx context.Context, userID string) ([]*domain.InvestmentAccount, error) {
	return s.accounts.ListByUser(ctx, userID)
}

// List 管理端分页列出账户
func (s *AccountService) List(ctx context.Context, page, pageSize int) ([]*domain.InvestmentAccount, *utils.Pagination, error) {
	p := utils.NewPagination(page, pageSize, 0)
	accounts, total, err := s.accounts.List(ctx, p.Offset(), p.Limit())
	if err != nil {
		return nil, nil, err
	}
	return accounts, utils.NewPagination(page, pageSize, total), nil
}

// Suspend 冻结账户；在途周期照常结算，冻结只影响后续周期
func (s *AccountService) Suspend(ctx context.Context, accountID string) (*domain.InvestmentAccount, error) {
	return s.mutate(ctx, accountID, (*domain.InvestmentAccount).Suspend)
}

// Resume 解冻账户
func (s *AccountService) Resume(ctx context.Context, accountID string) (*domain.InvestmentAccount, error) {
	return s.mutate(ctx, accountID, (*domain.InvestmentAccount).Resume)
}

// Mature 账户到期退出
func (s *AccountService) Mature(ctx context.Context, accountID string) (*domain.InvestmentAccount, error) {
	return s.mutate(ctx, accountID, (*domain.InvestmentAccount).Mature)
}

func (s *AccountService) mutate(ctx context.Context, accountID string, op func(*domain.InvestmentAccount) error) (*domain.InvestmentAccount, error) {
	account, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, domain.ErrAccountNotFound
	}
	if err := op(account); err != nil {
		return nil, err
	}
	if err := s.accounts.SaveCAS(ctx, account); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "account status changed",
		"account_id", accountID, "status", account.Status.String())
	return account, nil
}
