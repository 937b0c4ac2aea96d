package application

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/gdip/internal/certificate/domain"
	"github.com/wyfcoding/gdip/pkg/utils"
)

type fakeCertRepo struct {
	byAccount map[string]*domain.InsuranceCertificate
}

func newFakeCertRepo() *fakeCertRepo {
	return &fakeCertRepo{byAccount: make(map[string]*domain.InsuranceCertificate)}
}

func (r *fakeCertRepo) Save(ctx context.Context, cert *domain.InsuranceCertificate) error {
	if _, ok := r.byAccount[cert.AccountID]; ok {
		return domain.ErrDuplicateCertificate
	}
	copied := *cert
	r.byAccount[cert.AccountID] = &copied
	return nil
}

func (r *fakeCertRepo) GetByAccount(ctx context.Context, accountID string) (*domain.InsuranceCertificate, error) {
	if cert, ok := r.byAccount[accountID]; ok {
		copied := *cert
		return &copied, nil
	}
	return nil, nil
}

func (r *fakeCertRepo) VoidByAccount(ctx context.Context, accountID string) error {
	if cert, ok := r.byAccount[accountID]; ok {
		cert.Status = domain.CertificateStatusVoid
	}
	return nil
}

type failingUnderwriter struct{}

func (failingUnderwriter) Underwrite(ctx context.Context, accountID string, coverage decimal.Decimal) error {
	return errors.New("provider rejected")
}

func newTestIssuer(repo domain.CertificateRepository, uw Underwriter) *IssuerService {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewIssuerService(repo, uw, utils.NewSnowflakeID(1), log,
		"Continental Assurance", "Lagos Bonded Warehouse 4", 37*24*time.Hour)
}

func TestIssueCreatesCertificate(t *testing.T) {
	repo := newFakeCertRepo()
	issuer := newTestIssuer(repo, NewLocalUnderwriter())

	cert, err := issuer.Issue(context.Background(), "TPIA1", decimal.NewFromInt(10000))
	require.NoError(t, err)
	assert.Equal(t, "TPIA1", cert.AccountID)
	assert.True(t, cert.CoverageAmount.Equal(decimal.NewFromInt(10000)), "coverage equals principal")
	assert.Equal(t, "Continental Assurance", cert.Provider)
	assert.Equal(t, "Lagos Bonded Warehouse 4", cert.WarehouseLocation)
	assert.NotEmpty(t, cert.CertificateID)
	assert.NotEmpty(t, cert.CertificateNumber)
	assert.Equal(t, domain.CertificateStatusActive, cert.Status)

	// 保障期覆盖一个完整交易周期
	assert.Equal(t, cert.EffectiveDate.Add(37*24*time.Hour), cert.ExpiryDate)
	assert.True(t, cert.InForce(cert.EffectiveDate.Add(24*time.Hour)))
	assert.False(t, cert.InForce(cert.ExpiryDate.Add(time.Hour)))
}

func TestVoidMarksCertificateInactive(t *testing.T) {
	repo := newFakeCertRepo()
	issuer := newTestIssuer(repo, NewLocalUnderwriter())

	cert, err := issuer.Issue(context.Background(), "TPIA1", decimal.NewFromInt(10000))
	require.NoError(t, err)

	require.NoError(t, issuer.Void(context.Background(), "TPIA1"))

	stored, err := repo.GetByAccount(context.Background(), "TPIA1")
	require.NoError(t, err)
	assert.Equal(t, cert.CertificateID, stored.CertificateID, "voided certificate stays on record")
	assert.Equal(t, domain.CertificateStatusVoid, stored.Status)
	assert.False(t, stored.InForce(time.Now()))
}

func TestIssueIsIdempotent(t *testing.T) {
	repo := newFakeCertRepo()
	issuer := newTestIssuer(repo, NewLocalUnderwriter())

	first, err := issuer.Issue(context.Background(), "TPIA1", decimal.NewFromInt(10000))
	require.NoError(t, err)

	second, err := issuer.Issue(context.Background(), "TPIA1", decimal.NewFromInt(10000))
	require.NoError(t, err)
	assert.Equal(t, first.CertificateID, second.CertificateID, "repeat issue returns the existing certificate")
	assert.Len(t, repo.byAccount, 1)
}

func TestIssueFailsWhenUnderwriterRejects(t *testing.T) {
	repo := newFakeCertRepo()
	issuer := newTestIssuer(repo, failingUnderwriter{})

	_, err := issuer.Issue(context.Background(), "TPIA1", decimal.NewFromInt(10000))
	assert.ErrorIs(t, err, domain.ErrCertificateIssuance)
	assert.Empty(t, repo.byAccount)
}
