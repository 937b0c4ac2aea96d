package mysql

import (
	"context"
	"errors"

	"github.com/wyfcoding/gdip/internal/certificate/domain"
	pkgdb "github.com/wyfcoding/gdip/pkg/db"
	"gorm.io/gorm"
)

// certificateRepository 保单仓储实现
type certificateRepository struct {
	db *gorm.DB
}

// NewCertificateRepository 创建保单仓储
func NewCertificateRepository(db *gorm.DB) domain.CertificateRepository {
	return &certificateRepository{db: db}
}

func (r *certificateRepository) Save(ctx context.Context, cert *domain.InsuranceCertificate) error {
	err := r.getDB(ctx).WithContext(ctx).Create(cert).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrDuplicateCertificate
	}
	return err
}

func (r *certificateRepository) GetByAccount(ctx context.Context, accountID string) (*domain.InsuranceCertificate, error) {
	var cert domain.InsuranceCertificate
	if err := r.getDB(ctx).WithContext(ctx).
		Where("account_id = ?", accountID).
		First(&cert).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cert, nil
}

func (r *certificateRepository) VoidByAccount(ctx context.Context, accountID string) error {
	return r.getDB(ctx).WithContext(ctx).
		Model(&domain.InsuranceCertificate{}).
		Where("account_id = ?", accountID).
		Update("status", domain.CertificateStatusVoid).Error
}

func (r *certificateRepository) getDB(ctx context.Context) *gorm.DB {
	return pkgdb.FromContext(ctx, r.db)
}
