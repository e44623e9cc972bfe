// Package repository はデータアクセス層の実装を提供する。
package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"sas-token-service/internal/domain"
)

// IssuanceRecordModel はgorm用のモデル定義。
type IssuanceRecordModel struct {
	ID           string    `gorm:"type:char(36);primaryKey"`
	Account      string    `gorm:"type:varchar(24);not null;index:idx_issuance_account_issued_at"`
	Container    string    `gorm:"type:varchar(63);not null"`
	SignedOID    string    `gorm:"column:signed_oid;type:varchar(64);not null"`
	SignedTID    string    `gorm:"column:signed_tid;type:varchar(64);not null"`
	SignedStart  string    `gorm:"type:varchar(20);not null"`
	SignedExpiry string    `gorm:"type:varchar(20);not null"`
	IssuedAt     time.Time `gorm:"type:datetime(6);not null;index:idx_issuance_account_issued_at"`
}

// TableName はテーブル名を返す。
func (IssuanceRecordModel) TableName() string {
	return "issuance_records"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *IssuanceRecordModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// toDomain はモデルをドメインエンティティに変換する。
func (m *IssuanceRecordModel) toDomain() *domain.IssuanceRecord {
	return &domain.IssuanceRecord{
		ID:           m.ID,
		Account:      m.Account,
		Container:    m.Container,
		SignedOID:    m.SignedOID,
		SignedTID:    m.SignedTID,
		SignedStart:  m.SignedStart,
		SignedExpiry: m.SignedExpiry,
		IssuedAt:     m.IssuedAt,
	}
}

// IssuanceRepository はSASトークン発行記録へのデータアクセスを提供する。
type IssuanceRepository struct {
	db *gorm.DB
}

// NewIssuanceRepository は新しいIssuanceRepositoryを生成する。
func NewIssuanceRepository(db *gorm.DB) *IssuanceRepository {
	return &IssuanceRepository{db: db}
}

// Create は発行記録を保存する。
func (r *IssuanceRepository) Create(ctx context.Context, record *domain.IssuanceRecord) error {
	model := &IssuanceRecordModel{
		ID:           record.ID,
		Account:      record.Account,
		Container:    record.Container,
		SignedOID:    record.SignedOID,
		SignedTID:    record.SignedTID,
		SignedStart:  record.SignedStart,
		SignedExpiry: record.SignedExpiry,
		IssuedAt:     record.IssuedAt,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create issuance record",
			"operation", "create",
			"account", record.Account,
			"container", record.Container,
			"error", err,
		)
		return err
	}
	// gormで設定された値をドメインエンティティに反映
	record.ID = model.ID
	return nil
}

// FindRecentByAccount は指定されたアカウントの発行記録を新しい順に最大 limit 件取得する。
func (r *IssuanceRepository) FindRecentByAccount(ctx context.Context, account string, limit int) ([]*domain.IssuanceRecord, error) {
	var models []IssuanceRecordModel
	err := r.db.WithContext(ctx).
		Where("account = ?", account).
		Order("issued_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find issuance records",
			"operation", "find_recent_by_account",
			"account", account,
			"error", err,
		)
		return nil, err
	}

	records := make([]*domain.IssuanceRecord, len(models))
	for i := range models {
		records[i] = models[i].toDomain()
	}
	return records, nil
}
