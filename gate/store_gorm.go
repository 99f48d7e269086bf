package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/plaudehq/opsgate/db/models"
	"gorm.io/gorm"
)

// GormStore is the durable ledger, backed by sqlite through gorm. It keeps
// the same read-after-write and first-decision-wins contract as MemoryStore;
// the transition is a guarded UPDATE, not a read-then-write.
type GormStore struct {
	DB *gorm.DB
}

func NewGormStore(gdb *gorm.DB) *GormStore {
	return &GormStore{DB: gdb}
}

func (s *GormStore) Create(ctx context.Context, rec ApprovalRecord) (string, error) {
	if s == nil || s.DB == nil {
		return "", fmt.Errorf("nil approval store")
	}
	if strings.TrimSpace(rec.ID) == "" {
		rec.ID = NewApprovalID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.Status == "" {
		rec.Status = StatusPending
	}
	row := toModel(rec)
	if err := s.DB.WithContext(ctx).Create(&row).Error; err != nil {
		return "", err
	}
	return rec.ID, nil
}

func (s *GormStore) Get(ctx context.Context, id string) (ApprovalRecord, bool, error) {
	if s == nil || s.DB == nil {
		return ApprovalRecord{}, false, fmt.Errorf("nil approval store")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return ApprovalRecord{}, false, nil
	}
	var row models.Approval
	err := s.DB.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ApprovalRecord{}, false, nil
	}
	if err != nil {
		return ApprovalRecord{}, false, err
	}
	return fromModel(row), true, nil
}

func (s *GormStore) Resolve(ctx context.Context, id string, d Decision, actor string) (ApprovalRecord, bool, error) {
	if s == nil || s.DB == nil {
		return ApprovalRecord{}, false, fmt.Errorf("nil approval store")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return ApprovalRecord{}, false, fmt.Errorf("missing approval id")
	}
	status, ok := StatusFor(d)
	if !ok {
		return ApprovalRecord{}, false, fmt.Errorf("invalid decision: %q", d)
	}

	now := time.Now().UTC().Unix()
	res := s.DB.WithContext(ctx).Model(&models.Approval{}).
		Where("id = ? AND status = ?", id, string(StatusPending)).
		Updates(map[string]any{
			"status":     string(status),
			"actor":      strings.TrimSpace(actor),
			"decided_at": now,
		})
	if res.Error != nil {
		return ApprovalRecord{}, false, res.Error
	}

	rec, found, err := s.Get(ctx, id)
	if err != nil {
		return ApprovalRecord{}, false, err
	}
	if !found {
		return ApprovalRecord{}, false, ErrNotFound
	}
	return rec, res.RowsAffected > 0, nil
}

func (s *GormStore) Latest(ctx context.Context) (ApprovalRecord, bool, error) {
	if s == nil || s.DB == nil {
		return ApprovalRecord{}, false, fmt.Errorf("nil approval store")
	}
	var row models.Approval
	err := s.DB.WithContext(ctx).
		Where("decided_at IS NOT NULL").
		Order("decided_at DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ApprovalRecord{}, false, nil
	}
	if err != nil {
		return ApprovalRecord{}, false, err
	}
	return fromModel(row), true, nil
}

func toModel(rec ApprovalRecord) models.Approval {
	row := models.Approval{
		ID:            rec.ID,
		OperationType: string(rec.OperationType),
		RiskTier:      string(rec.RiskTier),
		Reason:        rec.Reason,
		Amount:        rec.Amount,
		UserText:      rec.UserText,
		Status:        string(rec.Status),
		Actor:         rec.Actor,
		CreatedAt:     rec.CreatedAt.Unix(),
	}
	if !rec.ExpiresAt.IsZero() {
		v := rec.ExpiresAt.Unix()
		row.ExpiresAt = &v
	}
	if rec.DecidedAt != nil {
		v := rec.DecidedAt.UTC().Unix()
		row.DecidedAt = &v
	}
	return row
}

func fromModel(row models.Approval) ApprovalRecord {
	rec := ApprovalRecord{
		ID:            row.ID,
		OperationType: OperationType(row.OperationType),
		RiskTier:      RiskTier(row.RiskTier),
		Reason:        row.Reason,
		Amount:        row.Amount,
		UserText:      row.UserText,
		Status:        Status(row.Status),
		Actor:         row.Actor,
		CreatedAt:     time.Unix(row.CreatedAt, 0).UTC(),
	}
	if row.ExpiresAt != nil {
		rec.ExpiresAt = time.Unix(*row.ExpiresAt, 0).UTC()
	}
	if row.DecidedAt != nil {
		t := time.Unix(*row.DecidedAt, 0).UTC()
		rec.DecidedAt = &t
	}
	return rec
}
