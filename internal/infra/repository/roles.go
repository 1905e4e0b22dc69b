package repository

import (
	"context"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/floralog/floralog/internal/infra/database/models"
)

// RoleRepository holds the admin principal and the verifier set. The admin is
// fixed at construction; verifiers are toggled by the admin and persisted
// when a db is configured.
type RoleRepository struct {
	mu        sync.RWMutex
	db        *gorm.DB
	admin     string
	verifiers map[string]bool
}

func NewRoleRepository(db *gorm.DB, admin string) *RoleRepository {
	return &RoleRepository{
		db:        db,
		admin:     admin,
		verifiers: make(map[string]bool),
	}
}

// Load reads the persisted verifier set and enables the initial principals
// from config on top of it.
func (r *RoleRepository) Load(ctx context.Context, initial []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.db != nil {
		var rows []models.Verifier
		if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
			return err
		}
		for _, row := range rows {
			r.verifiers[row.Principal] = row.Enabled
		}
	}

	for _, principal := range initial {
		if err := r.setVerifierLocked(ctx, principal, true); err != nil {
			return err
		}
	}
	return nil
}

func (r *RoleRepository) IsAdmin(ctx context.Context, principal string) (bool, error) {
	return principal != "" && principal == r.admin, nil
}

func (r *RoleRepository) IsVerifier(ctx context.Context, principal string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.verifiers[principal], nil
}

func (r *RoleRepository) SetVerifier(ctx context.Context, principal string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setVerifierLocked(ctx, principal, enabled)
}

func (r *RoleRepository) setVerifierLocked(ctx context.Context, principal string, enabled bool) error {
	if r.db != nil {
		err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "principal"}},
			DoUpdates: clause.Assignments(map[string]any{"enabled": enabled}),
		}).Create(&models.Verifier{Principal: principal, Enabled: enabled}).Error
		if err != nil {
			return err
		}
	}
	r.verifiers[principal] = enabled
	return nil
}
