package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/viralforge/barter-exchange/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type userRepository struct {
	db *gorm.DB
}

func (r *userRepository) GetByID(ctx context.Context, userID uuid.UUID) (domain.User, error) {
	var rec userModel
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Take(&rec).Error; err != nil {
		return domain.User{}, notFound(err)
	}
	return toDomainUser(rec), nil
}

func (r *userRepository) ListAdmins(ctx context.Context) ([]domain.User, error) {
	var rows []userModel
	if err := r.db.WithContext(ctx).
		Where("role = ?", domain.RoleAdmin).
		Order("user_id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.User, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainUser(row))
	}
	return out, nil
}

// Upsert keeps the newest copy of a user; older directory events are ignored.
func (r *userRepository) Upsert(ctx context.Context, user domain.User) error {
	rec := userModel{
		UserID:      user.UserID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Role:        domain.NormalizeRole(user.Role),
		UpdatedAt:   user.UpdatedAt,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "exchange_users.updated_at <= excluded.updated_at"},
		}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "display_name", "role", "updated_at"}),
	}).Create(&rec).Error
}

func (r *userRepository) Delete(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&userModel{}).Error
}
