package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/viralforge/barter-exchange/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type productRepository struct {
	db *gorm.DB
}

func (r *productRepository) GetByID(ctx context.Context, productID uuid.UUID) (domain.Product, error) {
	var rec productModel
	if err := r.db.WithContext(ctx).Where("product_id = ?", productID).Take(&rec).Error; err != nil {
		return domain.Product{}, notFound(err)
	}
	return toDomainProduct(rec), nil
}

func (r *productRepository) Upsert(ctx context.Context, product domain.Product) error {
	rec := productModel{
		ProductID: product.ProductID,
		OwnerID:   nullableUUID(product.OwnerID),
		Title:     product.Title,
		UpdatedAt: product.UpdatedAt,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "product_id"}},
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "exchange_products.updated_at <= excluded.updated_at"},
		}},
		DoUpdates: clause.AssignmentColumns([]string{"owner_id", "title", "updated_at"}),
	}).Create(&rec).Error
}
