package repository

import (
	"context"
	"errors"

	"github.com/bitfantasy/nimo-codes/internal/codes/entity"
	"gorm.io/gorm"
)

type ProductTypeRepository struct {
	db *gorm.DB
}

func NewProductTypeRepository(db *gorm.DB) *ProductTypeRepository {
	return &ProductTypeRepository{db: db}
}

func (r *ProductTypeRepository) Create(ctx context.Context, pt *entity.ProductType) error {
	return r.db.WithContext(ctx).Create(pt).Error
}

func (r *ProductTypeRepository) FindByID(ctx context.Context, id string) (*entity.ProductType, error) {
	var pt entity.ProductType
	err := r.db.WithContext(ctx).First(&pt, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &pt, nil
}

func (r *ProductTypeRepository) ListAll(ctx context.Context) ([]entity.ProductType, error) {
	var types []entity.ProductType
	err := r.db.WithContext(ctx).
		Order("sort_order ASC, created_at ASC").
		Find(&types).Error
	return types, err
}

func (r *ProductTypeRepository) ExistsByCode(ctx context.Context, code string, excludeID string) (bool, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&entity.ProductType{}).Where("code = ?", code)
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}
	err := query.Count(&count).Error
	return count > 0, err
}

func (r *ProductTypeRepository) Update(ctx context.Context, pt *entity.ProductType) error {
	return r.db.WithContext(ctx).Save(pt).Error
}

func (r *ProductTypeRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&entity.ProductType{}, "id = ?", id).Error
}

func (r *ProductTypeRepository) CountChildren(ctx context.Context, id string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.ModelClassification{}).
		Where("product_type_id = ?", id).Count(&count).Error
	return count, err
}
