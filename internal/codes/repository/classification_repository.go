package repository

import (
	"context"
	"errors"

	"github.com/bitfantasy/nimo-codes/internal/codes/entity"
	"gorm.io/gorm"
)

// ClassificationRepository 机型分类 + 代码分类仓库
type ClassificationRepository struct {
	db *gorm.DB
}

func NewClassificationRepository(db *gorm.DB) *ClassificationRepository {
	return &ClassificationRepository{db: db}
}

func (r *ClassificationRepository) DB() *gorm.DB {
	return r.db
}

// ========== ModelClassification ==========

func (r *ClassificationRepository) CreateModel(ctx context.Context, mc *entity.ModelClassification) error {
	return r.db.WithContext(ctx).Create(mc).Error
}

func (r *ClassificationRepository) FindModelByID(ctx context.Context, id string) (*entity.ModelClassification, error) {
	var mc entity.ModelClassification
	err := r.db.WithContext(ctx).First(&mc, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &mc, nil
}

func (r *ClassificationRepository) ListModelsByProductType(ctx context.Context, productTypeID string) ([]entity.ModelClassification, error) {
	var mcs []entity.ModelClassification
	query := r.db.WithContext(ctx).Order("sort_order ASC, created_at ASC")
	if productTypeID != "" {
		query = query.Where("product_type_id = ?", productTypeID)
	}
	err := query.Find(&mcs).Error
	return mcs, err
}

func (r *ClassificationRepository) ModelTypeExists(ctx context.Context, modelType string, excludeID string) (bool, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&entity.ModelClassification{}).Where("model_type = ?", modelType)
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}
	err := query.Count(&count).Error
	return count > 0, err
}

func (r *ClassificationRepository) UpdateModel(ctx context.Context, mc *entity.ModelClassification) error {
	return r.db.WithContext(ctx).Save(mc).Error
}

func (r *ClassificationRepository) DeleteModel(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&entity.ModelClassification{}, "id = ?", id).Error
}

// ========== CodeClassification ==========

func (r *ClassificationRepository) CreateCode(ctx context.Context, cc *entity.CodeClassification) error {
	return r.db.WithContext(ctx).Create(cc).Error
}

func (r *ClassificationRepository) FindCodeByID(ctx context.Context, id string) (*entity.CodeClassification, error) {
	var cc entity.CodeClassification
	err := r.db.WithContext(ctx).First(&cc, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &cc, nil
}

func (r *ClassificationRepository) ListCodesByModel(ctx context.Context, modelClassificationID string) ([]entity.CodeClassification, error) {
	var ccs []entity.CodeClassification
	err := r.db.WithContext(ctx).
		Where("model_classification_id = ?", modelClassificationID).
		Order("sort_order ASC, created_at ASC").
		Find(&ccs).Error
	return ccs, err
}

// CodeExistsInModel 检查代码分类编号在同一机型分类下是否已存在
func (r *ClassificationRepository) CodeExistsInModel(ctx context.Context, modelClassificationID, code, excludeID string) (bool, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&entity.CodeClassification{}).
		Where("model_classification_id = ? AND code = ?", modelClassificationID, code)
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}
	err := query.Count(&count).Error
	return count > 0, err
}

func (r *ClassificationRepository) UpdateCode(ctx context.Context, cc *entity.CodeClassification) error {
	return r.db.WithContext(ctx).Save(cc).Error
}

// ========== CodePreAllocationLog ==========

func (r *ClassificationRepository) ListPreAllocationLogs(ctx context.Context, codeClassificationID string) ([]entity.CodePreAllocationLog, error) {
	var logs []entity.CodePreAllocationLog
	err := r.db.WithContext(ctx).
		Where("code_classification_id = ?", codeClassificationID).
		Order("created_at DESC").
		Find(&logs).Error
	return logs, err
}
