package repository

import (
	"context"
	"errors"

	"github.com/bitfantasy/nimo-codes/internal/codes/entity"
	"gorm.io/gorm"
)

type CodeUsageRepository struct {
	db *gorm.DB
}

func NewCodeUsageRepository(db *gorm.DB) *CodeUsageRepository {
	return &CodeUsageRepository{db: db}
}

func (r *CodeUsageRepository) DB() *gorm.DB {
	return r.db
}

func (r *CodeUsageRepository) Create(ctx context.Context, usage *entity.CodeUsage) error {
	return r.db.WithContext(ctx).Create(usage).Error
}

func (r *CodeUsageRepository) FindByID(ctx context.Context, id string) (*entity.CodeUsage, error) {
	var usage entity.CodeUsage
	err := r.db.WithContext(ctx).First(&usage, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &usage, nil
}

// FindActiveByModel 按完整编码查找未删除的条目
func (r *CodeUsageRepository) FindActiveByModel(ctx context.Context, model string) (*entity.CodeUsage, error) {
	var usage entity.CodeUsage
	err := r.db.WithContext(ctx).
		First(&usage, "model = ? AND is_deleted = false", model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &usage, nil
}

// ModelExists 检查完整编码在未删除条目中是否已占用，excludeID 用于原地更新
func (r *CodeUsageRepository) ModelExists(ctx context.Context, model string, excludeID string) (bool, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&entity.CodeUsage{}).
		Where("model = ? AND is_deleted = false", model)
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}
	err := query.Count(&count).Error
	return count > 0, err
}

// ListFilter 列表过滤条件
type ListFilter struct {
	ModelClassificationID string
	CodeClassificationID  string
	IsAllocated           *bool
	IncludeDeleted        bool
	Keyword               string
}

func (r *CodeUsageRepository) List(ctx context.Context, filter ListFilter, page, pageSize int) ([]entity.CodeUsage, int64, error) {
	var items []entity.CodeUsage
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.CodeUsage{})
	if filter.ModelClassificationID != "" {
		query = query.Where("model_classification_id = ?", filter.ModelClassificationID)
	}
	if filter.CodeClassificationID != "" {
		query = query.Where("code_classification_id = ?", filter.CodeClassificationID)
	}
	if filter.IsAllocated != nil {
		query = query.Where("is_allocated = ?", *filter.IsAllocated)
	}
	if !filter.IncludeDeleted {
		query = query.Where("is_deleted = false")
	}
	if filter.Keyword != "" {
		kw := "%" + filter.Keyword + "%"
		query = query.Where("model ILIKE ? OR product_name ILIKE ? OR customer ILIKE ?", kw, kw, kw)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("model ASC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error

	return items, total, err
}

// Claim 以 CAS 方式占用一条可用编码：仅当条目仍处于未占用、未删除状态时更新。
// 返回受影响行数；并发竞争下输掉的一方拿到 0。
func (r *CodeUsageRepository) Claim(ctx context.Context, id string, updates map[string]interface{}) (int64, error) {
	res := r.db.WithContext(ctx).Model(&entity.CodeUsage{}).
		Where("id = ? AND is_allocated = false AND is_deleted = false", id).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (r *CodeUsageRepository) Update(ctx context.Context, usage *entity.CodeUsage) error {
	return r.db.WithContext(ctx).Save(usage).Error
}

// CodeStats 编码占用统计
type CodeStats struct {
	Total     int64 `json:"total"`
	Allocated int64 `json:"allocated"`
	Available int64 `json:"available"`
}

func (r *CodeUsageRepository) Stats(ctx context.Context, modelClassificationID, codeClassificationID string) (*CodeStats, error) {
	base := func() *gorm.DB {
		query := r.db.WithContext(ctx).Model(&entity.CodeUsage{}).Where("is_deleted = false")
		if modelClassificationID != "" {
			query = query.Where("model_classification_id = ?", modelClassificationID)
		}
		if codeClassificationID != "" {
			query = query.Where("code_classification_id = ?", codeClassificationID)
		}
		return query
	}

	var stats CodeStats
	if err := base().Count(&stats.Total).Error; err != nil {
		return nil, err
	}
	if err := base().Where("is_allocated = true").Count(&stats.Allocated).Error; err != nil {
		return nil, err
	}
	stats.Available = stats.Total - stats.Allocated
	return &stats, nil
}

// CountAllocatedInClassification 统计代码分类下已占用的编码数
func (r *CodeUsageRepository) CountAllocatedInClassification(ctx context.Context, codeClassificationID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.CodeUsage{}).
		Where("code_classification_id = ? AND is_allocated = true", codeClassificationID).
		Count(&count).Error
	return count, err
}
