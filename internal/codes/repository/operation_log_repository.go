package repository

import (
	"context"

	"github.com/bitfantasy/nimo-codes/internal/codes/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OperationLogRepository 操作日志仓库
type OperationLogRepository struct {
	db *gorm.DB
}

func NewOperationLogRepository(db *gorm.DB) *OperationLogRepository {
	return &OperationLogRepository{db: db}
}

// Record 记录一条操作日志。日志失败不能影响业务操作，忽略错误。
func (r *OperationLogRepository) Record(ctx context.Context, action, description, entityType, entityID, operatorID, operatorName string) {
	log := &entity.OperationLog{
		ID:           uuid.New().String()[:32],
		EntityType:   entityType,
		EntityID:     entityID,
		Action:       action,
		Description:  description,
		OperatorID:   operatorID,
		OperatorName: operatorName,
	}
	r.db.WithContext(ctx).Create(log)
}

// FindByEntity 查询某实体的操作日志
func (r *OperationLogRepository) FindByEntity(ctx context.Context, entityType, entityID string, page, pageSize int) ([]entity.OperationLog, int64, error) {
	var items []entity.OperationLog
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.OperationLog{}).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error

	return items, total, err
}
