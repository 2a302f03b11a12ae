package repository

import (
	"errors"

	"gorm.io/gorm"
)

// 错误定义
var (
	ErrNotFound = errors.New("record not found")
)

// Repositories 仓库集合
type Repositories struct {
	ProductType    *ProductTypeRepository
	Classification *ClassificationRepository
	CodeUsage      *CodeUsageRepository
	OperationLog   *OperationLogRepository
}

// NewRepositories 创建仓库集合
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		ProductType:    NewProductTypeRepository(db),
		Classification: NewClassificationRepository(db),
		CodeUsage:      NewCodeUsageRepository(db),
		OperationLog:   NewOperationLogRepository(db),
	}
}
