package entity

import "time"

// 占用类型
const (
	OccupancyPlanning  = "planning"
	OccupancyWorkOrder = "work_order"
	OccupancyPause     = "pause"
)

// CodeUsage 一条具体的机型编码。Model 为完整编码字符串：
// 机型前缀 + 分类编号（三级结构才有）+ 定长流水号 + 延伸码（可选），
// 如 "SLU-1" + "50" + "B" → "SLU-150B"。
// 非删除编码的 Model 全局唯一，由 partial unique index 保证（见 cmd/server 的迁移）。
type CodeUsage struct {
	ID                    string  `json:"id" gorm:"primaryKey;size:32"`
	ModelClassificationID string  `json:"model_classification_id" gorm:"size:32;not null;index"`
	CodeClassificationID  *string `json:"code_classification_id,omitempty" gorm:"size:32;index"`
	Model                 string  `json:"model" gorm:"size:64;not null;index"`
	ModelType             string  `json:"model_type" gorm:"size:32;not null;index"`
	// ClassificationNumber 仅三级结构非空，等于所属代码分类 Code 的前导编号
	ClassificationNumber *int   `json:"classification_number,omitempty"`
	ActualNumber         string `json:"actual_number" gorm:"size:16;not null"`
	Extension            string `json:"extension,omitempty" gorm:"size:16"`

	IsAllocated   bool    `json:"is_allocated" gorm:"not null;default:false;index"`
	IsDeleted     bool    `json:"is_deleted" gorm:"not null;default:false;index"`
	DeletedReason *string `json:"deleted_reason,omitempty" gorm:"size:255"`
	OccupancyType string  `json:"occupancy_type,omitempty" gorm:"size:16"`

	// 产品信息
	ProductName string `json:"product_name,omitempty" gorm:"size:128"`
	Description string `json:"description,omitempty" gorm:"type:text"`
	Customer    string `json:"customer,omitempty" gorm:"size:128"`
	Factory     string `json:"factory,omitempty" gorm:"size:128"`
	Builder     string `json:"builder,omitempty" gorm:"size:64"`
	Requester   string `json:"requester,omitempty" gorm:"size:64"`

	// NumberDigits 创建时的流水号位数快照
	NumberDigits int       `json:"number_digits" gorm:"not null"`
	CreatedBy    string    `json:"created_by" gorm:"size:32"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	// Relations
	ModelClassification *ModelClassification `json:"model_classification,omitempty" gorm:"foreignKey:ModelClassificationID"`
	CodeClassification  *CodeClassification  `json:"code_classification,omitempty" gorm:"foreignKey:CodeClassificationID"`
}

func (CodeUsage) TableName() string {
	return "code_usages"
}

// CodePreAllocationLog 预生成批次记录，只写不改
type CodePreAllocationLog struct {
	ID                    string    `json:"id" gorm:"primaryKey;size:32"`
	ModelClassificationID string    `json:"model_classification_id" gorm:"size:32;not null;index"`
	CodeClassificationID  string    `json:"code_classification_id" gorm:"size:32;not null;index"`
	GeneratedCount        int       `json:"generated_count" gorm:"not null"`
	SkippedCount          int       `json:"skipped_count" gorm:"not null;default:0"`
	FirstCode             string    `json:"first_code" gorm:"size:64;not null"`
	LastCode              string    `json:"last_code" gorm:"size:64;not null"`
	NumberDigits          int       `json:"number_digits" gorm:"not null"`
	CreatedBy             string    `json:"created_by" gorm:"size:32"`
	CreatedAt             time.Time `json:"created_at"`
}

func (CodePreAllocationLog) TableName() string {
	return "code_preallocation_logs"
}
