package entity

import "time"

// OperationLog 操作日志
type OperationLog struct {
	ID         string `json:"id" gorm:"primaryKey;size:32"`
	EntityType string `json:"entity_type" gorm:"size:50;index:idx_oplog_entity"` // product_type/model_classification/code_classification/code_usage
	EntityID   string `json:"entity_id" gorm:"size:32;index:idx_oplog_entity"`

	Action      string `json:"action" gorm:"size:50;not null"` // create/update/delete/allocate/restore/preallocate等
	Description string `json:"description" gorm:"type:text"`

	OperatorID   string    `json:"operator_id" gorm:"size:32"`
	OperatorName string    `json:"operator_name" gorm:"size:100"`
	CreatedAt    time.Time `json:"created_at"`
}

func (OperationLog) TableName() string {
	return "operation_logs"
}
