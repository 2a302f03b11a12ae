package entity

import "time"

// ModelClassification 机型分类（层级第二级），ModelType 即编码前缀，如 "SLU-"
type ModelClassification struct {
	ID            string `json:"id" gorm:"primaryKey;size:32"`
	ProductTypeID string `json:"product_type_id" gorm:"size:32;not null;index"`
	ModelType     string `json:"model_type" gorm:"size:32;not null;uniqueIndex"`
	Name          string `json:"name" gorm:"size:128;not null"`
	// HasCodeClassification 为 true 时启用三级结构，编码按代码分类分组预生成；
	// 为 false 时编码直接挂在机型分类下，由人工单条创建
	HasCodeClassification bool      `json:"has_code_classification" gorm:"not null;default:false"`
	Description           string    `json:"description,omitempty"`
	SortOrder             int       `json:"sort_order" gorm:"default:0"`
	CreatedBy             string    `json:"created_by" gorm:"size:32"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`

	// Relations
	ProductType         *ProductType         `json:"product_type,omitempty" gorm:"foreignKey:ProductTypeID"`
	CodeClassifications []CodeClassification `json:"code_classifications,omitempty" gorm:"foreignKey:ModelClassificationID"`
}

func (ModelClassification) TableName() string {
	return "model_classifications"
}

// CodeClassification 代码分类（层级第三级），Code 格式为 "<编号>-<名称>"，如 "1-内层"
type CodeClassification struct {
	ID                    string    `json:"id" gorm:"primaryKey;size:32"`
	ModelClassificationID string    `json:"model_classification_id" gorm:"size:32;not null;index:idx_code_class_parent_code,unique"`
	Code                  string    `json:"code" gorm:"size:64;not null;index:idx_code_class_parent_code,unique"`
	Name                  string    `json:"name" gorm:"size:128;not null"`
	SortOrder             int       `json:"sort_order" gorm:"default:0"`
	CreatedBy             string    `json:"created_by" gorm:"size:32"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`

	// Relations
	ModelClassification *ModelClassification `json:"model_classification,omitempty" gorm:"foreignKey:ModelClassificationID"`
}

func (CodeClassification) TableName() string {
	return "code_classifications"
}
