package entity

import "time"

// ProductType 产品大类（层级第一级）
type ProductType struct {
	ID        string    `json:"id" gorm:"primaryKey;size:32"`
	Code      string    `json:"code" gorm:"size:32;not null;uniqueIndex"`
	Name      string    `json:"name" gorm:"size:128;not null"`
	SortOrder int       `json:"sort_order" gorm:"default:0"`
	CreatedBy string    `json:"created_by" gorm:"size:32"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	ModelClassifications []ModelClassification `json:"model_classifications,omitempty" gorm:"foreignKey:ProductTypeID"`
}

func (ProductType) TableName() string {
	return "product_types"
}
