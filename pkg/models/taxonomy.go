package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Category is a curated classification bucket. Names are unique; the
// default bucket (IsDefault) catches documents no rule matched.
type Category struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Name        string `gorm:"type:varchar(100);not null;uniqueIndex:uq_categories_name" json:"name"`
	Description string `gorm:"type:text;not null;default:''" json:"description"`
	IsDefault   bool   `gorm:"not null;default:false" json:"isDefault"`
	SortOrder   int    `gorm:"not null;default:0" json:"sortOrder"`
}

// TableName specifies the table name.
func (Category) TableName() string {
	return "categories"
}

// BeforeCreate hook to ensure the ID is set.
func (c *Category) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// GetCategoryByName finds a category by exact name, or nil.
func GetCategoryByName(db *gorm.DB, name string) (*Category, error) {
	var cat Category
	err := db.Where("name = ?", name).First(&cat).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &cat, nil
}

// GetDefaultCategory returns the default bucket, or nil when none is
// marked.
func GetDefaultCategory(db *gorm.DB) (*Category, error) {
	var cat Category
	err := db.Where("is_default = ?", true).First(&cat).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &cat, nil
}

// FirstOrCreateCategory fetches a category by name, creating it when
// absent. A concurrent insert losing the unique-index race is resolved
// by re-selecting the winner's row.
func FirstOrCreateCategory(db *gorm.DB, name string) (*Category, error) {
	if cat, err := GetCategoryByName(db, name); err != nil {
		return nil, err
	} else if cat != nil {
		return cat, nil
	}

	cat := Category{Name: name}
	if err := db.Create(&cat).Error; err != nil {
		if existing, err2 := GetCategoryByName(db, name); err2 == nil && existing != nil {
			return existing, nil
		}
		return nil, err
	}
	return &cat, nil
}

// Tag is one label. Names are stored trimmed and unique; structured
// tags keep their "kind:value" form in Name.
type Tag struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Name string `gorm:"type:varchar(100);not null;uniqueIndex:uq_tags_name" json:"name"`
}

// TableName specifies the table name.
func (Tag) TableName() string {
	return "tags"
}

// BeforeCreate hook to ensure the ID is set.
func (t *Tag) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// FirstOrCreateTag fetches a tag by name, creating it when absent, with
// the same race handling as FirstOrCreateCategory.
func FirstOrCreateTag(db *gorm.DB, name string) (*Tag, error) {
	var tag Tag
	err := db.Where("name = ?", name).First(&tag).Error
	if err == nil {
		return &tag, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	tag = Tag{Name: name}
	if err := db.Create(&tag).Error; err != nil {
		var existing Tag
		if err2 := db.Where("name = ?", name).First(&existing).Error; err2 == nil {
			return &existing, nil
		}
		return nil, err
	}
	return &tag, nil
}
