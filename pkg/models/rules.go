package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Ruleset names one classification rule document lineage.
type Ruleset struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Name        string `gorm:"type:varchar(100);not null;uniqueIndex:uq_rulesets_name" json:"name"`
	Description string `gorm:"type:text;not null;default:''" json:"description"`
}

// TableName specifies the table name.
func (Ruleset) TableName() string {
	return "rulesets"
}

// BeforeCreate hook to ensure the ID is set.
func (r *Ruleset) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// RuleVersion is one immutable published revision of a ruleset. Version
// numbers are dense per ruleset; the checksum is computed over the
// canonical JSON form of Rules so re-publishing identical content is
// detectable.
type RuleVersion struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	RulesetID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_rule_versions_ruleset_version" json:"rulesetId"`
	VersionNo int       `gorm:"not null;uniqueIndex:uq_rule_versions_ruleset_version" json:"versionNo"`

	Rules          JSON   `gorm:"type:jsonb;not null" json:"rules"`
	ChecksumSHA256 string `gorm:"type:varchar(64);not null" json:"checksumSha256"`

	IsActive    bool       `gorm:"not null;default:false;index" json:"isActive"`
	PublishedBy string     `gorm:"type:varchar(100);not null;default:''" json:"publishedBy"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
}

// TableName specifies the table name.
func (RuleVersion) TableName() string {
	return "rule_versions"
}

// BeforeCreate hook to ensure the ID is set.
func (v *RuleVersion) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}

// GetActiveRuleVersion returns the newest active version for a ruleset
// name, or nil when the ruleset has no active version.
func GetActiveRuleVersion(db *gorm.DB, rulesetName string) (*RuleVersion, error) {
	var version RuleVersion
	err := db.Joins("JOIN rulesets ON rulesets.id = rule_versions.ruleset_id").
		Where("rulesets.name = ? AND rule_versions.is_active = ?", rulesetName, true).
		Order("rule_versions.published_at DESC, rule_versions.created_at DESC").
		First(&version).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &version, nil
}

// GetRuleVersions lists a ruleset's versions newest first.
func GetRuleVersions(db *gorm.DB, rulesetID uuid.UUID) ([]RuleVersion, error) {
	var versions []RuleVersion
	err := db.Where("ruleset_id = ?", rulesetID).
		Order("version_no DESC").
		Find(&versions).Error
	return versions, err
}
