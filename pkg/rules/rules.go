// Package rules manages classification rulesets and their immutable
// published versions.
package rules

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/docvault/pkg/classify"
	"github.com/hashicorp-forge/docvault/pkg/models"
)

// DefaultRulesetName is the ruleset the ingest pipeline classifies
// with.
const DefaultRulesetName = "ingest-classification"

// Repository reads and publishes rule versions.
type Repository struct {
	db     *gorm.DB
	logger hclog.Logger
}

// NewRepository creates a rules repository.
func NewRepository(db *gorm.DB, logger hclog.Logger) *Repository {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Repository{db: db, logger: logger.Named("rules")}
}

// CanonicalChecksum computes the SHA-256 over the canonical JSON form
// of a rules document: object keys sorted, compact separators. Two
// semantically identical documents always hash the same.
func CanonicalChecksum(rulesJSON []byte) (string, error) {
	var decoded interface{}
	if err := json.Unmarshal(rulesJSON, &decoded); err != nil {
		return "", fmt.Errorf("invalid rules JSON: %w", err)
	}
	// encoding/json marshals map keys in sorted order with compact
	// separators, which is exactly the canonical form.
	canonical, err := json.Marshal(decoded)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize rules JSON: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// ActiveRules returns the decoded rules of the newest active version
// for the default ruleset. When no version is active, a minimal
// default-category document is returned so classification still runs.
func (r *Repository) ActiveRules() (classify.Rules, error) {
	version, err := models.GetActiveRuleVersion(r.db, DefaultRulesetName)
	if err != nil {
		return nil, fmt.Errorf("failed to load active rule version: %w", err)
	}
	if version == nil {
		r.logger.Warn("no active rule version, using default category only")
		return classify.Rules{
			"default_category": classify.DefaultCategory,
			"category_rules":   []interface{}{},
		}, nil
	}

	var rules classify.Rules
	if err := json.Unmarshal([]byte(version.Rules), &rules); err != nil {
		return nil, fmt.Errorf("failed to decode rule version %s: %w", version.ID, err)
	}
	return rules, nil
}

// EnsureRuleset fetches a ruleset by name, creating it when absent.
func (r *Repository) EnsureRuleset(name string) (*models.Ruleset, error) {
	var ruleset models.Ruleset
	err := r.db.Where("name = ?", name).First(&ruleset).Error
	if err == nil {
		return &ruleset, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	ruleset = models.Ruleset{Name: name}
	if err := r.db.Create(&ruleset).Error; err != nil {
		var existing models.Ruleset
		if err2 := r.db.Where("name = ?", name).First(&existing).Error; err2 == nil {
			return &existing, nil
		}
		return nil, fmt.Errorf("failed to create ruleset %s: %w", name, err)
	}
	return &ruleset, nil
}

// Publish stores a new rule version with the next dense version number.
// The version starts inactive; Activate flips it live.
func (r *Repository) Publish(rulesetName string, rulesJSON []byte, publishedBy string) (*models.RuleVersion, error) {
	checksum, err := CanonicalChecksum(rulesJSON)
	if err != nil {
		return nil, err
	}

	ruleset, err := r.EnsureRuleset(rulesetName)
	if err != nil {
		return nil, err
	}

	var version models.RuleVersion
	err = r.db.Transaction(func(tx *gorm.DB) error {
		var maxVersion int
		if err := tx.Model(&models.RuleVersion{}).
			Where("ruleset_id = ?", ruleset.ID).
			Select("COALESCE(MAX(version_no), 0)").
			Scan(&maxVersion).Error; err != nil {
			return fmt.Errorf("failed to find latest version: %w", err)
		}

		version = models.RuleVersion{
			RulesetID:      ruleset.ID,
			VersionNo:      maxVersion + 1,
			Rules:          models.JSON(rulesJSON),
			ChecksumSHA256: checksum,
			PublishedBy:    publishedBy,
		}
		return tx.Create(&version).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to publish rule version: %w", err)
	}

	r.logger.Info("rule version published",
		"ruleset", rulesetName,
		"version", version.VersionNo,
		"checksum", checksum)
	return &version, nil
}

// Activate makes one version the active one for its ruleset. The swap
// happens in a single transaction so readers never see zero or two
// active versions.
func (r *Repository) Activate(versionID uuid.UUID, actor string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var version models.RuleVersion
		if err := tx.First(&version, "id = ?", versionID).Error; err != nil {
			return fmt.Errorf("rule version not found: %w", err)
		}

		if err := tx.Model(&models.RuleVersion{}).
			Where("ruleset_id = ? AND is_active = ?", version.RulesetID, true).
			Update("is_active", false).Error; err != nil {
			return fmt.Errorf("failed to deactivate current version: %w", err)
		}

		now := time.Now().UTC()
		if err := tx.Model(&version).Updates(map[string]interface{}{
			"is_active":    true,
			"published_at": now,
		}).Error; err != nil {
			return fmt.Errorf("failed to activate version: %w", err)
		}

		versionIDCopy := version.ID
		return models.RecordAudit(tx, models.AuditRuleVersionActivate, "rule_version",
			&versionIDCopy, actor, models.JSONMap(map[string]interface{}{
				"ruleset_id": version.RulesetID.String(),
				"version_no": version.VersionNo,
			}))
	})
}

// ActiveVersionNo returns the version number of the active default
// ruleset version, or 0 when none is active. Backfill stamps this into
// change reasons.
func (r *Repository) ActiveVersionNo() (int, error) {
	version, err := models.GetActiveRuleVersion(r.db, DefaultRulesetName)
	if err != nil {
		return 0, err
	}
	if version == nil {
		return 0, nil
	}
	return version.VersionNo, nil
}
