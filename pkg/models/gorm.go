package models

// ModelsToAutoMigrate returns the models to automatically migrate, in
// dependency order.
func ModelsToAutoMigrate() []interface{} {
	return []interface{}{
		&Category{},
		&Tag{},
		&File{},
		&Document{},
		&DocumentVersion{},
		&DocumentFile{},
		&DocumentTag{},
		&IngestJob{},
		&IngestEvent{},
		&Ruleset{},
		&RuleVersion{},
		&AuditLog{},
	}
}
