package models

// Error codes persisted on ingest_jobs.last_error_code. The pipeline
// sets one per failed attempt; DLQ_MAX_ATTEMPTS marks exhaustion.
const (
	ErrCodeStorageTempFileMissing = "STORAGE_TEMP_FILE_MISSING"
	ErrCodeStorageReadFail        = "STORAGE_READ_FAIL"
	ErrCodeStorageWriteFail       = "STORAGE_WRITE_FAIL"
	ErrCodeCaptionParseFail       = "CAPTION_PARSE_FAIL"
	ErrCodeSummaryExtractFail     = "SUMMARY_EXTRACT_FAIL"
	ErrCodeRuleClassifyFail       = "RULE_CLASSIFY_FAIL"
	ErrCodeDBWriteFail            = "DB_WRITE_FAIL"
	ErrCodeNotifyCallbackFail     = "NOTIFY_CALLBACK_FAIL"
	ErrCodeDLQMaxAttempts         = "DLQ_MAX_ATTEMPTS"
	ErrCodePipelineUnexpected     = "PIPELINE_UNEXPECTED"
)
