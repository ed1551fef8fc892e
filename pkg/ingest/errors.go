package ingest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/hashicorp-forge/docvault/pkg/models"
)

// Error codes recorded on failed ingest jobs, re-exported from the
// persisted vocabulary for local use.
const (
	ErrCodeStorageTempFileMissing = models.ErrCodeStorageTempFileMissing
	ErrCodeStorageReadFail        = models.ErrCodeStorageReadFail
	ErrCodeStorageWriteFail       = models.ErrCodeStorageWriteFail
	ErrCodeCaptionParseFail       = models.ErrCodeCaptionParseFail
	ErrCodeSummaryExtractFail     = models.ErrCodeSummaryExtractFail
	ErrCodeRuleClassifyFail       = models.ErrCodeRuleClassifyFail
	ErrCodeDBWriteFail            = models.ErrCodeDBWriteFail
	ErrCodeNotifyCallbackFail     = models.ErrCodeNotifyCallbackFail
	ErrCodeDLQMaxAttempts         = models.ErrCodeDLQMaxAttempts
	ErrCodePipelineUnexpected     = models.ErrCodePipelineUnexpected
)

// Pipeline stages, matching the state a job was trying to reach.
const (
	StageStored     = "STORED"
	StageExtracted  = "EXTRACTED"
	StageClassified = "CLASSIFIED"
	StageIndexed    = "INDEXED"
	StagePublished  = "PUBLISHED"
	StagePipeline   = "PIPELINE"
)

// PipelineError carries the error code and the stage that failed. The
// pipeline fails the job with exactly one of these.
type PipelineError struct {
	Code    string
	Stage   string
	Message string
	Err     error
}

// Error implements error.
func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s at %s: %s", e.Code, e.Stage, e.Message)
}

// Unwrap exposes the underlying cause.
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// stageError wraps an arbitrary failure into a PipelineError with the
// code appropriate for the stage.
func stageError(err error, stage string) *PipelineError {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe
	}
	return &PipelineError{
		Code:    classifyErrorForStage(err, stage),
		Stage:   stage,
		Message: err.Error(),
		Err:     err,
	}
}

// classifyErrorForStage maps an error to its code given the stage it
// interrupted.
func classifyErrorForStage(err error, stage string) string {
	switch stage {
	case StageStored:
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, os.ErrNotExist) {
			return ErrCodeStorageTempFileMissing
		}
		if errors.Is(err, fs.ErrPermission) {
			return ErrCodeStorageReadFail
		}
		return ErrCodeStorageWriteFail
	case StageExtracted:
		return ErrCodeCaptionParseFail
	case StageClassified:
		return ErrCodeRuleClassifyFail
	case StageIndexed:
		return ErrCodeDBWriteFail
	case StagePublished:
		return ErrCodeNotifyCallbackFail
	}
	return ErrCodePipelineUnexpected
}
