package scheduler

import (
	"errors"
)

var (
	ErrNilEvaluator     = errors.New("evaluator must not be nil")
	ErrInvalidBatchSize = errors.New("batch size must not be negative")
	ErrEvaluationFailed = errors.New("evaluating batch failed")
	ErrRecordingFailed  = errors.New("recording interval failed")
	ErrRunCanceled      = errors.New("run canceled")
)
