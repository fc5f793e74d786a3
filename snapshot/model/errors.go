package model

import (
	"errors"
)

var (
	ErrInvalidDefinition = errors.New("invalid model definition")
	ErrInvalidCron       = errors.New("invalid cron expression")
	ErrInvalidStart      = errors.New("invalid start")
	ErrUnknownKind       = errors.New("unknown model kind")
	ErrDuplicateName     = errors.New("duplicate name")
	ErrEmptyName         = errors.New("empty name")
)
