package domain

import "errors"

var (
	ErrInvalidID        = errors.New("invalid id")
	ErrInvalidTitle     = errors.New("invalid title")
	ErrInvalidPath      = errors.New("invalid iteration path")
	ErrInvalidDateRange = errors.New("invalid date range")
	ErrInvalidHours     = errors.New("invalid hours value")
	ErrInvalidName      = errors.New("invalid name")
	ErrOverlappingRange = errors.New("overlapping iterations")
	ErrUnknownIteration = errors.New("unknown iteration")
	ErrInvalidType      = errors.New("invalid work item type")
)
