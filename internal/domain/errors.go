package domain

import "errors"

var (
	ErrInvalidID       = errors.New("invalid id")
	ErrInvalidName     = errors.New("invalid name")
	ErrInvalidSubject  = errors.New("invalid subject")
	ErrInvalidOrdinal  = errors.New("invalid ordinal")
	ErrInvalidColumnID = errors.New("invalid column id")
	ErrNoColumns       = errors.New("board requires at least one column")
	ErrDuplicateColumn = errors.New("duplicate column id")
	ErrDuplicateTask   = errors.New("task already placed")
	ErrUnknownColumn   = errors.New("unknown column")
	ErrUnknownTask     = errors.New("unknown task")
)
