package models

import "errors"

var (
	// ErrSourceNotFound 来源不存在错误
	ErrSourceNotFound = errors.New("source not found")

	// ErrInvalidSourceStatus 无效的来源状态错误
	ErrInvalidSourceStatus = errors.New("invalid source status")
)
