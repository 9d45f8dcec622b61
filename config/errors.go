// Package config provides error definitions for configuration management
package config

import "errors"

// Configuration validation errors
var (
	ErrInvalidAppName     = errors.New("invalid application name")
	ErrInvalidEnvironment = errors.New("invalid environment")
	ErrInvalidLogLevel    = errors.New("invalid log level")
	ErrInvalidLogFormat   = errors.New("invalid log format")
	ErrInvalidMailboxSize = errors.New("invalid mailbox size")
	ErrInvalidWatchBuffer = errors.New("invalid watch buffer")
	ErrInvalidMonitorAddr = errors.New("invalid monitor address")
	ErrInvalidWaitTimeout = errors.New("invalid wait timeout")
	ErrInvalidIngestAddr  = errors.New("invalid ingest address")
	ErrInvalidIngestLimit = errors.New("invalid ingest connection limit")
)

// Configuration loading errors
var (
	ErrConfigFileNotFound = errors.New("configuration file not found")
	ErrConfigParseError   = errors.New("configuration parse error")
	ErrUnsupportedFormat  = errors.New("unsupported configuration format")
	ErrConfigWatchError   = errors.New("configuration watch error")
)
