// Package testhelpers provides shared fixtures for package tests.
package testhelpers

import (
	"github.com/promptops/insight-pipeline/internal/logger"
)

// NewTestLogger creates a logger suitable for testing (discards all output).
func NewTestLogger() logger.Logger {
	return logger.NewNopLogger()
}
