package logging

import (
	"go.uber.org/zap"
)

// New builds the process logger: JSON output in production, console output
// with colored levels everywhere else.
func New(environment string) (*zap.Logger, error) {
	if environment == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
