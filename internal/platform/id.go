package platform

import "github.com/google/uuid"

// NewRunID returns the identifier attached to one invocation's logs and report.
func NewRunID() string {
	return uuid.New().String()
}
