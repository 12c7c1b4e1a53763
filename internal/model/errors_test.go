package model

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesByKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewAlreadyExists("vhost %s", "example.com"))

	assert.True(t, errors.Is(err, ErrAlreadyExists))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, KindAlreadyExists, KindOf(err))
}

func TestError_Message(t *testing.T) {
	err := NewDriverFailure("vhost", "a2ensite failed", errors.New("exit status 1"))
	assert.Equal(t, "[driver_failure] vhost: a2ensite failed: exit status 1", err.Error())
}

func TestNewLockTimeout_CarriesHolder(t *testing.T) {
	err := NewLockTimeout(4242, "/var/lib/dpkg/lock-frontend", 5*time.Second)

	assert.Equal(t, 4242, err.HolderPID)
	assert.Equal(t, "/var/lib/dpkg/lock-frontend", err.Path)
	assert.Contains(t, err.Error(), "pid 4242")
	assert.Contains(t, err.Error(), "5s")
}

func TestKindOf_Unclassified(t *testing.T) {
	assert.Equal(t, ErrorKind(""), KindOf(nil))
	assert.Equal(t, KindDriverFailure, KindOf(errors.New("boom")))
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"declined", NewConfirmationDeclined("remove site?"), ExitOK},
		{"preflight", NewPreflightBlocking("create-site", nil), ExitBlocked},
		{"lock", NewLockTimeout(0, "", time.Second), ExitBlocked},
		{"driver", NewDriverFailure("docroot", "mkdir", nil), ExitDriverFailure},
		{"exists", NewAlreadyExists("db"), ExitDriverFailure},
		{"not found", NewNotFound("site"), ExitError},
		{"plain", errors.New("x"), ExitDriverFailure},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExitCode(tc.err))
		})
	}
}

func TestPreflightReport_Blocking(t *testing.T) {
	r := &PreflightReport{Findings: []Finding{
		{Check: "a", Status: CheckOK, Severity: SeverityBlocking},
		{Check: "b", Status: CheckMissing, Severity: SeverityBlocking},
		{Check: "c", Status: CheckMissing, Severity: SeverityAdvisory},
	}}

	assert.False(t, r.OK())
	assert.Len(t, r.Blocking(), 1)
	assert.Equal(t, "b", r.Blocking()[0].Check)
	assert.Len(t, r.Advisory(), 1)
}
