package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFailed_CarriesKind(t *testing.T) {
	err := NewDriverFailure("database", "create database", nil)
	res := Failed("database", err)

	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, KindDriverFailure, res.ErrorKind)
	assert.ErrorIs(t, res.Err, ErrDriverFailure)
	assert.Contains(t, res.Detail, "create database")
}

func TestExecutionReport_CompletedAndFailure(t *testing.T) {
	r := &ExecutionReport{Results: []OperationResult{
		Applied("hosts-entry", "added"),
		Skipped("vhost", "already present"),
		Failed("docroot", NewNotFound("archive missing")),
	}}

	assert.Equal(t, []string{"hosts-entry", "vhost"}, r.Completed())
	failed, ok := r.Failure()
	require.True(t, ok)
	assert.Equal(t, "docroot", failed.Step)
	assert.Equal(t, KindNotFound, failed.ErrorKind)

	_, ok = (&ExecutionReport{Results: r.Results[:2]}).Failure()
	assert.False(t, ok)
}

func TestInstallPlan_StepNames(t *testing.T) {
	p := &InstallPlan{Steps: []PlanStep{{Name: "hosts-entry"}, {Name: "vhost"}}}
	assert.Equal(t, []string{"hosts-entry", "vhost"}, p.StepNames())
}
