package model

// Operation result status constants.
const (
	StatusApplied = "applied"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// Preflight finding status constants.
const (
	CheckOK      = "ok"
	CheckMissing = "missing"
)

// Preflight finding severity constants.
const (
	SeverityBlocking = "blocking"
	SeverityAdvisory = "advisory"
)
