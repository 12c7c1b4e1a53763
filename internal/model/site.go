package model

// Site is one provisioned bundle of host resources keyed by domain.
// It is never persisted by lampctl; List rebuilds it from vhost descriptors.
type Site struct {
	Domain    string `json:"domain"`
	DocRoot   string `json:"doc_root"`
	VhostPath string `json:"vhost_path"`
	SSL       bool   `json:"ssl"`
	DBName    string `json:"db_name,omitempty"`
	DBUser    string `json:"db_user,omitempty"`
	CMS       bool   `json:"cms"`
}

// DB root authentication modes.
const (
	DBAuthAuto     = "auto"
	DBAuthSocket   = "socket"
	DBAuthPassword = "password"
)

// Database engines.
const (
	EngineAuto    = "auto"
	EngineMySQL   = "mysql"
	EngineMariaDB = "mariadb"
)
