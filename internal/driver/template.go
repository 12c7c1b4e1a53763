package driver

import (
	"bytes"
	"path/filepath"
	"text/template"

	"github.com/edvin/lampctl/internal/platform"
)

var vhostTmpl = template.Must(template.New("vhost").Parse(`<VirtualHost *:80>
    ServerName {{ .Domain }}
{{- if .Alias }}
    ServerAlias {{ .Alias }}
{{- end }}
    DocumentRoot {{ .DocRoot }}

    <Directory {{ .DocRoot }}>
        Options -Indexes +FollowSymLinks
        AllowOverride All
        Require all granted
    </Directory>

    ErrorLog {{ .ErrorLog }}
    CustomLog {{ .AccessLog }} combined
</VirtualHost>
`))

// VhostParams are the values rendered into a virtual host descriptor.
type VhostParams struct {
	Domain    string
	Alias     string
	DocRoot   string
	ErrorLog  string
	AccessLog string
}

// NewVhostParams derives descriptor values for domain.
func NewVhostParams(domain, docRoot, logDir string) VhostParams {
	errLog, accessLog := LogPaths(logDir, domain)
	return VhostParams{
		Domain:    domain,
		Alias:     platform.WWWAlias(domain),
		DocRoot:   docRoot,
		ErrorLog:  errLog,
		AccessLog: accessLog,
	}
}

// LogPaths returns the per-site error and access log paths.
func LogPaths(logDir, domain string) (errorLog, accessLog string) {
	return filepath.Join(logDir, domain+"_error.log"), filepath.Join(logDir, domain+"_access.log")
}

// RenderVhost renders the virtual host descriptor. It has no side effects.
func RenderVhost(p VhostParams) (string, error) {
	var buf bytes.Buffer
	if err := vhostTmpl.Execute(&buf, p); err != nil {
		return "", err
	}
	return buf.String(), nil
}
