package site

import (
	"fmt"
	"io"
	"strings"

	"github.com/edvin/lampctl/internal/driver"
	"github.com/edvin/lampctl/internal/logging"
	"github.com/edvin/lampctl/internal/model"
)

// RenderSites writes the site inventory as a table.
func RenderSites(w io.Writer, sites []model.Site) {
	if len(sites) == 0 {
		fmt.Fprintln(w, "No sites found. Create one with: lampctl create-site <domain>")
		return
	}

	domainWidth, rootWidth := len("DOMAIN"), len("DOCUMENT ROOT")
	for _, s := range sites {
		domainWidth = max(domainWidth, len(s.Domain))
		rootWidth = max(rootWidth, len(s.DocRoot))
	}

	fmt.Fprintf(w, "%-*s  %-*s  %-3s  %s\n", domainWidth, "DOMAIN", rootWidth, "DOCUMENT ROOT", "SSL", "CMS")
	for _, s := range sites {
		docRoot := s.DocRoot
		if docRoot == "" {
			docRoot = "-"
		}
		fmt.Fprintf(w, "%-*s  %-*s  %-3s  %s\n", domainWidth, s.Domain, rootWidth, docRoot, yesNo(s.SSL), cmsLabel(s.CMS))
	}
}

// RenderReport writes a human readable summary of a run: the plan in
// dry-run, otherwise each result, followed by what was not attempted and
// how to undo a partial run. Details and command output are redacted,
// secrets included.
func RenderReport(w io.Writer, r *model.ExecutionReport, secrets ...string) {
	if r == nil {
		return
	}
	if r.Preflight != nil {
		for _, f := range r.Preflight.Findings {
			if f.Status != model.CheckMissing {
				continue
			}
			fmt.Fprintf(w, "preflight %-8s %-20s %s\n", f.Severity, f.Check, f.Remediation)
		}
	}

	if r.DryRun && r.Plan != nil {
		fmt.Fprintf(w, "Plan for %s %s (dry run):\n", r.Plan.Command, r.Plan.Target)
		for i, s := range r.Plan.Steps {
			fmt.Fprintf(w, "  %d. %-20s %s\n", i+1, s.Name, s.Description)
		}
	}

	for _, res := range r.Results {
		detail := logging.Redact(res.Detail, secrets...)
		if detail == "" {
			detail = "-"
		}
		fmt.Fprintf(w, "%-8s %-20s %s\n", strings.ToUpper(res.Status), res.Step, detail)
		if res.Status == model.StatusFailed && res.Output != "" {
			for _, line := range strings.Split(strings.TrimRight(res.Output, "\n"), "\n") {
				fmt.Fprintf(w, "         | %s\n", logging.Redact(line, secrets...))
			}
		}
	}

	if len(r.NotAttempted) > 0 {
		fmt.Fprintf(w, "Not attempted: %s\n", strings.Join(r.NotAttempted, ", "))
	}
	if len(r.UndoHints) > 0 {
		fmt.Fprintln(w, "To undo the applied steps:")
		for _, h := range r.UndoHints {
			fmt.Fprintf(w, "  %s\n", h)
		}
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func cmsLabel(b bool) string {
	if b {
		return "wordpress"
	}
	return "-"
}

// RenderDatabases writes one database name per line.
func RenderDatabases(w io.Writer, names []string) {
	if len(names) == 0 {
		fmt.Fprintln(w, "No databases found.")
		return
	}
	for _, n := range names {
		fmt.Fprintln(w, n)
	}
}

// RenderDBUsers writes the accounts as a USER/HOST table.
func RenderDBUsers(w io.Writer, users []driver.DBUser) {
	if len(users) == 0 {
		fmt.Fprintln(w, "No database users found.")
		return
	}
	width := len("USER")
	for _, u := range users {
		width = max(width, len(u.User))
	}
	fmt.Fprintf(w, "%-*s  %s\n", width, "USER", "HOST")
	for _, u := range users {
		fmt.Fprintf(w, "%-*s  %s\n", width, u.User, u.Host)
	}
}
