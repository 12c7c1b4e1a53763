package driver

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/edvin/lampctl/internal/model"
)

// HostsDriver maintains static name resolution entries in the hosts file.
type HostsDriver struct {
	logger zerolog.Logger
	path   string
	ip     string
}

// NewHostsDriver creates a HostsDriver for the given file and address.
func NewHostsDriver(logger zerolog.Logger, path, ip string) *HostsDriver {
	return &HostsDriver{
		logger: logger.With().Str("component", "hosts-driver").Logger(),
		path:   path,
		ip:     ip,
	}
}

func (d *HostsDriver) Kind() Kind { return KindHosts }

// Entry returns the line Apply appends for domain.
func (d *HostsDriver) Entry(domain string) string {
	return d.ip + " " + domain
}

// Probe reports whether an equivalent entry exists: a line mapping the
// configured address to a hostname list that includes the domain.
func (d *HostsDriver) Probe(_ context.Context, spec Spec) (Presence, error) {
	lines, _, err := d.read()
	if err != nil {
		return Presence{}, err
	}
	for _, line := range lines {
		ip, names := parseHostsLine(line)
		if ip == d.ip && containsExact(names, spec.Site.Domain) {
			return Presence{Exists: true, Detail: strings.TrimSpace(line)}, nil
		}
	}
	return Presence{}, nil
}

// Apply appends the entry unless an equivalent line is already present.
func (d *HostsDriver) Apply(ctx context.Context, spec Spec) (model.OperationResult, error) {
	const step = "hosts-entry"
	entry := d.Entry(spec.Site.Domain)

	p, err := d.Probe(ctx, spec)
	if err != nil {
		return probeFailed(step, fmt.Sprintf("append %q to %s", entry, d.path), "read hosts file", spec, err)
	}
	if p.Exists {
		return model.Skipped(step, fmt.Sprintf("%s already maps %s", d.path, spec.Site.Domain)), nil
	}
	if spec.DryRun {
		return wouldDo(step, "append %q to %s", entry, d.path), nil
	}

	d.logger.Info().Str("domain", spec.Site.Domain).Str("entry", entry).Msg("adding hosts entry")

	_, raw, err := d.read()
	if err != nil {
		return fail(step, model.NewDriverFailure(step, "read hosts file", err))
	}
	var b strings.Builder
	if len(raw) > 0 && !strings.HasSuffix(raw, "\n") {
		b.WriteString("\n")
	}
	b.WriteString(entry)
	b.WriteString("\n")

	f, err := os.OpenFile(d.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fail(step, model.NewDriverFailure(step, "open hosts file", err))
	}
	defer f.Close()
	if _, err := f.WriteString(b.String()); err != nil {
		return fail(step, model.NewDriverFailure(step, "append hosts entry", err))
	}
	return model.Applied(step, fmt.Sprintf("appended %q to %s", entry, d.path)), nil
}

// Remove deletes every line whose hostnames include the domain exactly.
// Lines that merely contain the domain as a substring are kept.
func (d *HostsDriver) Remove(_ context.Context, spec Spec) (model.OperationResult, error) {
	const step = "remove-hosts-entry"
	domain := spec.Site.Domain

	lines, raw, err := d.read()
	if err != nil {
		return fail(step, model.NewDriverFailure(step, "read hosts file", err))
	}

	kept := make([]string, 0, len(lines))
	removed := 0
	for _, line := range lines {
		_, names := parseHostsLine(line)
		if containsExact(names, domain) {
			removed++
			continue
		}
		kept = append(kept, line)
	}
	if removed == 0 {
		return model.Skipped(step, fmt.Sprintf("no entry for %s in %s", domain, d.path)), nil
	}
	if spec.DryRun {
		return wouldDo(step, "remove %d line(s) for %s from %s", removed, domain, d.path), nil
	}

	d.logger.Info().Str("domain", domain).Int("lines", removed).Msg("removing hosts entries")

	out := strings.Join(kept, "\n")
	if strings.HasSuffix(raw, "\n") && out != "" {
		out += "\n"
	}
	mode := fs.FileMode(0o644)
	if fi, err := os.Stat(d.path); err == nil {
		mode = fi.Mode().Perm()
	}
	// Rewritten in place: the hosts file is often a bind mount that cannot
	// be replaced by rename.
	if err := os.WriteFile(d.path, []byte(out), mode); err != nil {
		return fail(step, model.NewDriverFailure(step, "write hosts file", err))
	}
	return model.Applied(step, fmt.Sprintf("removed %d line(s) for %s", removed, domain)), nil
}

// read returns the file split into lines without the trailing newline, and
// the raw content. A missing file reads as empty.
func (d *HostsDriver) read() ([]string, string, error) {
	data, err := os.ReadFile(d.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	raw := string(data)
	trimmed := strings.TrimSuffix(raw, "\n")
	if trimmed == "" {
		return nil, raw, nil
	}
	return strings.Split(trimmed, "\n"), raw, nil
}

// parseHostsLine splits a hosts line into its address and hostnames,
// ignoring comments.
func parseHostsLine(line string) (string, []string) {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return "", nil
	}
	return fields[0], fields[1:]
}

func containsExact(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
