package lock

import (
	"bufio"
	"context"
	"strconv"
	"strings"

	"github.com/edvin/lampctl/internal/execx"
)

// Info describes the state of the package manager lock at one instant.
type Info struct {
	Locked    bool
	HolderPID int
	HolderCmd string
	Path      string
	Raw       string
}

// Detector reports whether any of the configured lock files is held.
type Detector interface {
	Detect(ctx context.Context) Info
}

// CommandDetector inspects lock holders with lslocks, then lsof, then fuser,
// using the first tool that answers.
type CommandDetector struct {
	runner execx.Runner
	paths  []string
}

// NewCommandDetector creates a detector watching paths.
func NewCommandDetector(runner execx.Runner, paths []string) *CommandDetector {
	return &CommandDetector{runner: runner, paths: paths}
}

// Detect implements Detector.
func (d *CommandDetector) Detect(ctx context.Context) Info {
	if res, err := d.runner.Run(ctx, execx.Command{Name: "lslocks", Args: []string{"--noheadings", "-o", "PID,COMMAND,PATH"}}); err == nil {
		if info, ok := parseLslocks(string(res.Output), d.paths); ok {
			return info
		}
	}

	args := append([]string{"-FnPc"}, d.paths...)
	if res, err := d.runner.Run(ctx, execx.Command{Name: "lsof", Args: args}); err == nil {
		if info, ok := parseLsof(string(res.Output), d.paths); ok {
			return info
		}
	}

	// fuser exits 0 only when at least one file is in use.
	res, err := d.runner.Run(ctx, execx.Command{Name: "fuser", Args: d.paths})
	if err == nil {
		return parseFuser(string(res.Output), d.paths)
	}
	return Info{Raw: string(res.Output)}
}

func parseLslocks(out string, paths []string) (Info, bool) {
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		path := fields[len(fields)-1]
		if !contains(paths, path) {
			continue
		}
		pid, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		return Info{Locked: true, HolderPID: pid, HolderCmd: fields[1], Path: path, Raw: out}, true
	}
	return Info{}, false
}

// parseLsof reads lsof -F field output: p<pid>, c<command>, n<name>.
func parseLsof(out string, paths []string) (Info, bool) {
	var (
		pid int
		cmd string
	)
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		switch line[0] {
		case 'p':
			pid, _ = strconv.Atoi(line[1:])
			cmd = ""
		case 'c':
			cmd = line[1:]
		case 'n':
			if pid > 0 && contains(paths, line[1:]) {
				return Info{Locked: true, HolderPID: pid, HolderCmd: cmd, Path: line[1:], Raw: out}, true
			}
		}
	}
	return Info{}, false
}

// parseFuser handles "path: pid pid" output. fuser prints pids on stdout and
// the path on stderr; with combined output they may interleave.
func parseFuser(out string, paths []string) Info {
	info := Info{Raw: out}
	for _, p := range paths {
		if strings.Contains(out, p) {
			info.Locked = true
			info.Path = p
			break
		}
	}
	for _, f := range strings.Fields(out) {
		f = strings.TrimRight(f, "cefFrm")
		if pid, err := strconv.Atoi(f); err == nil && pid > 0 {
			info.Locked = true
			info.HolderPID = pid
			break
		}
	}
	return info
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
