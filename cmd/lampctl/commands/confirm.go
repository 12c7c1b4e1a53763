package commands

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/edvin/lampctl/internal/site"
)

// newConfirmer answers questions from --yes and --remove-db first. Without
// the matching flag it prompts on stdin, unless --non-interactive is set, in
// which case the answer is no.
func newConfirmer(g *globalFlags, out io.Writer) site.Confirmer {
	return func(id, prompt string) bool {
		switch id {
		case site.ConfirmRemoveSite:
			if g.yes {
				return true
			}
		case site.ConfirmRemoveDB:
			if g.removeDB {
				return true
			}
		}
		if g.nonInteractive || g.in == nil {
			return false
		}
		fmt.Fprintf(out, "%s [y/N]: ", prompt)
		return isYes(readLine(g.in))
	}
}

// promptLine asks for a free-form value. It returns "" when prompting is not
// possible.
func promptLine(g *globalFlags, out io.Writer, prompt string) string {
	if g.nonInteractive || g.in == nil {
		return ""
	}
	fmt.Fprintf(out, "%s: ", prompt)
	return readLine(g.in)
}

func readLine(r *bufio.Reader) string {
	line, _ := r.ReadString('\n')
	return strings.TrimSpace(line)
}

func isYes(answer string) bool {
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true
	}
	return false
}
