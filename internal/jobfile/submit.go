package jobfile

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/nabu-speech/nabu-ctl/internal/system"
)

// SubmitCommand is the scheduler's submission tool.
const SubmitCommand = "condor_submit"

var clusterPattern = regexp.MustCompile(`submitted to cluster (\d+)`)

// Submit hands the descriptor at path to the scheduler, binding d.Params on
// the command line. It returns the cluster id the scheduler assigned.
func Submit(ctx context.Context, executor system.CommandExecutor, path string, d *Descriptor) (string, error) {
	if executor == nil {
		executor = system.DefaultExecutor()
	}
	args := append([]string{path}, d.SubmitArgs()...)

	out, err := executor.Execute(ctx, SubmitCommand, args...)
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg != "" {
			return "", fmt.Errorf("%s failed: %w: %s", SubmitCommand, err, msg)
		}
		return "", fmt.Errorf("%s failed: %w", SubmitCommand, err)
	}

	m := clusterPattern.FindSubmatch(out)
	if m == nil {
		return "", fmt.Errorf("%s: could not find cluster id in output: %s", SubmitCommand, strings.TrimSpace(string(out)))
	}
	return string(m[1]), nil
}
