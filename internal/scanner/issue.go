package scanner

import (
	"errors"
	"io/fs"
	"os/exec"

	"github.com/jenian/envpilot/internal/inventory"
	"github.com/jenian/envpilot/internal/venv"
)

// IssueKind classifies an error that was degraded to a default value
type IssueKind string

const (
	IssueNotFound   IssueKind = "not-found"
	IssuePermission IssueKind = "permission-denied"
	IssueCommand    IssueKind = "command-failed" // python or pip exited non-zero
	IssueOther      IssueKind = "other"
)

// Issue is one swallowed error
type Issue struct {
	Path string
	Kind IssueKind
	Err  error
}

func classify(err error) IssueKind {
	switch {
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, exec.ErrNotFound),
		errors.Is(err, inventory.ErrExecutableMissing), errors.Is(err, inventory.ErrManagerMissing):
		return IssueNotFound
	case errors.Is(err, fs.ErrPermission):
		return IssuePermission
	default:
		var cmdErr *venv.CommandError
		if errors.As(err, &cmdErr) {
			return IssueCommand
		}
		return IssueOther
	}
}

func (s *Scanner) report(path string, err error) {
	issue := Issue{Path: path, Kind: classify(err), Err: err}
	s.logger.Debug("degraded", "path", path, "kind", issue.Kind, "err", err)
	if s.OnIssue != nil {
		s.OnIssue(issue)
	}
}
