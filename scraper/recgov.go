package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
)

// execCommand is replaced in tests.
var execCommand = exec.CommandContext

// RecGov runs the external Recreation.gov availability script and parses
// its text report.
type RecGov struct {
	PythonPath string
	ScriptPath string
}

// NewRecGov creates a subprocess source. An empty pythonPath means python3.
func NewRecGov(scriptPath, pythonPath string) *RecGov {
	if pythonPath == "" {
		pythonPath = "python3"
	}
	return &RecGov{
		PythonPath: pythonPath,
		ScriptPath: scriptPath,
	}
}

func (s *RecGov) Provider() Provider {
	return RecreationGov
}

// Fetch runs the script once for the whole batch. The process is killed
// when ctx expires and nothing it printed is used.
func (s *RecGov) Fetch(ctx context.Context, q Query) (*Result, error) {
	if len(q.FacilityIDs) == 0 {
		return nil, errors.New("recgov: no facility ids")
	}
	result := newResult()

	args := []string{
		s.ScriptPath,
		"--start-date", q.Start.String(),
		"--end-date", q.End.String(),
		"--parks",
	}
	args = append(args, q.FacilityIDs...)
	args = append(args, "--nights", strconv.Itoa(q.Nights), "--show-campsite-info")

	slog.Info("running recreation.gov scraper", "parks", q.FacilityIDs, "nights", q.Nights)

	cmd := execCommand(ctx, s.PythonPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			status := StatusUnknownError
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				status = StatusTimeout
			}
			return result.fail(status, fmt.Sprintf("scraper interrupted: %v", ctxErr)), nil
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		result.Diagnostics["stderr_bytes"] = stderr.Len()
		return result.fail(StatusUnknownError, fmt.Sprintf("scraper execution failed: %s", msg)), nil
	}

	if len(bytes.TrimSpace(output)) == 0 {
		return result.fail(StatusParseError, "scraper produced no output"), nil
	}

	parks, err := ParseTextReport(bytes.NewReader(output))
	if err != nil {
		return result.fail(StatusParseError, fmt.Sprintf("failed to parse scraper output: %v", err)), nil
	}
	for label, counts := range parks {
		if len(counts.Dates()) == 0 {
			slog.Debug("park has no free sites", "park", label)
			continue
		}
		result.Facilities[label] = counts
	}
	result.Diagnostics["parks_reported"] = len(parks)

	return result.succeed(), nil
}
