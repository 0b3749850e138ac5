// Package speedtest runs the Ookla speedtest CLI and returns its JSON report.
package speedtest

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/speedtrack/internal/model"
)

// DefaultTimeout bounds a single speedtest invocation.
const DefaultTimeout = 60 * time.Second

// Source produces one raw measurement report per call.
type Source interface {
	Measure(ctx context.Context) ([]byte, error)
}

// Runner invokes the speedtest binary as a subprocess.
type Runner struct {
	binPath  string
	timeout  time.Duration
	serverID int64
}

// NewRunner creates a Runner. If binPath is empty, "speedtest" is used; a
// zero serverID lets the CLI pick the closest server.
func NewRunner(binPath string, timeout time.Duration, serverID int64) *Runner {
	if binPath == "" {
		binPath = "speedtest"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{binPath: binPath, timeout: timeout, serverID: serverID}
}

// Args returns the command line arguments passed to the binary.
func (r *Runner) Args() []string {
	args := []string{"--format", "json", "--progress", "no", "--accept-license", "--accept-gdpr"}
	if r.serverID > 0 {
		args = append(args, "--server-id", strconv.FormatInt(r.serverID, 10))
	}
	return args
}

// Measure runs one test and returns stdout. All failures wrap
// model.ErrSourceUnavailable.
func (r *Runner) Measure(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.binPath, r.Args()...)
	cmd.WaitDelay = 2 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	log := zap.L().With(zap.String("component", "speedtest"), zap.Duration("elapsed", time.Since(start)))

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		log.Error("speedtest timed out", zap.Duration("timeout", r.timeout))
		return nil, eris.Wrapf(model.ErrSourceUnavailable, "speedtest: timed out after %s", r.timeout)
	case errors.Is(err, exec.ErrNotFound):
		return nil, eris.Wrapf(model.ErrSourceUnavailable, "speedtest: binary %q not found", r.binPath)
	case err != nil:
		msg := strings.TrimSpace(stderr.String())
		log.Error("speedtest failed", zap.Error(err), zap.String("stderr", msg))
		return nil, eris.Wrapf(model.ErrSourceUnavailable, "speedtest: %v: %s", err, msg)
	}

	out := bytes.TrimSpace(stdout.Bytes())
	if len(out) == 0 {
		return nil, eris.Wrap(model.ErrSourceUnavailable, "speedtest: empty output")
	}

	log.Debug("speedtest complete", zap.Int("bytes", len(out)))
	return out, nil
}
