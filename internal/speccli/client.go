package speccli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// CLIValidator shells out to the openspec CLI. The binary name and
// per-invocation timeout come from configuration.
type CLIValidator struct {
	binary  string
	timeout time.Duration
	logger  *slog.Logger
}

func NewCLIValidator(binary string, timeout time.Duration, logger *slog.Logger) *CLIValidator {
	if binary == "" {
		binary = "openspec"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &CLIValidator{binary: binary, timeout: timeout, logger: logger}
}

// Validate runs `openspec validate <name> --strict` inside root.
// A non-zero exit with output is a definitive rejection; a timeout or a
// failure to start the process is reported as a TransientError.
func (v *CLIValidator) Validate(ctx context.Context, root, name string) (*Result, error) {
	stdout, stderr, runErr := v.run(ctx, root, "validate", name, "--strict")
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, &TransientError{Err: runErr}
		}
		// The CLI exited on its own: parse the rejection.
	}

	res := parseValidationOutput(stdout, stderr)
	res.Passed = runErr == nil
	return res, nil
}

// Archive runs `openspec archive <name> --yes` inside root.
func (v *CLIValidator) Archive(ctx context.Context, root, name string) error {
	stdout, stderr, runErr := v.run(ctx, root, "archive", name, "--yes")
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return &TransientError{Err: runErr}
		}
		return fmt.Errorf("archive %s: exit %d: %s",
			name, exitErr.ExitCode(), firstLine(stdout+stderr))
	}
	return nil
}

func (v *CLIValidator) run(ctx context.Context, root string, args ...string) (string, string, error) {
	runCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, v.binary, args...)
	cmd.Dir = root

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()

	if v.logger != nil {
		v.logger.Debug("validator CLI run",
			"args", args,
			"dir", root,
			"duration_ms", time.Since(start).Milliseconds(),
			"err", err,
		)
	}

	if runCtx.Err() == context.DeadlineExceeded {
		return stdout.String(), stderr.String(),
			fmt.Errorf("command timed out after %s: %s %s", v.timeout, v.binary, strings.Join(args, " "))
	}
	return stdout.String(), stderr.String(), err
}

// parseValidationOutput collects error and warning lines from the CLI's
// plain-text output.
func parseValidationOutput(stdout, stderr string) *Result {
	res := &Result{
		Errors:   []string{},
		Warnings: []string{},
		Output:   stdout + stderr,
	}
	for _, line := range strings.Split(stdout, "\n") {
		lower := strings.ToLower(line)
		switch {
		case strings.Contains(lower, "error"):
			res.Errors = append(res.Errors, strings.TrimSpace(line))
		case strings.Contains(lower, "warning"):
			res.Warnings = append(res.Warnings, strings.TrimSpace(line))
		}
	}
	return res
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// RetryingValidator retries transient faults of the wrapped validator
// with exponential backoff. Definitive validation outcomes, including
// rejections, pass through untouched.
type RetryingValidator struct {
	inner       Validator
	maxAttempts uint64
	initial     time.Duration
	maxInterval time.Duration
	logger      *slog.Logger

	// OnRetry, when set, is called once per transient fault before the
	// backoff wait.
	OnRetry func(attempt int)
}

func NewRetryingValidator(inner Validator, logger *slog.Logger) *RetryingValidator {
	return &RetryingValidator{
		inner:       inner,
		maxAttempts: 3,
		initial:     1 * time.Second,
		maxInterval: 10 * time.Second,
		logger:      logger,
	}
}

func (r *RetryingValidator) Validate(ctx context.Context, root, name string) (*Result, error) {
	var res *Result
	err := r.retry(ctx, "validate", name, func() error {
		var err error
		res, err = r.inner.Validate(ctx, root, name)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (r *RetryingValidator) Archive(ctx context.Context, root, name string) error {
	return r.retry(ctx, "archive", name, func() error {
		return r.inner.Archive(ctx, root, name)
	})
}

func (r *RetryingValidator) retry(ctx context.Context, op, name string, fn func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.initial
	policy.MaxInterval = r.maxInterval

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return backoff.Permanent(err)
		}
		if r.OnRetry != nil {
			r.OnRetry(attempt)
		}
		if r.logger != nil {
			r.logger.Warn("validator transient fault",
				"op", op,
				"proposal", name,
				"attempt", attempt,
				"error", err,
			)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, r.maxAttempts-1), ctx))
}
