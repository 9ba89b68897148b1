package speccli

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValidationOutput(t *testing.T) {
	stdout := `Validating change 'add-auth'...
ERROR: proposal.md missing '## Why' section
warning: tasks.md has no checklist items
done
`
	res := parseValidationOutput(stdout, "stderr tail")

	assert.Equal(t, []string{"ERROR: proposal.md missing '## Why' section"}, res.Errors)
	assert.Equal(t, []string{"warning: tasks.md has no checklist items"}, res.Warnings)
	assert.Contains(t, res.Output, "stderr tail")
}

func TestParseValidationOutputClean(t *testing.T) {
	res := parseValidationOutput("Change 'add-auth' is valid\n", "")
	assert.Empty(t, res.Errors)
	assert.Empty(t, res.Warnings)
}

// fakeValidator scripts a sequence of validation outcomes.
type fakeValidator struct {
	results []fakeOutcome
	calls   int
}

type fakeOutcome struct {
	res *Result
	err error
}

func (f *fakeValidator) Validate(ctx context.Context, root, name string) (*Result, error) {
	out := f.results[f.calls]
	f.calls++
	return out.res, out.err
}

func (f *fakeValidator) Archive(ctx context.Context, root, name string) error {
	out := f.results[f.calls]
	f.calls++
	return out.err
}

func newFastRetrier(inner Validator) *RetryingValidator {
	r := NewRetryingValidator(inner, nil)
	r.initial = time.Millisecond
	r.maxInterval = 5 * time.Millisecond
	return r
}

func TestRetryRecoversFromTransientFault(t *testing.T) {
	fake := &fakeValidator{results: []fakeOutcome{
		{err: &TransientError{Err: errors.New("timeout")}},
		{err: &TransientError{Err: errors.New("timeout")}},
		{res: &Result{Passed: true}},
	}}
	r := newFastRetrier(fake)

	res, err := r.Validate(context.Background(), "/proj", "add-auth")
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Equal(t, 3, fake.calls)
}

func TestRetryGivesUpAfterThreeAttempts(t *testing.T) {
	fault := &TransientError{Err: errors.New("cannot start process")}
	fake := &fakeValidator{results: []fakeOutcome{
		{err: fault}, {err: fault}, {err: fault}, {err: fault},
	}}
	r := newFastRetrier(fake)

	_, err := r.Validate(context.Background(), "/proj", "add-auth")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Equal(t, 3, fake.calls)
}

func TestRetryDoesNotRetryDefinitiveRejection(t *testing.T) {
	fake := &fakeValidator{results: []fakeOutcome{
		{res: &Result{Passed: false, Errors: []string{"ERROR: bad"}}},
	}}
	r := newFastRetrier(fake)

	res, err := r.Validate(context.Background(), "/proj", "add-auth")
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Equal(t, 1, fake.calls)
}

func TestRetryCallbackCounts(t *testing.T) {
	fake := &fakeValidator{results: []fakeOutcome{
		{err: &TransientError{Err: errors.New("timeout")}},
		{res: &Result{Passed: true}},
	}}
	r := newFastRetrier(fake)

	var retries int
	r.OnRetry = func(int) { retries++ }

	_, err := r.Validate(context.Background(), "/proj", "add-auth")
	require.NoError(t, err)
	assert.Equal(t, 1, retries)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(&TransientError{Err: errors.New("x")}))
	assert.False(t, IsTransient(errors.New("x")))
	assert.False(t, IsTransient(nil))
}
