package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	testutil "github.com/imamik/leasehold/internal/testing"
)

func newRecordingRunner(t *testing.T) (stepRunner, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return stepRunner{pipeline: "test", tracer: tp.Tracer("test")}, recorder
}

func TestStepRunner(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name         string
		steps        func(ran *[]string) []step
		wantRan      []string
		wantErr      string
		wantDegraded []string
		wantSkipped  []string
	}{
		{
			name: "all steps succeed in order",
			steps: func(ran *[]string) []step {
				return []step{
					{name: "a", fatal: true, run: track(ran, "a", nil)},
					{name: "b", run: track(ran, "b", nil)},
					{name: "c", fatal: true, run: track(ran, "c", nil)},
				}
			},
			wantRan: []string{"a", "b", "c"},
		},
		{
			name: "fatal failure stops the pipeline",
			steps: func(ran *[]string) []step {
				return []step{
					{name: "a", fatal: true, run: track(ran, "a", nil)},
					{name: "b", fatal: true, run: track(ran, "b", boom)},
					{name: "c", run: track(ran, "c", nil)},
				}
			},
			wantRan: []string{"a", "b"},
			wantErr: "b step failed: boom",
		},
		{
			name: "best-effort failure continues",
			steps: func(ran *[]string) []step {
				return []step{
					{name: "a", run: track(ran, "a", boom)},
					{name: "b", fatal: true, run: track(ran, "b", nil)},
				}
			},
			wantRan:      []string{"a", "b"},
			wantDegraded: []string{"a"},
		},
		{
			name: "guarded step is skipped",
			steps: func(ran *[]string) []step {
				return []step{
					{name: "a", run: track(ran, "a", nil)},
					{name: "b", when: func() bool { return false }, run: track(ran, "b", nil)},
					{name: "c", when: func() bool { return true }, run: track(ran, "c", nil)},
				}
			},
			wantRan:     []string{"a", "c"},
			wantSkipped: []string{"b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner, _ := newRecordingRunner(t)
			var ran []string

			report, err := runner.run(testutil.TestContext(t), tt.steps(&ran))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantErr, err.Error())
				assert.ErrorIs(t, err, boom)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantRan, ran)
			assert.Equal(t, tt.wantDegraded, report.Degraded)
			assert.Equal(t, tt.wantSkipped, report.Skipped)
		})
	}
}

func TestStepRunner_RecordsSpans(t *testing.T) {
	runner, recorder := newRecordingRunner(t)
	var ran []string

	_, err := runner.run(testutil.TestContext(t), []step{
		{name: "ok", fatal: true, run: track(&ran, "ok", nil)},
		{name: "flaky", run: track(&ran, "flaky", errors.New("flaked"))},
		{name: "skipped", when: func() bool { return false }, run: track(&ran, "skipped", nil)},
	})
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "test/ok", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Equal(t, "test/flaky", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "flaked", spans[1].Status().Description)
}

func track(ran *[]string, name string, err error) func(context.Context) error {
	return func(context.Context) error {
		*ran = append(*ran, name)
		return err
	}
}
