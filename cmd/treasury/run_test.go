package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/subcommands"
	"github.com/stretchr/testify/assert"

	"github.com/aristath/treasury/internal/pipeline"
)

func TestRunReport(t *testing.T) {
	t.Run("delivery failure is a warning", func(t *testing.T) {
		var out, errOut bytes.Buffer
		res := &pipeline.Result{Period: "2024-01-02", Accepted: 2, NotifyErr: errors.New("telegram: 502")}

		status := (&runCmd{}).report(&out, &errOut, res)

		assert.Equal(t, subcommands.ExitSuccess, status)
		assert.Contains(t, out.String(), "Period 2024-01-02: 2 entities accepted")
		assert.Contains(t, errOut.String(), "warning: digest delivery failed: telegram: 502")
	})

	t.Run("duplicate period", func(t *testing.T) {
		var out, errOut bytes.Buffer
		status := (&runCmd{}).report(&out, &errOut, &pipeline.Result{Period: "2024-01-02", Duplicate: true})

		assert.Equal(t, subcommands.ExitSuccess, status)
		assert.Contains(t, out.String(), "already recorded")
		assert.Empty(t, errOut.String())
	})

	t.Run("dry run without movers", func(t *testing.T) {
		var out, errOut bytes.Buffer
		status := (&runCmd{dryRun: true}).report(&out, &errOut, &pipeline.Result{Period: "2024-01-01", Accepted: 2})

		assert.Equal(t, subcommands.ExitSuccess, status)
		assert.Contains(t, out.String(), "No digest")
	})
}
