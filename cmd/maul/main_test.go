package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulateCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"simulate", "--trigger", "planner", "--failure", "memory_wipe", "--depth", "2"})

	require.NoError(t, cmd.Execute())

	var result struct {
		Trigger  string           `json:"trigger_agent"`
		Events   []map[string]any `json:"events"`
		Affected int              `json:"affected_count"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.Equal(t, "planner", result.Trigger)
	assert.NotEmpty(t, result.Events)
	assert.Equal(t, len(result.Events), result.Affected)
}

func TestSimulateCommandUnknownFailure(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"simulate", "--failure", "gremlins"})

	assert.Error(t, cmd.Execute())
}

func TestSeedCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"seed"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "planner")
	assert.Contains(t, out.String(), "safe-assistant")
	assert.Contains(t, out.String(), "relaxed")
}
