package orchestrator

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBootstrapResult_JSONShape(t *testing.T) {
	t.Parallel()

	r := BootstrapResult{
		RunID:  "run-1",
		Status: StatusOK,
		Phases: map[string]PhaseResult{
			PhaseIndex: {Name: PhaseIndex, Status: StatusOK},
			PhaseLock:  {Name: PhaseLock, Status: StatusSkipped},
		},
		Index: &IndexResult{Name: "docs", Dimension: 768, Metric: "cosine", Created: true, Ready: true},
	}

	data, err := json.Marshal(&r)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, "run-1", got["runId"])
	assert.Equal(t, "ok", got["status"])

	phases, ok := got["phases"].(map[string]any)
	require.True(t, ok)
	idx, ok := phases["index"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "index", idx["name"])
	assert.Equal(t, "ok", idx["status"])
	_, hasError := idx["error"]
	assert.False(t, hasError)

	index, ok := got["index"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "docs", index["name"])
	assert.Equal(t, float64(768), index["dimension"])
	assert.Equal(t, "cosine", index["metric"])
	assert.Equal(t, true, index["created"])
	_, hasHost := index["host"]
	assert.False(t, hasHost, "empty host should be omitted")
}

func TestBootstrapResult_IndexOmittedOnFailure(t *testing.T) {
	t.Parallel()

	r := BootstrapResult{
		Status: StatusError,
		Phases: map[string]PhaseResult{
			PhaseIndex: {Name: PhaseIndex, Status: StatusError, Error: "quota exceeded"},
		},
	}

	data, err := json.Marshal(&r)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))

	_, hasIndex := got["index"]
	assert.False(t, hasIndex)
	phases := got["phases"].(map[string]any)
	assert.Equal(t, "quota exceeded", phases["index"].(map[string]any)["error"])
}

func TestProbeResult_JSONShape(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		input       ProbeResult
		wantError   bool
		errorAbsent bool
	}{
		{
			name:        "healthy probe",
			input:       ProbeResult{Name: "pinecone", OK: true, LatencyMs: 3},
			errorAbsent: true,
		},
		{
			name:      "unhealthy probe with error",
			input:     ProbeResult{Name: "redis", OK: false, LatencyMs: 0, Error: "timeout"},
			wantError: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			data, err := json.Marshal(tc.input)
			require.NoError(t, err)

			var got map[string]any
			require.NoError(t, json.Unmarshal(data, &got))

			assert.Equal(t, tc.input.Name, got["name"])
			assert.Equal(t, tc.input.OK, got["ok"])
			assert.Equal(t, float64(tc.input.LatencyMs), got["latencyMs"])

			_, hasError := got["error"]
			if tc.wantError {
				assert.True(t, hasError)
				assert.Equal(t, tc.input.Error, got["error"])
			}
			if tc.errorAbsent {
				assert.False(t, hasError)
			}
		})
	}
}
