package telemetry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetMetrics(t *testing.T) {
	m := GetMetrics()
	require.Same(t, m, GetMetrics())

	require.NotNil(t, m.AssignmentsTotal)
	require.NotNil(t, m.VacatesTotal)
	require.NotNil(t, m.MergesTotal)
	require.NotNil(t, m.RowsWritten)
	require.NotNil(t, m.InvariantViolationsTotal)
	require.NotNil(t, m.TransientFailuresTotal)
	require.NotNil(t, m.HistoryWarningsTotal)
	require.NotNil(t, m.OperationDuration)
	require.NotNil(t, Tracer())
}
