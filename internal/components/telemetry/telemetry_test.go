package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScopedAPI(t *testing.T) {
	rec := NewRecorder()
	scoped := NewScopedAPI("parser", rec)

	scoped.ReportWarning("parser.parse-year", "x")
	scoped.ReportBroken("parser.parse-cycle")
	scoped.ReportCount("courses", 3)

	require.Equal(t, []string{"parser: parser.parse-year"}, rec.WarningIDs())
	require.Len(t, rec.Broken, 1)
	require.Equal(t, "parser: parser.parse-cycle", rec.Broken[0].ID)
	require.Equal(t, int64(3), rec.Counts["parser: courses"])
}

func TestSetupWithoutEndpoints(t *testing.T) {
	providers, err := Setup(context.Background(), "test:telemetry", Config{})
	require.NoError(t, err)
	require.Nil(t, providers.TracerProvider)
	require.Nil(t, providers.MeterProvider)
	require.NoError(t, providers.Shutdown(context.Background()))
}
