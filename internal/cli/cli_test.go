package cli

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateCmd(t *testing.T) {
	tests := []struct {
		name    string
		sql     string
		wantErr string
	}{
		{
			name: "valid select",
			sql:  "SELECT year, SUM(num_population) AS total FROM population GROUP BY year",
		},
		{
			name:    "rejects non-select",
			sql:     "DROP TABLE population",
			wantErr: "unsafe query (not_select)",
		},
		{
			name:    "rejects unknown column",
			sql:     "SELECT secret_col FROM population",
			wantErr: "unsafe query (unknown_column)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := executeCmd(t, "validate", tt.sql)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestCatalogCmd(t *testing.T) {
	require.NoError(t, executeCmd(t, "catalog"))
}

func TestServeInfoCmd(t *testing.T) {
	t.Setenv("HACHIQ_API_ADDR", ":9999")
	require.NoError(t, executeCmd(t, "serve-info"))
}

func TestAskCmd_RejectsInvalidFormat(t *testing.T) {
	// An invalid format must fail before any store or model is touched.
	err := executeCmd(t, "ask", "--format", "xml", "人口は？")
	require.Error(t, err)
	require.ErrorContains(t, err, "invalid format: xml")
}

func TestFormatCell(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil is a dash", nil, "-"},
		{"float", float64(0.1234), "0.123"},
		{"int", int64(120), "120"},
		{"string", "横山町", "横山町"},
		{"bool", true, "true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, formatCell(tt.in))
		})
	}
}

func TestEnvWithDefault(t *testing.T) {
	t.Setenv("HACHIQ_TEST_VAR", "")
	require.Equal(t, "fallback", envWithDefault("HACHIQ_TEST_VAR", "fallback"))

	t.Setenv("HACHIQ_TEST_VAR", "explicit")
	require.Equal(t, "explicit", envWithDefault("HACHIQ_TEST_VAR", "explicit"))
}

func executeCmd(t *testing.T, args ...string) error {
	t.Helper()
	root := newRootCmd()
	root.SilenceUsage = true
	root.SilenceErrors = true
	root.SetArgs(args)
	return root.Execute()
}
