package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	expected := []string{"ingest", "watch", "serve", "dashboard", "migrate"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "speedtrack", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestIngestCommand_Flags(t *testing.T) {
	flag := ingestCmd.Flags().Lookup("from-file")
	require.NotNil(t, flag, "ingest command should have --from-file flag")
	assert.Equal(t, "", flag.DefValue)
}

func TestWatchCommand_Flags(t *testing.T) {
	flag := watchCmd.Flags().Lookup("now")
	require.NotNil(t, flag)
	assert.Equal(t, "true", flag.DefValue)

	flag = watchCmd.Flags().Lookup("schedule")
	require.NotNil(t, flag)
	assert.Equal(t, "", flag.DefValue)

	flag = watchCmd.Flags().Lookup("metrics-port")
	require.NotNil(t, flag)
	assert.Equal(t, "0", flag.DefValue)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)

	assert.NotNil(t, serveCmd.Flags().Lookup("cors-origin"))
}

func TestDashboardCommand_Flags(t *testing.T) {
	for _, name := range []string{"metric", "start", "end"} {
		assert.NotNil(t, dashboardCmd.Flags().Lookup(name), "dashboard should have --%s flag", name)
	}
	assert.Equal(t, "download_mbps", dashboardCmd.Flags().Lookup("metric").DefValue)
}
