package flags

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// Bodies are logged with --debug only; --verbose logs the requests.
func TestDebugVerboseUsage(t *testing.T) {
	assert.Contains(t, DebugFlag.Usage, "bodies")
	assert.NotContains(t, VerboseFlag.Usage, "bodies")
}

func TestSessionConfig(t *testing.T) {
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, f := range RegistrationFlags {
		require.NoError(t, f.Apply(set))
	}
	require.NoError(t, set.Parse([]string{"--url", "https://smt.example.com", "--debug", "--insecure", "--cmdline", ""}))

	cfg := SessionConfig(cli.NewContext(&cli.App{}, set, nil))
	assert.Equal(t, "https://smt.example.com", cfg.URL)
	assert.True(t, cfg.Debug)
	assert.False(t, cfg.Verbose)
	assert.True(t, cfg.Insecure)
	assert.Empty(t, cfg.CmdlinePath)
}
