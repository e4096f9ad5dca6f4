package commands

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoot(t *testing.T) {
	t.Parallel()
	cmd := Root()

	require.NotNil(t, cmd)
	assert.Equal(t, "stackfleet", cmd.Use)
	assert.Equal(t, "Roll a CloudFormation StackSet out to enrolled AWS accounts", cmd.Short)
}

func TestRoot_HasSubcommands(t *testing.T) {
	t.Parallel()
	cmd := Root()

	expectedSubcommands := []string{
		"ensure",
		"teardown",
		"submit",
		"instances",
		"operations",
		"version",
	}

	subcommands := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		subcommands[sub.Name()] = true
	}

	for _, expected := range expectedSubcommands {
		assert.True(t, subcommands[expected], "Expected subcommand %s not found", expected)
	}
	assert.Len(t, cmd.Commands(), len(expectedSubcommands))
}

func TestRoot_PersistentFlags(t *testing.T) {
	t.Parallel()
	cmd := Root()

	for _, name := range []string{"config", "profile", "region", "debug"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), "Expected persistent flag %s", name)
	}
	assert.Equal(t, "c", cmd.PersistentFlags().Lookup("config").Shorthand)
}

func TestTeardown_Flags(t *testing.T) {
	t.Parallel()
	cmd := Root()

	teardown, _, err := cmd.Find([]string{"teardown"})
	require.NoError(t, err)

	budget := teardown.Flags().Lookup("budget")
	require.NotNil(t, budget)
	assert.Equal(t, DefaultTeardownBudget.String(), budget.DefValue)
	assert.Equal(t, (14 * time.Minute).String(), budget.DefValue)

	yes := teardown.Flags().Lookup("yes")
	require.NotNil(t, yes)
	assert.Equal(t, "y", yes.Shorthand)
}

func TestSubmit_RequiresAccounts(t *testing.T) {
	t.Parallel()
	cmd := Root()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"submit"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "accounts" not set`)
}

func TestVersion(t *testing.T) {
	SetVersionInfo("1.2.3", "abc123", "2024-01-01")
	t.Cleanup(func() { SetVersionInfo("dev", "none", "unknown") })

	var out bytes.Buffer
	cmd := Root()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "stackfleet 1.2.3")
	assert.Contains(t, out.String(), "commit: abc123")
	assert.Contains(t, out.String(), "built:  2024-01-01")
}
