package cmd

import (
	"testing"

	clitest "github.com/bargom/hookrelay/cmd/hookrelay/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	t.Run("prints version information", func(t *testing.T) {
		root := NewRootCmd()
		output, err := clitest.ExecuteCommand(root, "version")

		require.NoError(t, err)
		assert.Contains(t, output, "hookrelay")
		assert.Contains(t, output, "v")
	})

	t.Run("prints build date and git commit", func(t *testing.T) {
		root := NewRootCmd()
		output, err := clitest.ExecuteCommand(root, "version")

		require.NoError(t, err)
		assert.Contains(t, output, "Build Date")
		assert.Contains(t, output, "Git Commit")
	})

	t.Run("JSON output format", func(t *testing.T) {
		root := NewRootCmd()
		output, err := clitest.ExecuteCommand(root, "version", "--output", "json")

		require.NoError(t, err)
		assert.Contains(t, output, `"version"`)
		assert.Contains(t, output, "{")
	})

	t.Run("does not accept arguments", func(t *testing.T) {
		root := NewRootCmd()
		_, err := clitest.ExecuteCommand(root, "version", "extra")

		assert.Error(t, err)
	})
}
