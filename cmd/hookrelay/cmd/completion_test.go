package cmd

import (
	"testing"

	clitest "github.com/bargom/hookrelay/cmd/hookrelay/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompletionCommand(t *testing.T) {
	t.Run("has shell subcommands", func(t *testing.T) {
		root := NewRootCmd()
		output, err := clitest.ExecuteCommand(root, "completion", "--help")

		require.NoError(t, err)
		assert.Contains(t, output, "bash")
		assert.Contains(t, output, "zsh")
		assert.Contains(t, output, "fish")
		assert.Contains(t, output, "powershell")
	})

	t.Run("generates bash completion", func(t *testing.T) {
		root := NewRootCmd()
		output, err := clitest.ExecuteCommand(root, "completion", "bash")

		require.NoError(t, err)
		assert.Contains(t, output, "bash")
		assert.Contains(t, output, "hookrelay")
	})

	t.Run("generates zsh completion", func(t *testing.T) {
		root := NewRootCmd()
		output, err := clitest.ExecuteCommand(root, "completion", "zsh")

		require.NoError(t, err)
		assert.Contains(t, output, "#compdef")
	})

	t.Run("rejects unknown shells", func(t *testing.T) {
		root := NewRootCmd()
		_, err := clitest.ExecuteCommand(root, "completion", "tcsh")

		assert.Error(t, err)
	})
}
