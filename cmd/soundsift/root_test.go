package main

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// executeCommand runs a cobra command with the given args and captures output.
func executeCommand(root *cobra.Command, args ...string) (stdout string, stderr string, err error) {
	stdoutBuf := new(bytes.Buffer)
	stderrBuf := new(bytes.Buffer)
	root.SetOut(stdoutBuf)
	root.SetErr(stderrBuf)
	root.SetArgs(args)

	err = root.Execute()

	return stdoutBuf.String(), stderrBuf.String(), err
}

func TestRootCmdHelp(t *testing.T) {
	stdout, stderr, err := executeCommand(rootCmd, "--help")

	require.NoError(t, err)
	assert.Empty(t, stderr)
	assert.Contains(t, stdout, "Usage:")
	assert.Contains(t, stdout, "soundsift -i <inputDir>")
	assert.Contains(t, stdout, "--input")
	assert.Contains(t, stdout, "--version")
	assert.Contains(t, stdout, "--help")
}

func TestRootCmdHelp_AllFlagsPresent(t *testing.T) {
	stdout, stderr, err := executeCommand(rootCmd, "--help")
	require.NoError(t, err)
	assert.Empty(t, stderr)

	rootCmd.Flags().VisitAll(func(f *pflag.Flag) {
		assert.Contains(t, stdout, "--"+f.Name, "Help output should contain flag --%s", f.Name)
		if f.Shorthand != "" && f.ShorthandDeprecated == "" {
			assert.Contains(t, stdout, "-"+f.Shorthand+",", "Help output should contain shorthand -%s for flag --%s", f.Shorthand, f.Name)
		}
	})
	rootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
		if f.Name == "help" {
			return
		}
		assert.Contains(t, stdout, "--"+f.Name, "Help output should contain persistent flag --%s", f.Name)
	})
}

func TestRootCmdVersion(t *testing.T) {
	testCmd := &cobra.Command{Use: "soundsift"}
	testCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", "test-1.2.3", "testcommit123", "2026-01-01T10:00:00Z")
	testCmd.SetVersionTemplate(`{{.Use}} version {{.Version}}` + "\n")

	stdout, stderr, err := executeCommand(testCmd, "--version")

	require.NoError(t, err)
	assert.Empty(t, stderr)
	assert.Equal(t, "soundsift version test-1.2.3 (commit: testcommit123, built: 2026-01-01T10:00:00Z)\n", stdout)
}

func TestRootCmdFlagParsingErrors(t *testing.T) {
	// Fresh command instances keep the parsing tests isolated from the
	// package-level rootCmd state.
	newTestCmd := func() *cobra.Command {
		cmd := &cobra.Command{
			Use: "soundsift -i <inputDir>",
			RunE: func(cmd *cobra.Command, args []string) error {
				return nil
			},
		}
		cmd.PersistentFlags().StringP("input", "i", "", "Required. Directory of audio recordings to analyze.")
		_ = cmd.MarkPersistentFlagRequired("input")
		cmd.Flags().Int("workers", 0, "Number of parallel file workers")
		return cmd
	}

	testCases := []struct {
		name        string
		args        []string
		expectError bool
		errorMsg    string
	}{
		{
			name:        "unknown flag",
			args:        []string{"-i", ".", "--unknown-flag"},
			expectError: true,
			errorMsg:    "unknown flag: --unknown-flag",
		},
		{
			name:        "missing required input flag",
			args:        []string{"--workers", "2"},
			expectError: true,
			errorMsg:    `required flag(s) "input" not set`,
		},
		{
			name:        "invalid value type for int flag",
			args:        []string{"-i", ".", "--workers", "abc"},
			expectError: true,
			errorMsg:    `invalid argument "abc" for "--workers" flag`,
		},
		{
			name:        "valid flags",
			args:        []string{"-i", "."},
			expectError: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, stderr, err := executeCommand(newTestCmd(), tc.args...)

			if tc.expectError {
				require.Error(t, err)
				assert.Contains(t, stderr, tc.errorMsg)
			} else {
				require.NoError(t, err)
				assert.NotContains(t, stderr, "Error:")
			}
		})
	}
}
