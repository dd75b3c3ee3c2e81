package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tyemirov/gitdeploy/internal/utils"
)

const (
	testVersionStringConstant = "v1.2.3"
)

func TestNormalizeInitializationScopeArguments(t *testing.T) {
	testCases := []struct {
		name         string
		input        []string
		expectedArgs []string
	}{
		{
			name:         "NoArguments",
			input:        nil,
			expectedArgs: nil,
		},
		{
			name:         "ImplicitLocalValue",
			input:        []string{"--init"},
			expectedArgs: []string{"--init=local"},
		},
		{
			name:         "ImplicitLocalWithFollowingFlag",
			input:        []string{"--init", "--force"},
			expectedArgs: []string{"--init=local", "--force"},
		},
		{
			name:         "ExplicitLocalValue",
			input:        []string{"--init", "local"},
			expectedArgs: []string{"--init", "local"},
		},
		{
			name:         "ExplicitUserValue",
			input:        []string{"--init=user"},
			expectedArgs: []string{"--init=user"},
		},
		{
			name:         "EmptyAssignmentDefaultsToLocal",
			input:        []string{"--init="},
			expectedArgs: []string{"--init=local"},
		},
		{
			name:         "DeployArgumentsUntouched",
			input:        []string{"deploy", "--target", "pages", "--no-push"},
			expectedArgs: []string{"deploy", "--target", "pages", "--no-push"},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			require.Equal(t, testCase.expectedArgs, normalizeInitializationScopeArguments(testCase.input))
		})
	}
}

func TestInitializeConfigurationAttachesRunContext(t *testing.T) {
	t.Setenv(configurationSearchPathEnvironmentVariableConstant, t.TempDir())

	application := NewApplication()
	command := &cobra.Command{Use: "deploy"}
	command.SetContext(context.Background())

	require.NoError(t, application.initializeConfiguration(command))

	accessor := utils.NewCommandContextAccessor()
	runIdentifier, runIdentifierAvailable := accessor.RunIdentifier(command.Context())
	require.True(t, runIdentifierAvailable)
	require.Equal(t, application.runIdentifier, runIdentifier)

	logLevel, logLevelAvailable := accessor.LogLevel(command.Context())
	require.True(t, logLevelAvailable)
	require.Equal(t, string(utils.LogLevelInfo), logLevel)
}

func TestInitializeConfigurationRejectsUnknownLogFormat(t *testing.T) {
	t.Setenv(configurationSearchPathEnvironmentVariableConstant, t.TempDir())
	t.Setenv("GITDEPLOY_COMMON_LOG_FORMAT", "xml")

	application := NewApplication()
	initializationError := application.InitializeForCommand(applicationNameConstant)
	require.Error(t, initializationError)
	require.Contains(t, initializationError.Error(), "unable to create logger")
}

func TestApplicationCommandHierarchy(t *testing.T) {
	application := NewApplication()

	deployCommand, _, deployLookupError := application.rootCommand.Find([]string{"deploy"})
	require.NoError(t, deployLookupError)
	require.Equal(t, "deploy", deployCommand.Name())
	for _, flagName := range []string{"target", "no-push", "no-commit"} {
		require.NotNil(t, deployCommand.Flags().Lookup(flagName), flagName)
	}

	versionCommand, _, versionLookupError := application.rootCommand.Find([]string{versionCommandUseNameConstant})
	require.NoError(t, versionLookupError)
	require.Equal(t, versionCommandUseNameConstant, versionCommand.Name())

	for _, flagName := range []string{configFileFlagNameConstant, logLevelFlagNameConstant, logFormatFlagNameConstant, configurationInitializationFlagNameConstant, configurationInitializationForceFlagNameConstant, versionFlagNameConstant} {
		require.NotNil(t, application.rootCommand.PersistentFlags().Lookup(flagName), flagName)
	}
}

func TestVersionOutput(t *testing.T) {
	testCases := []struct {
		name         string
		arguments    []string
		expectedExit bool
	}{
		{
			name:      "Subcommand",
			arguments: []string{versionCommandUseNameConstant},
		},
		{
			name:         "Flag",
			arguments:    []string{"--" + versionFlagNameConstant},
			expectedExit: true,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Setenv(configurationSearchPathEnvironmentVariableConstant, t.TempDir())

			application := NewApplication()
			application.versionResolver = func(context.Context) string {
				return testVersionStringConstant
			}
			exitCodes := []int{}
			application.exitFunction = func(code int) {
				exitCodes = append(exitCodes, code)
			}

			var output bytes.Buffer
			application.rootCommand.SetOut(&output)
			application.rootCommand.SetArgs(testCase.arguments)
			require.NoError(t, application.rootCommand.Execute())

			require.Contains(t, output.String(), "gitdeploy version: "+testVersionStringConstant)
			if testCase.expectedExit {
				require.Equal(t, []int{0}, exitCodes)
			} else {
				require.Empty(t, exitCodes)
			}
		})
	}
}

func TestFlushLoggerIgnoresNilLoggers(t *testing.T) {
	application := &Application{logger: zap.NewNop()}
	require.NoError(t, application.flushLogger())
}
