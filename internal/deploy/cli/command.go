package cli

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tyemirov/gitdeploy/internal/deploy"
	"github.com/tyemirov/gitdeploy/internal/execshell"
	"github.com/tyemirov/gitdeploy/internal/gitrepo"
	"github.com/tyemirov/gitdeploy/internal/redaction"
	"github.com/tyemirov/gitdeploy/internal/utils"
	flagutils "github.com/tyemirov/gitdeploy/internal/utils/flags"
)

const (
	commandUseConstant              = "deploy"
	commandShortDescriptionConstant = "Publish built directories to branches of remote repositories"
	commandLongDescriptionConstant  = "Materializes each configured target's branch in its work directory, mirrors the built source directory into it, commits the result and pushes it. Every target is attempted; the command fails when any target failed."
	metricsWriteFailedMessage       = "unable to write metrics file"
	metricsFileLogFieldConstant     = "metrics_file"
	positionalArgumentsMessage      = "deploy takes no positional arguments; select targets with --target"
)

// LoggerProvider yields a zap logger for command execution.
type LoggerProvider func() *zap.Logger

// CommandBuilder assembles the deploy command.
type CommandBuilder struct {
	LoggerProvider               LoggerProvider
	GitExecutor                  gitrepo.GitCommandExecutor
	FileSystem                   afero.Fs
	HumanReadableLoggingProvider func() bool
	ConfigurationProvider        func() deploy.CommandConfiguration
	EnvironmentLookup            deploy.EnvironmentLookup
	WorkRootProvider             func() (string, error)
	HomeDirectoryProvider        func() (string, error)
}

// Build constructs the deploy command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   commandUseConstant,
		Short: commandShortDescriptionConstant,
		Long:  commandLongDescriptionConstant,
		Args: func(command *cobra.Command, arguments []string) error {
			if len(arguments) > 0 {
				return errors.New(positionalArgumentsMessage)
			}
			return nil
		},
		RunE: builder.run,
	}
	flagutils.BindDeployFlags(command, flagutils.AllDeployFlags())
	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	selection, selectionError := flagutils.ResolveDeploySelection(command)
	if selectionError != nil {
		return selectionError
	}

	configuration := builder.resolveConfiguration().Sanitize()
	sourceRepository, sourceError := filepath.Abs(configuration.SourceRepository)
	if sourceError != nil {
		return sourceError
	}

	targets, buildError := configuration.BuildTargets(
		sourceRepository,
		deploy.TargetOverrides{Names: selection.TargetNames, NoPush: selection.NoPush, NoCommit: selection.NoCommit},
		builder.resolveEnvironmentLookup(),
		builder.resolveWorkRoot(),
	)
	if buildError != nil {
		return buildError
	}

	redactor := redaction.NewRedactor()
	for _, target := range targets {
		redactor = redactor.With(target.Credentials.Secrets()...)
	}

	contextAccessor := utils.NewCommandContextAccessor()
	runIdentifier, runIdentifierAvailable := contextAccessor.RunIdentifier(command.Context())
	if !runIdentifierAvailable {
		runIdentifier = uuid.NewString()
	}

	baseLogger := builder.resolveLogger()
	resolutionExecutor, executorError := builder.resolveGitExecutor(baseLogger, redactor, true)
	if executorError != nil {
		return executorError
	}
	resolutionManager, managerError := gitrepo.NewRepositoryManager(resolutionExecutor)
	if managerError != nil {
		return managerError
	}
	resolver := deploy.NewRemoteResolver(resolutionManager, builder.FileSystem, builder.resolveHomeDirectory())
	targets, resolveError := resolver.ResolveTargets(command.Context(), sourceRepository, targets, redactor)
	if resolveError != nil {
		return resolveError
	}

	for _, target := range targets {
		redactor = redactor.With(target.Credentials.Secrets()...)
	}
	logger := redaction.WrapLogger(baseLogger, redactor)
	gitExecutor, executorError := builder.resolveGitExecutor(baseLogger, redactor, false)
	if executorError != nil {
		return executorError
	}

	reporter := deploy.NewReporter(command.OutOrStdout(), command.ErrOrStderr(), deploy.WithReporterRedactor(redactor))
	metrics := deploy.NewMetrics()
	service, serviceError := deploy.NewService(deploy.ServiceDependencies{
		GitExecutor: gitExecutor,
		FileSystem:  builder.FileSystem,
		Logger:      logger,
		Reporter:    reporter,
		Metrics:     metrics,
		Redactor:    redactor,
	})
	if serviceError != nil {
		return serviceError
	}

	result, deployError := service.Deploy(command.Context(), deploy.Request{
		SourceRepository: sourceRepository,
		RunID:            runIdentifier,
		Targets:          targets,
	})
	if deployError != nil {
		return deployError
	}

	reporter.PrintSummary()
	if writeError := metrics.WriteTextfile(configuration.MetricsFile); writeError != nil {
		logger.Warn(metricsWriteFailedMessage, zap.String(metricsFileLogFieldConstant, configuration.MetricsFile), zap.Error(writeError))
	}
	return result.Err()
}

// resolveGitExecutor returns the injected executor or a redacting shell executor. Remote
// resolution reads URLs from git output, so it asks for stdout to be preserved.
func (builder *CommandBuilder) resolveGitExecutor(logger *zap.Logger, redactor redaction.Redactor, preserveOutput bool) (gitrepo.GitCommandExecutor, error) {
	if builder.GitExecutor != nil {
		return builder.GitExecutor, nil
	}
	humanReadable := false
	if builder.HumanReadableLoggingProvider != nil {
		humanReadable = builder.HumanReadableLoggingProvider()
	}
	shellExecutor, creationError := execshell.NewShellExecutor(logger, execshell.NewOSCommandRunner(), humanReadable)
	if creationError != nil {
		return nil, creationError
	}
	redactingExecutor := shellExecutor.WithRedactor(redactor)
	if preserveOutput {
		return redactingExecutor.WithOutputPreserved(), nil
	}
	return redactingExecutor, nil
}

func (builder *CommandBuilder) resolveLogger() *zap.Logger {
	if builder.LoggerProvider == nil {
		return zap.NewNop()
	}
	logger := builder.LoggerProvider()
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

func (builder *CommandBuilder) resolveConfiguration() deploy.CommandConfiguration {
	if builder.ConfigurationProvider == nil {
		return deploy.DefaultCommandConfiguration()
	}
	return builder.ConfigurationProvider()
}

func (builder *CommandBuilder) resolveEnvironmentLookup() deploy.EnvironmentLookup {
	if builder.EnvironmentLookup != nil {
		return builder.EnvironmentLookup
	}
	return os.LookupEnv
}

func (builder *CommandBuilder) resolveWorkRoot() func() (string, error) {
	if builder.WorkRootProvider != nil {
		return builder.WorkRootProvider
	}
	return os.UserCacheDir
}

func (builder *CommandBuilder) resolveHomeDirectory() func() (string, error) {
	if builder.HomeDirectoryProvider != nil {
		return builder.HomeDirectoryProvider
	}
	return func() (string, error) {
		home, homeError := os.UserHomeDir()
		return strings.TrimSpace(home), homeError
	}
}
