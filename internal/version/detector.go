// Package version reports the gitdeploy build version.
package version

import (
	"context"
	"errors"
	"os"
	"runtime/debug"
	"strings"

	"go.uber.org/zap"

	"github.com/tyemirov/gitdeploy/internal/execshell"
	"github.com/tyemirov/gitdeploy/internal/gitrepo"
)

const (
	unknownVersionFallbackConstant            = "unknown"
	buildInfoDevelVersionValue                = "(devel)"
	gitRevParseSubcommandConstant             = "rev-parse"
	gitShowTopLevelFlagConstant               = "--show-toplevel"
	gitDescribeSubcommandConstant             = "describe"
	gitTagsFlagConstant                       = "--tags"
	gitExactMatchFlagConstant                 = "--exact-match"
	gitLongFlagConstant                       = "--long"
	gitDirtyFlagConstant                      = "--dirty"
	gitTerminalPromptEnvironmentNameConstant  = "GIT_TERMINAL_PROMPT"
	gitTerminalPromptEnvironmentValueConstant = "0"
	gitExecutorMissingMessageConstant         = "git executor not configured"
)

// BuildInfoProvider exposes runtime build metadata.
type BuildInfoProvider interface {
	Read() (*debug.BuildInfo, bool)
}

// Dependencies describes the collaborators required for version detection.
type Dependencies struct {
	BuildInfoProvider BuildInfoProvider
	GitExecutor       gitrepo.GitCommandExecutor
	WorkingDirectory  string
}

// Detector resolves the version from module build info, falling back to git describe.
type Detector struct {
	buildInfoProvider BuildInfoProvider
	gitExecutor       gitrepo.GitCommandExecutor
	workingDirectory  string
}

// NewDetector constructs a Detector, defaulting to runtime build info and a quiet shell executor.
func NewDetector(dependencies Dependencies) (*Detector, error) {
	provider := dependencies.BuildInfoProvider
	if provider == nil {
		provider = runtimeBuildInfoProvider{}
	}

	executor := dependencies.GitExecutor
	if executor == nil {
		shellExecutor, creationError := execshell.NewShellExecutor(zap.NewNop(), execshell.NewOSCommandRunner(), false)
		if creationError != nil {
			return nil, creationError
		}
		executor = shellExecutor
	}

	workingDirectory := strings.TrimSpace(dependencies.WorkingDirectory)
	if len(workingDirectory) == 0 {
		if currentDirectory, workingDirectoryError := os.Getwd(); workingDirectoryError == nil {
			workingDirectory = currentDirectory
		}
	}

	return &Detector{
		buildInfoProvider: provider,
		gitExecutor:       executor,
		workingDirectory:  workingDirectory,
	}, nil
}

// Detect resolves the version, returning "unknown" when no source is available.
func Detect(executionContext context.Context, dependencies Dependencies) string {
	detector, detectorError := NewDetector(dependencies)
	if detectorError != nil {
		return unknownVersionFallbackConstant
	}
	return detector.Version(executionContext)
}

// Version returns the detected version string.
func (detector *Detector) Version(executionContext context.Context) string {
	if detector == nil {
		return unknownVersionFallbackConstant
	}

	if buildVersion := detector.versionFromBuildInfo(); len(buildVersion) > 0 {
		return buildVersion
	}

	repositoryRoot := detector.resolveRepositoryRoot(executionContext)

	if exactVersion := detector.describeVersion(executionContext, repositoryRoot, gitTagsFlagConstant, gitExactMatchFlagConstant); len(exactVersion) > 0 {
		return exactVersion
	}
	if longVersion := detector.describeVersion(executionContext, repositoryRoot, gitTagsFlagConstant, gitLongFlagConstant, gitDirtyFlagConstant); len(longVersion) > 0 {
		return longVersion
	}
	return unknownVersionFallbackConstant
}

func (detector *Detector) versionFromBuildInfo() string {
	if detector.buildInfoProvider == nil {
		return ""
	}
	buildInfo, available := detector.buildInfoProvider.Read()
	if !available || buildInfo == nil {
		return ""
	}
	trimmedVersion := strings.TrimSpace(buildInfo.Main.Version)
	if len(trimmedVersion) == 0 || strings.EqualFold(strings.Trim(trimmedVersion, "()"), strings.Trim(buildInfoDevelVersionValue, "()")) {
		return ""
	}
	return trimmedVersion
}

func (detector *Detector) resolveRepositoryRoot(executionContext context.Context) string {
	if len(detector.workingDirectory) == 0 {
		return ""
	}
	output, executionError := detector.executeGit(executionContext, detector.workingDirectory, gitRevParseSubcommandConstant, gitShowTopLevelFlagConstant)
	if executionError != nil || len(output) == 0 {
		return detector.workingDirectory
	}
	return output
}

func (detector *Detector) describeVersion(executionContext context.Context, repositoryRoot string, flags ...string) string {
	output, executionError := detector.executeGit(executionContext, repositoryRoot, append([]string{gitDescribeSubcommandConstant}, flags...)...)
	if executionError != nil {
		return ""
	}
	return output
}

// executeGit treats a non-zero exit as a failure; describe prints nothing useful then.
func (detector *Detector) executeGit(executionContext context.Context, workingDirectory string, arguments ...string) (string, error) {
	if detector.gitExecutor == nil {
		return "", errors.New(gitExecutorMissingMessageConstant)
	}
	command := execshell.ShellCommand{
		Name: execshell.CommandGit,
		Details: execshell.CommandDetails{
			Arguments:            arguments,
			WorkingDirectory:     workingDirectory,
			EnvironmentVariables: map[string]string{gitTerminalPromptEnvironmentNameConstant: gitTerminalPromptEnvironmentValueConstant},
		},
	}
	executionResult, executionError := detector.gitExecutor.ExecuteGit(executionContext, command.Details)
	if executionError != nil {
		return "", executionError
	}
	if requireError := execshell.RequireSuccess(command, executionResult); requireError != nil {
		return "", requireError
	}
	return strings.TrimSpace(executionResult.StandardOutput), nil
}

type runtimeBuildInfoProvider struct{}

func (runtimeBuildInfoProvider) Read() (*debug.BuildInfo, bool) {
	return debug.ReadBuildInfo()
}
