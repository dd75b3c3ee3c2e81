package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tyemirov/gitdeploy/internal/execshell"
)

const (
	gitStatusSubcommandConstant               = "status"
	gitStatusPorcelainFlagConstant            = "--porcelain"
	gitRevParseSubcommandConstant             = "rev-parse"
	gitGitDirFlagConstant                     = "--git-dir"
	gitShowToplevelFlagConstant               = "--show-toplevel"
	gitVerifyFlagConstant                     = "--verify"
	gitQuietFlagConstant                      = "--quiet"
	gitHeadCommitReferenceConstant            = "HEAD^{commit}"
	gitSymbolicRefSubcommandConstant          = "symbolic-ref"
	gitShortFlagConstant                      = "--short"
	gitHeadReferenceConstant                  = "HEAD"
	gitShowRefSubcommandConstant              = "show-ref"
	gitLsRemoteSubcommandConstant             = "ls-remote"
	gitExitCodeFlagConstant                   = "--exit-code"
	gitHeadsFlagConstant                      = "--heads"
	gitDiffSubcommandConstant                 = "diff"
	gitCachedFlagConstant                     = "--cached"
	gitRemoteSubcommandConstant               = "remote"
	gitRemoteGetURLSubcommandConstant         = "get-url"
	gitRemoteSetURLSubcommandConstant         = "set-url"
	gitRemoteAddSubcommandConstant            = "add"
	gitDirectoryNameConstant                  = ".git"
	localBranchReferencePrefixConstant        = "refs/heads/"
	terminalPromptEnvironmentNameConstant     = "GIT_TERMINAL_PROMPT"
	terminalPromptDisabledValueConstant       = "0"
	lsRemoteMissingExitCodeConstant           = 2
	diffChangesExitCodeConstant               = 1
	repositoryPathFieldNameConstant           = "repository_path"
	branchNameFieldNameConstant               = "branch_name"
	remoteNameFieldNameConstant               = "remote_name"
	remoteURLFieldNameConstant                = "remote_url"
	requiredValueMessageConstant              = "value required"
	executorNotConfiguredMessageConstant      = "git executor not configured"
	repositoryOperationErrorTemplateConstant  = "%s operation failed"
	repositoryOperationErrorWithCauseConstant = "%s operation failed: %s"
	invalidRepositoryInputTemplateConstant    = "%s: %s"
	worktreeStatusOperationNameConstant       = RepositoryOperationName("WorktreeStatus")
	workingCopyOperationNameConstant          = RepositoryOperationName("ProbeWorkingCopy")
	localBranchOperationNameConstant          = RepositoryOperationName("ProbeLocalBranch")
	remoteBranchOperationNameConstant         = RepositoryOperationName("ProbeRemoteBranch")
	stagedChangesOperationNameConstant        = RepositoryOperationName("ProbeStagedChanges")
	currentBranchOperationNameConstant        = RepositoryOperationName("GetCurrentBranch")
	headRevisionOperationNameConstant         = RepositoryOperationName("GetHeadRevision")
	repositoryRootOperationNameConstant       = RepositoryOperationName("GetRepositoryRoot")
	getRemoteURLOperationNameConstant         = RepositoryOperationName("GetRemoteURL")
	setRemoteURLOperationNameConstant         = RepositoryOperationName("SetRemoteURL")
	addRemoteOperationNameConstant            = RepositoryOperationName("AddRemote")
)

// GitCommandExecutor exposes the subset of execshell functionality required by RepositoryManager.
type GitCommandExecutor interface {
	ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// RepositoryManager coordinates Git operations through execshell.
type RepositoryManager struct {
	executor GitCommandExecutor
}

var (
	// ErrGitExecutorNotConfigured indicates the RepositoryManager was constructed without a git executor.
	ErrGitExecutorNotConfigured = errors.New(executorNotConfiguredMessageConstant)
)

// InvalidRepositoryInputError indicates validation failures for repository operations.
type InvalidRepositoryInputError struct {
	FieldName string
	Message   string
}

// Error describes the validation failure.
func (inputError InvalidRepositoryInputError) Error() string {
	return fmt.Sprintf(invalidRepositoryInputTemplateConstant, inputError.FieldName, inputError.Message)
}

// RepositoryOperationName captures descriptive names for repository operations.
type RepositoryOperationName string

// RepositoryOperationError wraps execution failures for git operations.
type RepositoryOperationError struct {
	Operation RepositoryOperationName
	Cause     error
}

// Error describes the repository operation failure.
func (operationError RepositoryOperationError) Error() string {
	if operationError.Cause == nil {
		return fmt.Sprintf(repositoryOperationErrorTemplateConstant, operationError.Operation)
	}
	return fmt.Sprintf(repositoryOperationErrorWithCauseConstant, operationError.Operation, operationError.Cause)
}

// Unwrap exposes the underlying error.
func (operationError RepositoryOperationError) Unwrap() error {
	return operationError.Cause
}

// WorkingCopyState classifies the directory probed by ProbeWorkingCopy.
type WorkingCopyState string

const (
	// WorkingCopyAbsent means the directory holds no repository of its own.
	WorkingCopyAbsent WorkingCopyState  = "absent"
	// WorkingCopyValid means the directory is the top level of a usable working copy.
	WorkingCopyValid WorkingCopyState   = "valid"
	// WorkingCopyCorrupt means the directory has a .git entry that git cannot use.
	WorkingCopyCorrupt WorkingCopyState = "corrupt"
)

// RemoteBranchPresence classifies the answer of a remote branch probe.
type RemoteBranchPresence string

const (
	// RemoteBranchPresent means the remote advertises the branch.
	RemoteBranchPresent RemoteBranchPresence = "present"
	// RemoteBranchMissing means the remote answered without the branch.
	RemoteBranchMissing RemoteBranchPresence = "missing"
	// RemoteBranchUnknown means the remote could not be queried.
	RemoteBranchUnknown RemoteBranchPresence = "unknown"
)

// NewRepositoryManager constructs a RepositoryManager for the provided executor.
func NewRepositoryManager(executor GitCommandExecutor) (*RepositoryManager, error) {
	if executor == nil {
		return nil, ErrGitExecutorNotConfigured
	}
	return &RepositoryManager{executor: executor}, nil
}

// ProbeWorkingCopy reports whether repositoryPath is the top level of a usable working copy.
// A directory nested inside another repository is reported as absent.
func (manager *RepositoryManager) ProbeWorkingCopy(executionContext context.Context, repositoryPath string) (WorkingCopyState, error) {
	trimmedPath := strings.TrimSpace(repositoryPath)
	if len(trimmedPath) == 0 {
		return WorkingCopyAbsent, InvalidRepositoryInputError{FieldName: repositoryPathFieldNameConstant, Message: requiredValueMessageConstant}
	}

	directoryInfo, statError := os.Stat(trimmedPath)
	if statError != nil || !directoryInfo.IsDir() {
		return WorkingCopyAbsent, nil
	}

	_, gitEntryError := os.Lstat(filepath.Join(trimmedPath, gitDirectoryNameConstant))
	hasGitEntry := gitEntryError == nil

	executionResult, executionError := manager.run(executionContext, trimmedPath, nil, gitRevParseSubcommandConstant, gitGitDirFlagConstant)
	if executionError != nil {
		return WorkingCopyAbsent, RepositoryOperationError{Operation: workingCopyOperationNameConstant, Cause: executionError}
	}

	if executionResult.Succeeded() && strings.TrimSpace(executionResult.StandardOutput) == gitDirectoryNameConstant {
		return WorkingCopyValid, nil
	}
	if hasGitEntry {
		return WorkingCopyCorrupt, nil
	}
	return WorkingCopyAbsent, nil
}

// IsWorkingCopy reports whether repositoryPath is the top level of a usable working copy.
func (manager *RepositoryManager) IsWorkingCopy(executionContext context.Context, repositoryPath string) (bool, error) {
	state, probeError := manager.ProbeWorkingCopy(executionContext, repositoryPath)
	if probeError != nil {
		return false, probeError
	}
	return state == WorkingCopyValid, nil
}

// HasLocalBranch reports whether refs/heads/<branch> exists in the repository.
func (manager *RepositoryManager) HasLocalBranch(executionContext context.Context, repositoryPath string, branchName string) (bool, error) {
	trimmedPath, trimmedBranch, validationError := requirePathAndBranch(repositoryPath, branchName)
	if validationError != nil {
		return false, validationError
	}

	executionResult, executionError := manager.run(executionContext, trimmedPath, nil,
		gitShowRefSubcommandConstant, gitVerifyFlagConstant, gitQuietFlagConstant, localBranchReferencePrefixConstant+trimmedBranch)
	if executionError != nil {
		return false, RepositoryOperationError{Operation: localBranchOperationNameConstant, Cause: executionError}
	}
	return executionResult.Succeeded(), nil
}

// RemoteBranchState queries remote for the branch. The remote may be a configured remote name,
// including one injected through environmentVariables, or a URL.
func (manager *RepositoryManager) RemoteBranchState(executionContext context.Context, repositoryPath string, remote string, branchName string, environmentVariables map[string]string) (RemoteBranchPresence, error) {
	trimmedPath, trimmedBranch, validationError := requirePathAndBranch(repositoryPath, branchName)
	if validationError != nil {
		return RemoteBranchUnknown, validationError
	}
	trimmedRemote := strings.TrimSpace(remote)
	if len(trimmedRemote) == 0 {
		return RemoteBranchUnknown, InvalidRepositoryInputError{FieldName: remoteNameFieldNameConstant, Message: requiredValueMessageConstant}
	}

	executionResult, executionError := manager.run(executionContext, trimmedPath, environmentVariables,
		gitLsRemoteSubcommandConstant, gitExitCodeFlagConstant, gitHeadsFlagConstant, trimmedRemote, localBranchReferencePrefixConstant+trimmedBranch)
	if executionError != nil {
		return RemoteBranchUnknown, RepositoryOperationError{Operation: remoteBranchOperationNameConstant, Cause: executionError}
	}

	switch executionResult.ExitCode {
	case 0:
		return RemoteBranchPresent, nil
	case lsRemoteMissingExitCodeConstant:
		return RemoteBranchMissing, nil
	default:
		return RemoteBranchUnknown, RepositoryOperationError{
			Operation: remoteBranchOperationNameConstant,
			Cause:     requireSuccess([]string{gitLsRemoteSubcommandConstant, trimmedRemote}, executionResult),
		}
	}
}

// RemoteBranchExists reports whether the remote advertises the branch. An unreachable remote counts as absent.
func (manager *RepositoryManager) RemoteBranchExists(executionContext context.Context, repositoryPath string, remote string, branchName string, environmentVariables map[string]string) (bool, error) {
	presence, probeError := manager.RemoteBranchState(executionContext, repositoryPath, remote, branchName, environmentVariables)
	if probeError != nil {
		var commandFailure execshell.CommandFailedError
		if errors.As(probeError, &commandFailure) {
			return false, nil
		}
		return false, probeError
	}
	return presence == RemoteBranchPresent, nil
}

// HasUncommittedChanges reports whether the working copy has staged or unstaged changes.
// A failing status probe counts as clean.
func (manager *RepositoryManager) HasUncommittedChanges(executionContext context.Context, repositoryPath string) (bool, error) {
	status, statusError := manager.WorktreeStatus(executionContext, repositoryPath)
	if statusError != nil {
		return false, statusError
	}
	return len(status) > 0, nil
}

// WorktreeStatus returns the porcelain status entries for the repository.
func (manager *RepositoryManager) WorktreeStatus(executionContext context.Context, repositoryPath string) ([]string, error) {
	trimmedPath := strings.TrimSpace(repositoryPath)
	if len(trimmedPath) == 0 {
		return nil, InvalidRepositoryInputError{FieldName: repositoryPathFieldNameConstant, Message: requiredValueMessageConstant}
	}

	executionResult, executionError := manager.run(executionContext, trimmedPath, nil, gitStatusSubcommandConstant, gitStatusPorcelainFlagConstant)
	if executionError != nil {
		return nil, RepositoryOperationError{Operation: worktreeStatusOperationNameConstant, Cause: executionError}
	}
	if !executionResult.Succeeded() {
		return nil, nil
	}

	trimmedOutput := strings.TrimSpace(executionResult.StandardOutput)
	if len(trimmedOutput) == 0 {
		return nil, nil
	}

	lines := strings.Split(trimmedOutput, "\n")
	entries := make([]string, 0, len(lines))
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); len(trimmed) > 0 {
			entries = append(entries, trimmed)
		}
	}
	return entries, nil
}

// HasStagedChanges reports whether the index differs from HEAD. On an unborn branch any staged
// entry counts as a change.
func (manager *RepositoryManager) HasStagedChanges(executionContext context.Context, repositoryPath string) (bool, error) {
	trimmedPath := strings.TrimSpace(repositoryPath)
	if len(trimmedPath) == 0 {
		return false, InvalidRepositoryInputError{FieldName: repositoryPathFieldNameConstant, Message: requiredValueMessageConstant}
	}

	arguments := []string{gitDiffSubcommandConstant, gitCachedFlagConstant, gitQuietFlagConstant}
	executionResult, executionError := manager.run(executionContext, trimmedPath, nil, arguments...)
	if executionError != nil {
		return false, RepositoryOperationError{Operation: stagedChangesOperationNameConstant, Cause: executionError}
	}

	switch executionResult.ExitCode {
	case 0:
		return false, nil
	case diffChangesExitCodeConstant:
		return true, nil
	default:
		return false, RepositoryOperationError{
			Operation: stagedChangesOperationNameConstant,
			Cause:     requireSuccess(arguments, executionResult),
		}
	}
}

// GetCurrentBranch resolves the branch HEAD points at, including an unborn branch.
// A detached HEAD yields an empty name.
func (manager *RepositoryManager) GetCurrentBranch(executionContext context.Context, repositoryPath string) (string, error) {
	trimmedPath := strings.TrimSpace(repositoryPath)
	if len(trimmedPath) == 0 {
		return "", InvalidRepositoryInputError{FieldName: repositoryPathFieldNameConstant, Message: requiredValueMessageConstant}
	}

	executionResult, executionError := manager.run(executionContext, trimmedPath, nil,
		gitSymbolicRefSubcommandConstant, gitQuietFlagConstant, gitShortFlagConstant, gitHeadReferenceConstant)
	if executionError != nil {
		return "", RepositoryOperationError{Operation: currentBranchOperationNameConstant, Cause: executionError}
	}
	if !executionResult.Succeeded() {
		return "", nil
	}
	return strings.TrimSpace(executionResult.StandardOutput), nil
}

// HeadRevision returns the full hash HEAD resolves to. The boolean is false on an unborn branch.
func (manager *RepositoryManager) HeadRevision(executionContext context.Context, repositoryPath string) (string, bool, error) {
	trimmedPath := strings.TrimSpace(repositoryPath)
	if len(trimmedPath) == 0 {
		return "", false, InvalidRepositoryInputError{FieldName: repositoryPathFieldNameConstant, Message: requiredValueMessageConstant}
	}

	executionResult, executionError := manager.run(executionContext, trimmedPath, nil,
		gitRevParseSubcommandConstant, gitVerifyFlagConstant, gitQuietFlagConstant, gitHeadCommitReferenceConstant)
	if executionError != nil {
		return "", false, RepositoryOperationError{Operation: headRevisionOperationNameConstant, Cause: executionError}
	}
	revision := strings.TrimSpace(executionResult.StandardOutput)
	if !executionResult.Succeeded() || len(revision) == 0 {
		return "", false, nil
	}
	return revision, true, nil
}

// RepositoryRoot returns the top-level directory of the working copy containing repositoryPath.
func (manager *RepositoryManager) RepositoryRoot(executionContext context.Context, repositoryPath string) (string, error) {
	trimmedPath := strings.TrimSpace(repositoryPath)
	if len(trimmedPath) == 0 {
		return "", InvalidRepositoryInputError{FieldName: repositoryPathFieldNameConstant, Message: requiredValueMessageConstant}
	}

	arguments := []string{gitRevParseSubcommandConstant, gitShowToplevelFlagConstant}
	executionResult, executionError := manager.run(executionContext, trimmedPath, nil, arguments...)
	if executionError != nil {
		return "", RepositoryOperationError{Operation: repositoryRootOperationNameConstant, Cause: executionError}
	}
	if failure := requireSuccess(arguments, executionResult); failure != nil {
		return "", RepositoryOperationError{Operation: repositoryRootOperationNameConstant, Cause: failure}
	}
	return strings.TrimSpace(executionResult.StandardOutput), nil
}

// GetRemoteURL returns the configured remote URL for the given remote name.
func (manager *RepositoryManager) GetRemoteURL(executionContext context.Context, repositoryPath string, remoteName string) (string, error) {
	trimmedPath := strings.TrimSpace(repositoryPath)
	if len(trimmedPath) == 0 {
		return "", InvalidRepositoryInputError{FieldName: repositoryPathFieldNameConstant, Message: requiredValueMessageConstant}
	}

	trimmedRemote := strings.TrimSpace(remoteName)
	if len(trimmedRemote) == 0 {
		return "", InvalidRepositoryInputError{FieldName: remoteNameFieldNameConstant, Message: requiredValueMessageConstant}
	}

	arguments := []string{gitRemoteSubcommandConstant, gitRemoteGetURLSubcommandConstant, trimmedRemote}
	executionResult, executionError := manager.run(executionContext, trimmedPath, nil, arguments...)
	if executionError != nil {
		return "", RepositoryOperationError{Operation: getRemoteURLOperationNameConstant, Cause: executionError}
	}
	if failure := requireSuccess(arguments, executionResult); failure != nil {
		return "", RepositoryOperationError{Operation: getRemoteURLOperationNameConstant, Cause: failure}
	}

	return strings.TrimSpace(executionResult.StandardOutput), nil
}

// SetRemoteURL sets the remote URL for a remote.
func (manager *RepositoryManager) SetRemoteURL(executionContext context.Context, repositoryPath string, remoteName string, remoteURL string) error {
	return manager.configureRemote(executionContext, setRemoteURLOperationNameConstant, gitRemoteSetURLSubcommandConstant, repositoryPath, remoteName, remoteURL)
}

// AddRemote registers a new remote.
func (manager *RepositoryManager) AddRemote(executionContext context.Context, repositoryPath string, remoteName string, remoteURL string) error {
	return manager.configureRemote(executionContext, addRemoteOperationNameConstant, gitRemoteAddSubcommandConstant, repositoryPath, remoteName, remoteURL)
}

func (manager *RepositoryManager) configureRemote(executionContext context.Context, operation RepositoryOperationName, subcommand string, repositoryPath string, remoteName string, remoteURL string) error {
	trimmedPath := strings.TrimSpace(repositoryPath)
	if len(trimmedPath) == 0 {
		return InvalidRepositoryInputError{FieldName: repositoryPathFieldNameConstant, Message: requiredValueMessageConstant}
	}

	trimmedRemote := strings.TrimSpace(remoteName)
	if len(trimmedRemote) == 0 {
		return InvalidRepositoryInputError{FieldName: remoteNameFieldNameConstant, Message: requiredValueMessageConstant}
	}

	trimmedRemoteURL := strings.TrimSpace(remoteURL)
	if len(trimmedRemoteURL) == 0 {
		return InvalidRepositoryInputError{FieldName: remoteURLFieldNameConstant, Message: requiredValueMessageConstant}
	}

	arguments := []string{gitRemoteSubcommandConstant, subcommand, trimmedRemote, trimmedRemoteURL}
	executionResult, executionError := manager.run(executionContext, trimmedPath, nil, arguments...)
	if executionError != nil {
		return RepositoryOperationError{Operation: operation, Cause: executionError}
	}
	if failure := requireSuccess(arguments, executionResult); failure != nil {
		return RepositoryOperationError{Operation: operation, Cause: failure}
	}
	return nil
}

// run executes git in repositoryPath with prompts disabled. Non-zero exits are returned in the result.
func (manager *RepositoryManager) run(executionContext context.Context, repositoryPath string, environmentVariables map[string]string, arguments ...string) (execshell.ExecutionResult, error) {
	return manager.executor.ExecuteGit(executionContext, manager.details(repositoryPath, environmentVariables, arguments, nil))
}

func (manager *RepositoryManager) details(repositoryPath string, environmentVariables map[string]string, arguments []string, standardInput []byte) execshell.CommandDetails {
	environment := make(map[string]string, len(environmentVariables)+1)
	environment[terminalPromptEnvironmentNameConstant] = terminalPromptDisabledValueConstant
	for name, value := range environmentVariables {
		environment[name] = value
	}
	return execshell.CommandDetails{
		Arguments:            arguments,
		WorkingDirectory:     repositoryPath,
		EnvironmentVariables: environment,
		StandardInput:        standardInput,
	}
}

func requireSuccess(arguments []string, executionResult execshell.ExecutionResult) error {
	return execshell.RequireSuccess(execshell.ShellCommand{Name: execshell.CommandGit, Details: execshell.CommandDetails{Arguments: arguments}}, executionResult)
}

func requirePathAndBranch(repositoryPath string, branchName string) (string, string, error) {
	trimmedPath := strings.TrimSpace(repositoryPath)
	if len(trimmedPath) == 0 {
		return "", "", InvalidRepositoryInputError{FieldName: repositoryPathFieldNameConstant, Message: requiredValueMessageConstant}
	}
	trimmedBranch := strings.TrimSpace(branchName)
	if len(trimmedBranch) == 0 {
		return "", "", InvalidRepositoryInputError{FieldName: branchNameFieldNameConstant, Message: requiredValueMessageConstant}
	}
	return trimmedPath, trimmedBranch, nil
}
