package deploy

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/tyemirov/gitdeploy/internal/execshell"
	"github.com/tyemirov/gitdeploy/internal/gitrepo"
	"github.com/tyemirov/gitdeploy/internal/redaction"
)

const (
	gitPushSubcommandConstant        = "push"
	gitPorcelainFlagConstant         = "--porcelain"
	gitForceFlagConstant             = "--force"
	gitBranchReferencePrefixConstant = "refs/heads/"
	gitTagReferencePrefixConstant    = "refs/tags/"
	gitPromptVariableConstant        = "GIT_TERMINAL_PROMPT"
	gitPromptDisabledValueConstant   = "0"
	pushRejectedMarkerConstant       = "[rejected]"
	pushRemoteRejectedMarkerConstant = "[remote rejected]"
	pushCompletedMessage             = "pushed branch"
	pushFailedMessage                = "push failed"
	exitCodeLogFieldConstant         = "exit_code"
)

// PublishResult carries the push command result. Output is already redacted.
type PublishResult struct {
	Command execshell.ExecutionResult
	Pushed  bool
	Tags    []string
}

// Publisher pushes a working copy branch to its remote.
type Publisher struct {
	executor gitrepo.GitCommandExecutor
	logger   *zap.Logger
}

// NewPublisher constructs a Publisher.
func NewPublisher(executor gitrepo.GitCommandExecutor, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{executor: executor, logger: logger}
}

// Publish pushes the local branch to the same branch name on the remote through the transient
// authenticated remote described by authEnvironment. Every entry of tags is pushed with the branch.
// A rejected update is a subprocess failure; any other push failure means the remote was unreachable.
func (publisher *Publisher) Publish(executionContext context.Context, target Target, authEnvironment map[string]string, tags []string, redactor redaction.Redactor) (PublishResult, error) {
	branchReference := gitBranchReferencePrefixConstant + target.Branch
	arguments := []string{gitPushSubcommandConstant, gitPorcelainFlagConstant}
	if target.Force {
		arguments = append(arguments, gitForceFlagConstant)
	}
	arguments = append(arguments, AuthRemoteNameConstant, branchReference+":"+branchReference)
	pushedTags := make([]string, 0, len(tags))
	for _, tag := range tags {
		trimmedTag := strings.TrimSpace(tag)
		if len(trimmedTag) == 0 {
			continue
		}
		tagReference := gitTagReferencePrefixConstant + trimmedTag
		arguments = append(arguments, tagReference+":"+tagReference)
		pushedTags = append(pushedTags, trimmedTag)
	}

	environment := make(map[string]string, len(authEnvironment)+1)
	for name, value := range authEnvironment {
		environment[name] = value
	}
	environment[gitPromptVariableConstant] = gitPromptDisabledValueConstant

	fields := []zap.Field{zap.String(targetLogFieldConstant, target.Name), zap.String(branchLogFieldConstant, target.Branch)}
	commandResult, executionError := publisher.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:            arguments,
		WorkingDirectory:     target.WorkDirectory,
		EnvironmentVariables: environment,
	})
	commandResult = execshell.ExecutionResult{
		StandardOutput: redactor.Redact(commandResult.StandardOutput),
		StandardError:  redactor.Redact(commandResult.StandardError),
		ExitCode:       commandResult.ExitCode,
	}
	result := PublishResult{Command: commandResult}
	if executionError != nil {
		publisher.logger.Error(pushFailedMessage, append(fields, zap.Error(executionError))...)
		return result, newTargetError(ErrRemoteUnreachable, target.Name, StagePublish, redactor, executionError)
	}

	if failure := execshell.RequireSuccess(execshell.ShellCommand{Name: execshell.CommandGit, Details: execshell.CommandDetails{Arguments: arguments}}, commandResult); failure != nil {
		publisher.logger.Warn(pushFailedMessage, append(fields, zap.Int(exitCodeLogFieldConstant, commandResult.ExitCode))...)
		kind := ErrRemoteUnreachable
		if pushWasRejected(commandResult) {
			kind = ErrSubprocessFailure
		}
		return result, newTargetError(kind, target.Name, StagePublish, redactor, failure)
	}

	result.Pushed = true
	result.Tags = pushedTags
	publisher.logger.Info(pushCompletedMessage, fields...)
	return result, nil
}

// pushWasRejected reports whether the remote answered and refused the update.
func pushWasRejected(commandResult execshell.ExecutionResult) bool {
	combined := commandResult.StandardOutput + "\n" + commandResult.StandardError
	return strings.Contains(combined, pushRejectedMarkerConstant) || strings.Contains(combined, pushRemoteRejectedMarkerConstant)
}
