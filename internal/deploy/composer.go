package deploy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/tyemirov/gitdeploy/internal/gitrepo"
	"github.com/tyemirov/gitdeploy/internal/redaction"
)

const (
	gitAuthorNameVariableConstant     = "GIT_AUTHOR_NAME"
	gitAuthorEmailVariableConstant    = "GIT_AUTHOR_EMAIL"
	gitCommitterNameVariableConstant  = "GIT_COMMITTER_NAME"
	gitCommitterEmailVariableConstant = "GIT_COMMITTER_EMAIL"
	contentSynchronizedMessage        = "synchronized build output into working copy"
	nothingToCommitMessage            = "staged tree matches branch tip"
	stagedOnlyMessage                 = "changes staged without commit"
	commitCreatedMessage              = "created commit"
	tagReusedMessage                  = "tag already points at commit"
	tagCreatedMessage                 = "created tag"
	revisionLogFieldConstant          = "revision"
	tagLogFieldConstant               = "tag"
	sourceLogFieldConstant            = "source"
	tagConflictMessageTemplate        = "tag %s already points at %s"
)

// CommitResult describes what the composer left in the working copy.
type CommitResult struct {
	Staged          bool
	NothingToCommit bool
	Committed       bool
	Revision        string
	Message         string
	Tag             string
}

// Composer mirrors build output into a working copy and records it as a commit.
type Composer struct {
	repositoryManager *gitrepo.RepositoryManager
	synchronizer      ContentSynchronizer
	logger            *zap.Logger
}

// NewComposer constructs a Composer.
func NewComposer(repositoryManager *gitrepo.RepositoryManager, synchronizer ContentSynchronizer, logger *zap.Logger) *Composer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Composer{repositoryManager: repositoryManager, synchronizer: synchronizer, logger: logger}
}

// StageAndCommit replaces the working copy contents with target.SourceDirectory, stages the result
// and, when target.Commit is set and the index differs from the branch tip, commits it.
// A tree identical to the tip yields NothingToCommit and no commit.
func (composer *Composer) StageAndCommit(executionContext context.Context, target Target, messageContext MessageContext, redactor redaction.Redactor) (CommitResult, error) {
	result := CommitResult{}
	fail := func(kind ErrorKind, cause error) (CommitResult, error) {
		return result, newTargetError(kind, target.Name, StageCommit, redactor, cause)
	}
	fields := []zap.Field{zap.String(targetLogFieldConstant, target.Name), zap.String(branchLogFieldConstant, target.Branch)}

	if syncError := composer.synchronizer.Synchronize(target.SourceDirectory, target.WorkDirectory); syncError != nil {
		var sourceError SourceReadError
		if errors.As(syncError, &sourceError) {
			return fail(ErrInvalidConfiguration, syncError)
		}
		return fail(ErrWorkingCopyCorrupt, syncError)
	}
	composer.logger.Debug(contentSynchronizedMessage, append(fields, zap.String(sourceLogFieldConstant, target.SourceDirectory))...)

	if stageError := composer.repositoryManager.StageAll(executionContext, target.WorkDirectory); stageError != nil {
		return fail(ErrSubprocessFailure, stageError)
	}

	hasChanges, diffError := composer.repositoryManager.HasStagedChanges(executionContext, target.WorkDirectory)
	if diffError != nil {
		return fail(ErrSubprocessFailure, diffError)
	}
	if !hasChanges {
		result.NothingToCommit = true
		revision, _, headError := composer.repositoryManager.HeadRevision(executionContext, target.WorkDirectory)
		if headError != nil {
			return fail(ErrSubprocessFailure, headError)
		}
		result.Revision = revision
		composer.logger.Info(nothingToCommitMessage, fields...)
		return result, nil
	}
	result.Staged = true

	if !target.Commit {
		revision, _, headError := composer.repositoryManager.HeadRevision(executionContext, target.WorkDirectory)
		if headError != nil {
			return fail(ErrSubprocessFailure, headError)
		}
		result.Revision = revision
		composer.logger.Info(stagedOnlyMessage, fields...)
		return result, nil
	}

	message, renderError := RenderMessage(target.MessageTemplate, messageContext, target.AllowUnresolvedTokens)
	if renderError != nil {
		return fail(ErrInvalidConfiguration, renderError)
	}
	message = redactor.Redact(message)
	result.Message = message

	revision, commitError := composer.repositoryManager.Commit(executionContext, target.WorkDirectory, message, authorEnvironment(target.Author))
	if commitError != nil {
		return fail(ErrSubprocessFailure, commitError)
	}
	result.Committed = true
	result.Revision = revision
	composer.logger.Info(commitCreatedMessage, append(fields, zap.String(revisionLogFieldConstant, revision))...)

	if len(strings.TrimSpace(target.Tag)) == 0 {
		return result, nil
	}
	if tagError := composer.applyTag(executionContext, target, revision, fields); tagError != nil {
		var targetError TargetError
		if errors.As(tagError, &targetError) {
			return result, targetError
		}
		return fail(ErrSubprocessFailure, tagError)
	}
	result.Tag = strings.TrimSpace(target.Tag)
	return result, nil
}

func (composer *Composer) applyTag(executionContext context.Context, target Target, revision string, fields []zap.Field) error {
	tagName := strings.TrimSpace(target.Tag)
	existingRevision, exists, lookupError := composer.repositoryManager.TagRevision(executionContext, target.WorkDirectory, tagName)
	if lookupError != nil {
		return lookupError
	}
	if exists {
		if existingRevision != revision {
			return newTargetError(ErrInvalidConfiguration, target.Name, StageCommit, redaction.NewRedactor(), fmt.Errorf(tagConflictMessageTemplate, tagName, existingRevision))
		}
		composer.logger.Info(tagReusedMessage, append(fields, zap.String(tagLogFieldConstant, tagName))...)
		return nil
	}
	if createError := composer.repositoryManager.CreateTag(executionContext, target.WorkDirectory, tagName); createError != nil {
		return createError
	}
	composer.logger.Info(tagCreatedMessage, append(fields, zap.String(tagLogFieldConstant, tagName))...)
	return nil
}

func authorEnvironment(author Author) map[string]string {
	environment := make(map[string]string, 4)
	if name := strings.TrimSpace(author.Name); len(name) > 0 {
		environment[gitAuthorNameVariableConstant] = name
		environment[gitCommitterNameVariableConstant] = name
	}
	if email := strings.TrimSpace(author.Email); len(email) > 0 {
		environment[gitAuthorEmailVariableConstant] = email
		environment[gitCommitterEmailVariableConstant] = email
	}
	return environment
}
