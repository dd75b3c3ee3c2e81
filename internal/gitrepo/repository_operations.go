package gitrepo

import (
	"context"
	"strings"
)

const (
	gitInitSubcommandConstant           = "init"
	gitCheckoutSubcommandConstant       = "checkout"
	gitForceShortFlagConstant           = "-f"
	gitCreateBranchFlagConstant         = "-b"
	gitOrphanFlagConstant               = "--orphan"
	gitFetchSubcommandConstant          = "fetch"
	gitNoTagsFlagConstant               = "--no-tags"
	gitMergeSubcommandConstant          = "merge"
	gitFastForwardOnlyFlagConstant      = "--ff-only"
	gitAddSubcommandConstant            = "add"
	gitAllFlagConstant                  = "--all"
	gitCommitSubcommandConstant         = "commit"
	gitFileFlagConstant                 = "--file"
	gitStandardInputPathConstant        = "-"
	gitCleanupFlagConstant              = "--cleanup=verbatim"
	gitTagSubcommandConstant            = "tag"
	gitTagReferencePrefixConstant       = "refs/tags/"
	gitRemoteTrackingPrefixConstant     = "refs/remotes/"
	gitForcedRefspecPrefixConstant      = "+"
	gitRefspecSeparatorConstant         = ":"
	gitTagPeelSuffixConstant            = "^{commit}"
	startPointFieldNameConstant         = "start_point"
	tagNameFieldNameConstant            = "tag_name"
	initRepositoryOperationConstant     = RepositoryOperationName("InitRepository")
	checkoutBranchOperationConstant     = RepositoryOperationName("CheckoutBranch")
	createBranchOperationConstant       = RepositoryOperationName("CreateBranch")
	createOrphanBranchOperationConstant = RepositoryOperationName("CreateOrphanBranch")
	pointHeadOperationConstant          = RepositoryOperationName("PointHead")
	fetchBranchOperationConstant        = RepositoryOperationName("FetchBranch")
	fastForwardOperationConstant        = RepositoryOperationName("FastForward")
	stageAllOperationConstant           = RepositoryOperationName("StageAll")
	commitOperationConstant             = RepositoryOperationName("Commit")
	tagRevisionOperationConstant        = RepositoryOperationName("ResolveTag")
	createTagOperationConstant          = RepositoryOperationName("CreateTag")
)

// RemoteTrackingReference returns the remote-tracking reference used for remoteName/branchName.
func RemoteTrackingReference(remoteName string, branchName string) string {
	return gitRemoteTrackingPrefixConstant + strings.TrimSpace(remoteName) + "/" + strings.TrimSpace(branchName)
}

// InitRepository creates an empty repository in repositoryPath.
func (manager *RepositoryManager) InitRepository(executionContext context.Context, repositoryPath string) error {
	trimmedPath := strings.TrimSpace(repositoryPath)
	if len(trimmedPath) == 0 {
		return InvalidRepositoryInputError{FieldName: repositoryPathFieldNameConstant, Message: requiredValueMessageConstant}
	}
	return manager.runRequired(executionContext, initRepositoryOperationConstant, trimmedPath, nil, gitInitSubcommandConstant)
}

// CheckoutBranch force-checks out an existing local branch, discarding working tree edits.
func (manager *RepositoryManager) CheckoutBranch(executionContext context.Context, repositoryPath string, branchName string) error {
	trimmedPath, trimmedBranch, validationError := requirePathAndBranch(repositoryPath, branchName)
	if validationError != nil {
		return validationError
	}
	return manager.runRequired(executionContext, checkoutBranchOperationConstant, trimmedPath, nil,
		gitCheckoutSubcommandConstant, gitForceShortFlagConstant, trimmedBranch)
}

// CreateBranch creates branchName at startPoint and checks it out.
func (manager *RepositoryManager) CreateBranch(executionContext context.Context, repositoryPath string, branchName string, startPoint string) error {
	trimmedPath, trimmedBranch, validationError := requirePathAndBranch(repositoryPath, branchName)
	if validationError != nil {
		return validationError
	}
	trimmedStartPoint := strings.TrimSpace(startPoint)
	if len(trimmedStartPoint) == 0 {
		return InvalidRepositoryInputError{FieldName: startPointFieldNameConstant, Message: requiredValueMessageConstant}
	}
	return manager.runRequired(executionContext, createBranchOperationConstant, trimmedPath, nil,
		gitCheckoutSubcommandConstant, gitForceShortFlagConstant, gitCreateBranchFlagConstant, trimmedBranch, trimmedStartPoint)
}

// CreateOrphanBranch starts branchName with no parent commits. The index keeps its entries.
func (manager *RepositoryManager) CreateOrphanBranch(executionContext context.Context, repositoryPath string, branchName string) error {
	trimmedPath, trimmedBranch, validationError := requirePathAndBranch(repositoryPath, branchName)
	if validationError != nil {
		return validationError
	}
	return manager.runRequired(executionContext, createOrphanBranchOperationConstant, trimmedPath, nil,
		gitCheckoutSubcommandConstant, gitOrphanFlagConstant, trimmedBranch)
}

// PointHead makes HEAD refer to branchName without touching the index or working tree.
// Used on repositories that have no commits yet.
func (manager *RepositoryManager) PointHead(executionContext context.Context, repositoryPath string, branchName string) error {
	trimmedPath, trimmedBranch, validationError := requirePathAndBranch(repositoryPath, branchName)
	if validationError != nil {
		return validationError
	}
	return manager.runRequired(executionContext, pointHeadOperationConstant, trimmedPath, nil,
		gitSymbolicRefSubcommandConstant, gitHeadReferenceConstant, localBranchReferencePrefixConstant+trimmedBranch)
}

// FetchBranch updates the remote-tracking reference of trackingRemoteName/branchName from remote.
func (manager *RepositoryManager) FetchBranch(executionContext context.Context, repositoryPath string, remote string, trackingRemoteName string, branchName string, environmentVariables map[string]string) error {
	trimmedPath, trimmedBranch, validationError := requirePathAndBranch(repositoryPath, branchName)
	if validationError != nil {
		return validationError
	}
	trimmedRemote := strings.TrimSpace(remote)
	if len(trimmedRemote) == 0 {
		return InvalidRepositoryInputError{FieldName: remoteNameFieldNameConstant, Message: requiredValueMessageConstant}
	}
	refspec := gitForcedRefspecPrefixConstant + localBranchReferencePrefixConstant + trimmedBranch +
		gitRefspecSeparatorConstant + RemoteTrackingReference(trackingRemoteName, trimmedBranch)
	return manager.runRequired(executionContext, fetchBranchOperationConstant, trimmedPath, environmentVariables,
		gitFetchSubcommandConstant, gitNoTagsFlagConstant, trimmedRemote, refspec)
}

// FastForward advances the checked out branch to reference. Diverged history is an error.
func (manager *RepositoryManager) FastForward(executionContext context.Context, repositoryPath string, reference string) error {
	trimmedPath := strings.TrimSpace(repositoryPath)
	if len(trimmedPath) == 0 {
		return InvalidRepositoryInputError{FieldName: repositoryPathFieldNameConstant, Message: requiredValueMessageConstant}
	}
	trimmedReference := strings.TrimSpace(reference)
	if len(trimmedReference) == 0 {
		return InvalidRepositoryInputError{FieldName: startPointFieldNameConstant, Message: requiredValueMessageConstant}
	}
	return manager.runRequired(executionContext, fastForwardOperationConstant, trimmedPath, nil,
		gitMergeSubcommandConstant, gitFastForwardOnlyFlagConstant, trimmedReference)
}

// StageAll stages additions, modifications and deletions across the working tree.
func (manager *RepositoryManager) StageAll(executionContext context.Context, repositoryPath string) error {
	trimmedPath := strings.TrimSpace(repositoryPath)
	if len(trimmedPath) == 0 {
		return InvalidRepositoryInputError{FieldName: repositoryPathFieldNameConstant, Message: requiredValueMessageConstant}
	}
	return manager.runRequired(executionContext, stageAllOperationConstant, trimmedPath, nil, gitAddSubcommandConstant, gitAllFlagConstant)
}

// Commit records the index with message read from standard input and returns the new HEAD hash.
func (manager *RepositoryManager) Commit(executionContext context.Context, repositoryPath string, message string, environmentVariables map[string]string) (string, error) {
	trimmedPath := strings.TrimSpace(repositoryPath)
	if len(trimmedPath) == 0 {
		return "", InvalidRepositoryInputError{FieldName: repositoryPathFieldNameConstant, Message: requiredValueMessageConstant}
	}

	arguments := []string{gitCommitSubcommandConstant, gitCleanupFlagConstant, gitFileFlagConstant, gitStandardInputPathConstant}
	executionResult, executionError := manager.executor.ExecuteGit(executionContext, manager.details(trimmedPath, environmentVariables, arguments, []byte(message)))
	if executionError != nil {
		return "", RepositoryOperationError{Operation: commitOperationConstant, Cause: executionError}
	}
	if failure := requireSuccess(arguments, executionResult); failure != nil {
		return "", RepositoryOperationError{Operation: commitOperationConstant, Cause: failure}
	}

	revision, exists, revisionError := manager.HeadRevision(executionContext, trimmedPath)
	if revisionError != nil {
		return "", revisionError
	}
	if !exists {
		return "", RepositoryOperationError{Operation: commitOperationConstant}
	}
	return revision, nil
}

// TagRevision returns the commit a local tag points at. The boolean is false when the tag does not exist.
func (manager *RepositoryManager) TagRevision(executionContext context.Context, repositoryPath string, tagName string) (string, bool, error) {
	trimmedPath := strings.TrimSpace(repositoryPath)
	if len(trimmedPath) == 0 {
		return "", false, InvalidRepositoryInputError{FieldName: repositoryPathFieldNameConstant, Message: requiredValueMessageConstant}
	}
	trimmedTag := strings.TrimSpace(tagName)
	if len(trimmedTag) == 0 {
		return "", false, InvalidRepositoryInputError{FieldName: tagNameFieldNameConstant, Message: requiredValueMessageConstant}
	}

	executionResult, executionError := manager.run(executionContext, trimmedPath, nil,
		gitRevParseSubcommandConstant, gitVerifyFlagConstant, gitQuietFlagConstant, gitTagReferencePrefixConstant+trimmedTag+gitTagPeelSuffixConstant)
	if executionError != nil {
		return "", false, RepositoryOperationError{Operation: tagRevisionOperationConstant, Cause: executionError}
	}
	revision := strings.TrimSpace(executionResult.StandardOutput)
	if !executionResult.Succeeded() || len(revision) == 0 {
		return "", false, nil
	}
	return revision, true, nil
}

// CreateTag creates a lightweight tag on HEAD.
func (manager *RepositoryManager) CreateTag(executionContext context.Context, repositoryPath string, tagName string) error {
	trimmedPath := strings.TrimSpace(repositoryPath)
	if len(trimmedPath) == 0 {
		return InvalidRepositoryInputError{FieldName: repositoryPathFieldNameConstant, Message: requiredValueMessageConstant}
	}
	trimmedTag := strings.TrimSpace(tagName)
	if len(trimmedTag) == 0 {
		return InvalidRepositoryInputError{FieldName: tagNameFieldNameConstant, Message: requiredValueMessageConstant}
	}
	return manager.runRequired(executionContext, createTagOperationConstant, trimmedPath, nil, gitTagSubcommandConstant, trimmedTag)
}

func (manager *RepositoryManager) runRequired(executionContext context.Context, operation RepositoryOperationName, repositoryPath string, environmentVariables map[string]string, arguments ...string) error {
	executionResult, executionError := manager.run(executionContext, repositoryPath, environmentVariables, arguments...)
	if executionError != nil {
		return RepositoryOperationError{Operation: operation, Cause: executionError}
	}
	if failure := requireSuccess(arguments, executionResult); failure != nil {
		return RepositoryOperationError{Operation: operation, Cause: failure}
	}
	return nil
}
