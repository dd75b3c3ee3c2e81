package deploy

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/tyemirov/gitdeploy/internal/gitrepo"
	"github.com/tyemirov/gitdeploy/internal/redaction"
)

const (
	gitMetadataDirectoryConstant     = ".git"
	corruptMetadataSuffixConstant    = ".corrupt-%d.git"
	replacedMetadataSuffixConstant   = ".replaced-%d.git"
	workDirectoryPermissionsConstant = 0o755
	workingCopyInitializedMessage    = "initialized working copy"
	workingCopyRebuiltMessage        = "moved unusable working copy metadata aside"
	workingCopyRemoteMismatchMessage = "working copy points at a different remote"
	workingCopyRemoteScrubbedMessage = "removed credentials from working copy remote"
	schemeSeparatorConstant          = "://"
	branchCheckedOutMessage          = "checked out existing branch"
	branchTrackedMessage             = "created branch from remote"
	branchOrphanedMessage            = "created orphan branch"
	branchFastForwardedMessage       = "fast-forwarded branch to remote"
	workDirectoryLogFieldConstant    = "work_dir"
	branchLogFieldConstant           = "branch"
	targetLogFieldConstant           = "target"
	movedToLogFieldConstant          = "moved_to"
	remoteLogFieldConstant           = "remote"
	configuredRemoteLogFieldConstant = "configured_remote"
)

// BranchSource describes where the checked out branch came from.
type BranchSource string

// Branch sources.
const (
	BranchSourceLocal  BranchSource = "local"
	BranchSourceRemote BranchSource = "remote"
	BranchSourceOrphan BranchSource = "orphan"
)

// MaterializeResult describes the working copy after materialization.
type MaterializeResult struct {
	WorkDirectory      string
	Branch             string
	Initialized        bool
	Rebuilt            bool
	RemoteBranchExists bool
	Source             BranchSource
}

// Materializer brings a working copy to the point where the target branch is checked out.
// It never deletes a working copy: unusable metadata is moved next to the work directory
// and the copy is reinitialized.
type Materializer struct {
	repositoryManager *gitrepo.RepositoryManager
	fileSystem        afero.Fs
	logger            *zap.Logger
	now               func() time.Time
}

// NewMaterializer constructs a Materializer.
func NewMaterializer(repositoryManager *gitrepo.RepositoryManager, fileSystem afero.Fs, logger *zap.Logger, now func() time.Time) *Materializer {
	if fileSystem == nil {
		fileSystem = afero.NewOsFs()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &Materializer{repositoryManager: repositoryManager, fileSystem: fileSystem, logger: logger, now: now}
}

// Materialize prepares target.WorkDirectory with target.Branch checked out.
// When networkAllowed is false the remote is never contacted and the branch is resolved from local state.
func (materializer *Materializer) Materialize(executionContext context.Context, target Target, authEnvironment map[string]string, networkAllowed bool, redactor redaction.Redactor) (MaterializeResult, error) {
	workDirectory := target.WorkDirectory
	result := MaterializeResult{WorkDirectory: workDirectory, Branch: target.Branch}
	fail := func(kind ErrorKind, cause error) (MaterializeResult, error) {
		return result, newTargetError(kind, target.Name, StageMaterialize, redactor, cause)
	}

	state, probeError := materializer.repositoryManager.ProbeWorkingCopy(executionContext, workDirectory)
	if probeError != nil {
		return fail(ErrSubprocessFailure, probeError)
	}

	if state == gitrepo.WorkingCopyValid {
		configuredRemote, remoteError := materializer.repositoryManager.GetRemoteURL(executionContext, workDirectory, OriginRemoteNameConstant)
		configuredRemote = strings.TrimSpace(configuredRemote)
		if remoteError == nil && configuredRemote != target.RemoteURL && sameRemoteWithoutCredentials(configuredRemote, target.RemoteURL) {
			if setError := materializer.repositoryManager.SetRemoteURL(executionContext, workDirectory, OriginRemoteNameConstant, target.RemoteURL); setError != nil {
				return fail(ErrWorkingCopyCorrupt, setError)
			}
			materializer.logger.Info(workingCopyRemoteScrubbedMessage,
				zap.String(targetLogFieldConstant, target.Name),
				zap.String(workDirectoryLogFieldConstant, workDirectory),
			)
			configuredRemote = target.RemoteURL
		}
		if remoteError != nil || configuredRemote != target.RemoteURL {
			materializer.logger.Warn(workingCopyRemoteMismatchMessage,
				zap.String(targetLogFieldConstant, target.Name),
				zap.String(workDirectoryLogFieldConstant, workDirectory),
				zap.String(remoteLogFieldConstant, target.RemoteURL),
				zap.String(configuredRemoteLogFieldConstant, configuredRemote),
			)
			if moveError := materializer.moveMetadataAside(target, replacedMetadataSuffixConstant); moveError != nil {
				return fail(ErrWorkingCopyCorrupt, moveError)
			}
			state = gitrepo.WorkingCopyAbsent
			result.Rebuilt = true
		}
	}

	if state == gitrepo.WorkingCopyCorrupt {
		if moveError := materializer.moveMetadataAside(target, corruptMetadataSuffixConstant); moveError != nil {
			return fail(ErrWorkingCopyCorrupt, moveError)
		}
		state = gitrepo.WorkingCopyAbsent
		result.Rebuilt = true
	}

	if state == gitrepo.WorkingCopyAbsent {
		if initError := materializer.initialize(executionContext, target); initError != nil {
			kind := ErrSubprocessFailure
			if result.Rebuilt {
				kind = ErrWorkingCopyCorrupt
			}
			return fail(kind, initError)
		}
		result.Initialized = true
		materializer.logger.Info(workingCopyInitializedMessage,
			zap.String(targetLogFieldConstant, target.Name),
			zap.String(workDirectoryLogFieldConstant, workDirectory),
		)
	}

	if networkAllowed {
		presence, presenceError := materializer.repositoryManager.RemoteBranchState(executionContext, workDirectory, AuthRemoteNameConstant, target.Branch, authEnvironment)
		if presenceError != nil {
			return fail(ErrRemoteUnreachable, presenceError)
		}
		if presence == gitrepo.RemoteBranchPresent {
			if fetchError := materializer.repositoryManager.FetchBranch(executionContext, workDirectory, AuthRemoteNameConstant, OriginRemoteNameConstant, target.Branch, authEnvironment); fetchError != nil {
				return fail(ErrRemoteUnreachable, fetchError)
			}
			result.RemoteBranchExists = true
		}
	}

	source, branchError := materializer.resolveBranch(executionContext, target, result.RemoteBranchExists)
	if branchError != nil {
		return fail(ErrSubprocessFailure, branchError)
	}
	result.Source = source
	return result, nil
}

// sameRemoteWithoutCredentials reports whether configuredRemote is remoteURL with a userinfo part.
// The configured URL may arrive with its userinfo already redacted, so it is compared textually.
func sameRemoteWithoutCredentials(configuredRemote string, remoteURL string) bool {
	schemeEnd := strings.Index(configuredRemote, schemeSeparatorConstant)
	if schemeEnd < 0 {
		return false
	}
	authority := configuredRemote[schemeEnd+len(schemeSeparatorConstant):]
	if hostEnd := strings.IndexAny(authority, "/?#"); hostEnd >= 0 {
		authority = authority[:hostEnd]
	}
	userinfoEnd := strings.LastIndex(authority, "@")
	if userinfoEnd < 0 {
		return false
	}
	userinfoStart := schemeEnd + len(schemeSeparatorConstant)
	return configuredRemote[:userinfoStart]+configuredRemote[userinfoStart+userinfoEnd+1:] == remoteURL
}

func (materializer *Materializer) initialize(executionContext context.Context, target Target) error {
	if mkdirError := materializer.fileSystem.MkdirAll(target.WorkDirectory, workDirectoryPermissionsConstant); mkdirError != nil {
		return mkdirError
	}
	if initError := materializer.repositoryManager.InitRepository(executionContext, target.WorkDirectory); initError != nil {
		return initError
	}
	return materializer.repositoryManager.AddRemote(executionContext, target.WorkDirectory, OriginRemoteNameConstant, target.RemoteURL)
}

// resolveBranch checks out the branch from local state, the fetched remote branch, or as an orphan.
func (materializer *Materializer) resolveBranch(executionContext context.Context, target Target, remoteBranchExists bool) (BranchSource, error) {
	workDirectory := target.WorkDirectory
	trackingReference := gitrepo.RemoteTrackingReference(OriginRemoteNameConstant, target.Branch)
	fields := []zap.Field{
		zap.String(targetLogFieldConstant, target.Name),
		zap.String(branchLogFieldConstant, target.Branch),
	}

	localBranchExists, localError := materializer.repositoryManager.HasLocalBranch(executionContext, workDirectory, target.Branch)
	if localError != nil {
		return "", localError
	}

	if localBranchExists {
		currentBranch, currentError := materializer.repositoryManager.GetCurrentBranch(executionContext, workDirectory)
		if currentError != nil {
			return "", currentError
		}
		if currentBranch != target.Branch {
			if checkoutError := materializer.repositoryManager.CheckoutBranch(executionContext, workDirectory, target.Branch); checkoutError != nil {
				return "", checkoutError
			}
		}
		materializer.logger.Info(branchCheckedOutMessage, fields...)
		if target.ConnectCommits && remoteBranchExists {
			if mergeError := materializer.repositoryManager.FastForward(executionContext, workDirectory, trackingReference); mergeError != nil {
				return "", mergeError
			}
			materializer.logger.Info(branchFastForwardedMessage, fields...)
		}
		return BranchSourceLocal, nil
	}

	if remoteBranchExists {
		if createError := materializer.repositoryManager.CreateBranch(executionContext, workDirectory, target.Branch, trackingReference); createError != nil {
			return "", createError
		}
		materializer.logger.Info(branchTrackedMessage, fields...)
		return BranchSourceRemote, nil
	}

	_, hasCommits, headError := materializer.repositoryManager.HeadRevision(executionContext, workDirectory)
	if headError != nil {
		return "", headError
	}
	if hasCommits {
		if orphanError := materializer.repositoryManager.CreateOrphanBranch(executionContext, workDirectory, target.Branch); orphanError != nil {
			return "", orphanError
		}
	} else if pointError := materializer.repositoryManager.PointHead(executionContext, workDirectory, target.Branch); pointError != nil {
		return "", pointError
	}
	materializer.logger.Info(branchOrphanedMessage, fields...)
	return BranchSourceOrphan, nil
}

func (materializer *Materializer) moveMetadataAside(target Target, suffixTemplate string) error {
	metadataPath := filepath.Join(target.WorkDirectory, gitMetadataDirectoryConstant)
	movedPath := filepath.Clean(target.WorkDirectory) + fmt.Sprintf(suffixTemplate, materializer.now().Unix())
	if renameError := materializer.fileSystem.Rename(metadataPath, movedPath); renameError != nil {
		return renameError
	}
	materializer.logger.Warn(workingCopyRebuiltMessage,
		zap.String(targetLogFieldConstant, target.Name),
		zap.String(workDirectoryLogFieldConstant, target.WorkDirectory),
		zap.String(movedToLogFieldConstant, movedPath),
	)
	return nil
}
