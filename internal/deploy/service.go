package deploy

import (
	"context"
	"errors"
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
	gitExecutorMissingMessageConstant = "git executor not configured"
	deployStartedMessage              = "deploy started"
	targetFinishedMessage             = "target finished"
	targetFailedMessage               = "target failed"
	sourceMetadataMessage             = "source repository metadata unavailable"
	runIdentifierLogFieldConstant     = "run_id"
	targetCountLogFieldConstant       = "targets"
	errorKindLogFieldConstant         = "error_kind"
	stageLogFieldConstant             = "stage"
	durationLogFieldConstant          = "duration"
	sourceDirtyMessageConstant        = "source repository %s has uncommitted changes; connect_commits requires a clean source"
	pushDisabledMessageConstant       = "push disabled"
	pushDeferredMessageTemplate       = "push deferred to target %s"
	pushAbandonedMessageTemplate      = "not published: push was deferred to target %s, which failed at %s"
	pushNothingMessageConstant        = "branch has no commits to push"
)

// ErrGitExecutorNotConfigured indicates the git executor dependency was missing.
var ErrGitExecutorNotConfigured = errors.New(gitExecutorMissingMessageConstant)

// ServiceDependencies enumerates collaborators required by the service.
type ServiceDependencies struct {
	GitExecutor gitrepo.GitCommandExecutor
	FileSystem  afero.Fs
	Logger      *zap.Logger
	Reporter    *Reporter
	Metrics     *Metrics
	Redactor    redaction.Redactor
	Clock       func() time.Time
}

// Request describes one deploy invocation.
type Request struct {
	SourceRepository string
	RunID            string
	Targets          []Target
}

// Outcome is the redacted result of deploying one target.
type Outcome struct {
	Target          Target
	Success         bool
	Message         string
	ErrorKind       ErrorKind
	Stage           Stage
	Revision        string
	Committed       bool
	NothingToCommit bool
	Pushed          bool
	PushDeferred    bool
	Duration        time.Duration
	Err             error
}

// Result holds the outcomes of an invocation in target order.
type Result struct {
	RunID    string
	Outcomes []Outcome
}

// Failed returns the outcomes that did not succeed.
func (result Result) Failed() []Outcome {
	failed := make([]Outcome, 0)
	for _, outcome := range result.Outcomes {
		if !outcome.Success {
			failed = append(failed, outcome)
		}
	}
	return failed
}

// Err joins the errors of all failed targets, or returns nil when every target succeeded.
func (result Result) Err() error {
	var failures []error
	for _, outcome := range result.Failed() {
		failures = append(failures, outcome.Err)
	}
	return errors.Join(failures...)
}

// Service deploys targets one after another and reports every outcome.
type Service struct {
	executor   gitrepo.GitCommandExecutor
	fileSystem afero.Fs
	logger     *zap.Logger
	reporter   *Reporter
	metrics    *Metrics
	redactor   redaction.Redactor
	now        func() time.Time
}

// NewService constructs a Service from the provided dependencies.
func NewService(dependencies ServiceDependencies) (*Service, error) {
	if dependencies.GitExecutor == nil {
		return nil, ErrGitExecutorNotConfigured
	}
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	fileSystem := dependencies.FileSystem
	if fileSystem == nil {
		fileSystem = afero.NewOsFs()
	}
	clock := dependencies.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		executor:   dependencies.GitExecutor,
		fileSystem: fileSystem,
		logger:     logger,
		reporter:   dependencies.Reporter,
		metrics:    dependencies.Metrics,
		redactor:   dependencies.Redactor,
		now:        clock,
	}, nil
}

// targetRun bundles the collaborators of one invocation.
type targetRun struct {
	request      Request
	source       SourceMetadata
	sourceDirty  bool
	redactor     redaction.Redactor
	logger       *zap.Logger
	materializer *Materializer
	composer     *Composer
	publisher    *Publisher
	pendingTags  map[string][]string
}

// Deploy validates every target, then materializes, commits and publishes each one in order.
// An invalid configuration aborts before any git command runs. Runtime failures are recorded in
// the failing target's outcome and never stop later targets.
func (service *Service) Deploy(executionContext context.Context, request Request) (Result, error) {
	redactor := service.redactor
	for _, target := range request.Targets {
		redactor = redactor.With(target.Credentials.Secrets()...)
	}
	logger := redaction.WrapLogger(service.logger, redactor)
	if len(strings.TrimSpace(request.RunID)) > 0 {
		logger = logger.With(zap.String(runIdentifierLogFieldConstant, request.RunID))
	}

	result := Result{RunID: request.RunID}
	if validationError := ValidateTargets(request.SourceRepository, request.Targets, redactor); validationError != nil {
		return result, validationError
	}

	repositoryManager, managerError := gitrepo.NewRepositoryManager(service.executor)
	if managerError != nil {
		return result, managerError
	}

	run := &targetRun{
		request:      request,
		redactor:     redactor,
		logger:       logger,
		materializer: NewMaterializer(repositoryManager, service.fileSystem, logger, service.now),
		composer:     NewComposer(repositoryManager, NewContentSynchronizer(service.fileSystem), logger),
		publisher:    NewPublisher(service.executor, logger),
		pendingTags:  make(map[string][]string),
	}
	run.source, run.sourceDirty = service.inspectSource(executionContext, repositoryManager, request.SourceRepository, logger)

	logger.Info(deployStartedMessage, zap.Int(targetCountLogFieldConstant, len(request.Targets)))

	deferredTo := pushDeferrals(request.Targets)
	held := make(map[int][]int)
	for index, target := range request.Targets {
		outcome := service.deployTarget(executionContext, run, target, deferredTo[index])
		service.logOutcome(logger, outcome)
		result.Outcomes = append(result.Outcomes, outcome)
		if outcome.Success && outcome.PushDeferred {
			held[deferredTo[index]] = append(held[deferredTo[index]], index)
			continue
		}
		for _, heldIndex := range held[index] {
			if !outcome.Success {
				result.Outcomes[heldIndex] = service.abandonDeferredPush(run, result.Outcomes[heldIndex], outcome)
				service.logOutcome(logger, result.Outcomes[heldIndex])
			}
			service.record(result.Outcomes[heldIndex])
		}
		delete(held, index)
		service.record(outcome)
	}
	return result, nil
}

func (service *Service) logOutcome(logger *zap.Logger, outcome Outcome) {
	if outcome.Success {
		logger.Info(targetFinishedMessage,
			zap.String(targetLogFieldConstant, outcome.Target.Name),
			zap.Duration(durationLogFieldConstant, outcome.Duration),
		)
		return
	}
	logger.Warn(targetFailedMessage,
		zap.String(targetLogFieldConstant, outcome.Target.Name),
		zap.String(errorKindLogFieldConstant, string(outcome.ErrorKind)),
		zap.String(stageLogFieldConstant, string(outcome.Stage)),
		zap.Error(outcome.Err),
	)
}

func (service *Service) record(outcome Outcome) {
	service.reporter.RecordOutcome(outcome)
	service.metrics.ObserveOutcome(outcome)
}

// abandonDeferredPush fails a target whose deferred push never ran because the pushing target failed.
func (service *Service) abandonDeferredPush(run *targetRun, deferred Outcome, pusher Outcome) Outcome {
	kind := pusher.ErrorKind
	if len(kind) == 0 {
		kind = ErrSubprocessFailure
	}
	failure := newTargetErrorMessage(kind, deferred.Target.Name, StagePublish, run.redactor, pushAbandonedMessageTemplate, pusher.Target.Name, pusher.Stage)
	deferred.Success = false
	deferred.PushDeferred = false
	deferred.Stage = StagePublish
	deferred.ErrorKind = kind
	deferred.Err = failure
	deferred.Message = failure.Error()
	service.report(run, EventLevelError, EventCodeFailed, deferred.Target, deferred.Message, map[string]string{
		"error": string(kind),
		"stage": string(StagePublish),
	})
	return deferred
}

func (service *Service) deployTarget(executionContext context.Context, run *targetRun, target Target, deferredTo int) Outcome {
	startTime := service.now()
	outcome := Outcome{Target: target.Redacted(), Stage: StageMaterialize}
	finish := func() Outcome {
		outcome.Duration = service.now().Sub(startTime)
		return outcome
	}
	fail := func(stage Stage, failure error) Outcome {
		outcome.Stage = stage
		outcome.Success = false
		outcome.ErrorKind = KindOf(failure)
		var targetError TargetError
		if !errors.As(failure, &targetError) {
			targetError = newTargetError(ErrSubprocessFailure, target.Name, stage, run.redactor, failure)
			outcome.ErrorKind = ErrSubprocessFailure
		}
		outcome.Err = targetError
		outcome.Message = targetError.Error()
		service.report(run, EventLevelError, EventCodeFailed, target, outcome.Message, map[string]string{
			"error": string(outcome.ErrorKind),
			"stage": string(stage),
		})
		return finish()
	}

	if target.ConnectCommits && run.sourceDirty {
		return fail(StageValidate, newTargetErrorMessage(ErrInvalidConfiguration, target.Name, StageValidate, run.redactor, sourceDirtyMessageConstant, run.request.SourceRepository))
	}

	authEnvironment, environmentError := AuthEnvironment(target.RemoteURL, target.Credentials)
	if environmentError != nil {
		return fail(StageValidate, newTargetError(ErrInvalidConfiguration, target.Name, StageValidate, run.redactor, environmentError))
	}

	materialized, materializeError := run.materializer.Materialize(executionContext, target, authEnvironment, target.Push, run.redactor)
	if materializeError != nil {
		return fail(StageMaterialize, materializeError)
	}
	service.report(run, EventLevelInfo, EventCodeMaterialized, target, fmt.Sprintf("%s ready in %s (%s)", target.Branch, target.WorkDirectory, materialized.Source), map[string]string{
		"branch":      target.Branch,
		"source":      string(materialized.Source),
		"initialized": fmt.Sprintf("%t", materialized.Initialized),
		"rebuilt":     fmt.Sprintf("%t", materialized.Rebuilt),
	})

	outcome.Stage = StageCommit
	messageContext := MessageContext{
		Source:       run.source,
		TargetName:   target.Name,
		TargetBranch: target.Branch,
		RunID:        run.request.RunID,
		Timestamp:    service.now(),
	}
	committed, commitError := run.composer.StageAndCommit(executionContext, target, messageContext, run.redactor)
	if commitError != nil {
		return fail(StageCommit, commitError)
	}
	outcome.Revision = committed.Revision
	outcome.Committed = committed.Committed
	outcome.NothingToCommit = committed.NothingToCommit
	switch {
	case committed.Committed:
		outcome.Message = fmt.Sprintf("committed %s", shortRevision(committed.Revision))
		service.report(run, EventLevelInfo, EventCodeCommitted, target, fmt.Sprintf("%s %s", shortRevision(committed.Revision), firstLine(committed.Message)), map[string]string{"revision": committed.Revision})
	case committed.NothingToCommit:
		outcome.Message = string(ErrNothingToCommit)
		service.report(run, EventLevelInfo, EventCodeNothingToCommit, target, "no changes since "+shortRevision(committed.Revision), nil)
	default:
		outcome.Message = "changes staged"
		service.report(run, EventLevelInfo, EventCodeStaged, target, "changes staged, commit disabled", nil)
	}

	outcome.Stage = StagePublish
	key := target.pushKey()
	if len(committed.Tag) > 0 {
		run.pendingTags[key] = append(run.pendingTags[key], committed.Tag)
	}
	switch {
	case !target.Push:
		service.report(run, EventLevelInfo, EventCodePushSkipped, target, pushDisabledMessageConstant, nil)
		outcome.Success = true
		return finish()
	case deferredTo >= 0:
		outcome.PushDeferred = true
		service.report(run, EventLevelInfo, EventCodePushDeferred, target, fmt.Sprintf(pushDeferredMessageTemplate, run.request.Targets[deferredTo].Name), nil)
		outcome.Success = true
		return finish()
	case len(committed.Revision) == 0:
		service.report(run, EventLevelWarn, EventCodePushSkipped, target, pushNothingMessageConstant, nil)
		outcome.Success = true
		return finish()
	}

	published, publishError := run.publisher.Publish(executionContext, target, authEnvironment, run.pendingTags[key], run.redactor)
	if publishError != nil {
		return fail(StagePublish, publishError)
	}
	delete(run.pendingTags, key)
	outcome.Pushed = published.Pushed
	outcome.Message = strings.TrimSpace(outcome.Message + ", pushed")
	service.report(run, EventLevelInfo, EventCodePushed, target, fmt.Sprintf("%s -> %s", target.RemoteURL, target.Branch), map[string]string{"remote": target.RemoteURL})
	outcome.Success = true
	return finish()
}

func (service *Service) report(run *targetRun, level EventLevel, code string, target Target, message string, details map[string]string) {
	service.reporter.Report(Event{
		Timestamp: service.now(),
		Level:     level,
		Code:      code,
		Target:    target.Name,
		Message:   run.redactor.Redact(message),
		Details:   details,
	})
}

// inspectSource resolves the metadata used by commit message tokens. A source that is not a git
// working copy yields metadata with only the name set.
func (service *Service) inspectSource(executionContext context.Context, repositoryManager *gitrepo.RepositoryManager, sourceRepository string, logger *zap.Logger) (SourceMetadata, bool) {
	trimmedSource := strings.TrimSpace(sourceRepository)
	if len(trimmedSource) == 0 {
		trimmedSource = "."
	}
	metadata := SourceMetadata{Name: filepath.Base(absolutePath(trimmedSource))}

	root, rootError := repositoryManager.RepositoryRoot(executionContext, trimmedSource)
	if rootError != nil {
		logger.Debug(sourceMetadataMessage, zap.Error(rootError))
		return metadata, false
	}
	metadata.Name = filepath.Base(root)

	if revision, exists, revisionError := repositoryManager.HeadRevision(executionContext, root); revisionError == nil && exists {
		metadata.Commit = revision
	}
	if branch, branchError := repositoryManager.GetCurrentBranch(executionContext, root); branchError == nil {
		metadata.Branch = branch
	}
	dirty, statusError := repositoryManager.HasUncommittedChanges(executionContext, root)
	if statusError != nil {
		return metadata, false
	}
	return metadata, dirty
}

// pushDeferrals maps every target index to the index of the last later target that pushes the same
// branch from the same working copy, or -1 when the target publishes its own state.
func pushDeferrals(targets []Target) []int {
	deferredTo := make([]int, len(targets))
	lastPusher := make(map[string]int)
	for index := len(targets) - 1; index >= 0; index-- {
		deferredTo[index] = -1
		if !targets[index].Push {
			continue
		}
		key := targets[index].pushKey()
		if later, exists := lastPusher[key]; exists {
			deferredTo[index] = later
			continue
		}
		lastPusher[key] = index
	}
	return deferredTo
}

func shortRevision(revision string) string {
	if len(revision) <= shortCommitLengthConstant {
		return revision
	}
	return revision[:shortCommitLengthConstant]
}

func firstLine(text string) string {
	line, _, _ := strings.Cut(text, "\n")
	return line
}
