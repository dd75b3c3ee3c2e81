package deploy

import (
	"errors"
	"fmt"

	"github.com/tyemirov/gitdeploy/internal/redaction"
)

// ErrorKind is a stable error code shared by every deploy stage.
type ErrorKind string

// Error returns the kind code.
func (kind ErrorKind) Error() string {
	return string(kind)
}

// Code exposes the kind code string.
func (kind ErrorKind) Code() string {
	return string(kind)
}

var (
	// ErrRemoteUnreachable indicates fetch, probe or push failed to reach or authenticate with the remote.
	ErrRemoteUnreachable ErrorKind = "remote_unreachable"
	// ErrWorkingCopyCorrupt indicates the working copy could not be used or rebuilt.
	ErrWorkingCopyCorrupt ErrorKind = "working_copy_corrupt"
	// ErrNothingToCommit marks a deploy whose staged tree matches the branch tip. It is not a failure.
	ErrNothingToCommit ErrorKind = "nothing_to_commit"
	// ErrInvalidConfiguration indicates a target that cannot be deployed as configured.
	ErrInvalidConfiguration ErrorKind = "invalid_configuration"
	// ErrSubprocessFailure indicates a git command that had to succeed exited non-zero.
	ErrSubprocessFailure ErrorKind = "subprocess_failure"
)

// Stage names the deploy step that produced an outcome or error.
type Stage string

// Deploy stages in execution order.
const (
	StageValidate    Stage = "validate"
	StageMaterialize Stage = "materialize"
	StageCommit      Stage = "commit"
	StagePublish     Stage = "publish"
)

// TargetError annotates a deploy failure with its kind, target name and stage.
// The rendered message never contains credentials.
type TargetError struct {
	kind    ErrorKind
	target  string
	stage   Stage
	message string
}

// newTargetError keeps only the redacted text of cause.
func newTargetError(kind ErrorKind, target string, stage Stage, redactor redaction.Redactor, cause error) TargetError {
	message := ""
	if cause != nil {
		message = redactor.Redact(cause.Error())
	}
	return TargetError{kind: kind, target: target, stage: stage, message: message}
}

func newTargetErrorMessage(kind ErrorKind, target string, stage Stage, redactor redaction.Redactor, format string, arguments ...any) TargetError {
	return TargetError{kind: kind, target: target, stage: stage, message: redactor.Redact(fmt.Sprintf(format, arguments...))}
}

// Error implements the error interface.
func (targetError TargetError) Error() string {
	if len(targetError.message) == 0 {
		return fmt.Sprintf("%s[%s] %s", targetError.stage, targetError.target, targetError.kind)
	}
	return fmt.Sprintf("%s[%s] %s: %s", targetError.stage, targetError.target, targetError.kind, targetError.message)
}

// Is matches the error kind.
func (targetError TargetError) Is(target error) bool {
	var kind ErrorKind
	if errors.As(target, &kind) {
		return kind == targetError.kind
	}
	return false
}

// Kind returns the error kind.
func (targetError TargetError) Kind() ErrorKind {
	return targetError.kind
}

// Target returns the target name.
func (targetError TargetError) Target() string {
	return targetError.target
}

// Stage returns the stage that failed.
func (targetError TargetError) Stage() Stage {
	return targetError.stage
}

// Message returns the redacted failure detail.
func (targetError TargetError) Message() string {
	return targetError.message
}

// KindOf extracts the ErrorKind carried by err, or an empty kind.
func KindOf(err error) ErrorKind {
	var targetError TargetError
	if errors.As(err, &targetError) {
		return targetError.kind
	}
	var kind ErrorKind
	if errors.As(err, &kind) {
		return kind
	}
	return ""
}
