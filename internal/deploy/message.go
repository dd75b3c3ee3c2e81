package deploy

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

const (
	sourceNameTokenConstant       = "sourceName"
	sourceCommitTokenConstant     = "sourceCommit"
	sourceCommitFullTokenConstant = "sourceCommitFull"
	sourceBranchTokenConstant     = "sourceBranch"
	targetBranchTokenConstant     = "targetBranch"
	targetNameTokenConstant       = "targetName"
	timestampTokenConstant        = "timestamp"
	runIdentifierTokenConstant    = "runId"
	unresolvedTokenValueConstant  = "unknown"
	shortCommitLengthConstant     = 7
)

var messageTokenPattern = regexp.MustCompile(`%([A-Za-z]+)%`)

// SourceMetadata describes the repository whose build output is deployed.
// Fields are empty when the source is not a git working copy.
type SourceMetadata struct {
	Name   string
	Commit string
	Branch string
}

// ShortCommit returns the abbreviated commit hash.
func (metadata SourceMetadata) ShortCommit() string {
	if len(metadata.Commit) <= shortCommitLengthConstant {
		return metadata.Commit
	}
	return metadata.Commit[:shortCommitLengthConstant]
}

// MessageContext carries the values available to commit message tokens.
type MessageContext struct {
	Source       SourceMetadata
	TargetName   string
	TargetBranch string
	RunID        string
	Timestamp    time.Time
}

// UnresolvedTokensError lists tokens that had no value.
type UnresolvedTokensError struct {
	Tokens []string
}

// Error describes the unresolved tokens.
func (unresolvedError UnresolvedTokensError) Error() string {
	return fmt.Sprintf("commit message tokens could not be resolved: %s", strings.Join(unresolvedError.Tokens, ", "))
}

func (messageContext MessageContext) values() map[string]string {
	timestamp := ""
	if !messageContext.Timestamp.IsZero() {
		timestamp = messageContext.Timestamp.UTC().Format(time.RFC3339)
	}
	return map[string]string{
		sourceNameTokenConstant:       messageContext.Source.Name,
		sourceCommitTokenConstant:     messageContext.Source.ShortCommit(),
		sourceCommitFullTokenConstant: messageContext.Source.Commit,
		sourceBranchTokenConstant:     messageContext.Source.Branch,
		targetBranchTokenConstant:     messageContext.TargetBranch,
		targetNameTokenConstant:       messageContext.TargetName,
		timestampTokenConstant:        timestamp,
		runIdentifierTokenConstant:    messageContext.RunID,
	}
}

// RenderMessage substitutes %token% placeholders in template. Unknown tokens and tokens without a
// value are errors unless allowUnresolved is set, in which case they render as "unknown".
func RenderMessage(template string, messageContext MessageContext, allowUnresolved bool) (string, error) {
	if len(strings.TrimSpace(template)) == 0 {
		template = DefaultMessageTemplateConstant
	}

	values := messageContext.values()
	unresolved := make(map[string]struct{})
	rendered := messageTokenPattern.ReplaceAllStringFunc(template, func(placeholder string) string {
		name := placeholder[1 : len(placeholder)-1]
		if value, known := values[name]; known && len(strings.TrimSpace(value)) > 0 {
			return value
		}
		unresolved[name] = struct{}{}
		return unresolvedTokenValueConstant
	})

	if len(unresolved) > 0 && !allowUnresolved {
		tokens := make([]string, 0, len(unresolved))
		for name := range unresolved {
			tokens = append(tokens, "%"+name+"%")
		}
		sort.Strings(tokens)
		return "", UnresolvedTokensError{Tokens: tokens}
	}

	rendered = strings.TrimSpace(rendered)
	if len(rendered) == 0 {
		return "", errors.New("commit message is empty")
	}
	return rendered, nil
}
