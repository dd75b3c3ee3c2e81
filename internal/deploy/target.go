// Package deploy publishes a built directory to a branch of one or more remote repositories.
package deploy

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tyemirov/gitdeploy/internal/redaction"
)

const (
	// DefaultMessageTemplateConstant is used when a target does not configure a commit message.
	DefaultMessageTemplateConstant = "Built %sourceName% from commit %sourceCommit% on branch %sourceBranch%"

	nameFieldConstant                 = "name"
	branchFieldConstant               = "branch"
	remoteFieldConstant               = "remote"
	sourceFieldConstant               = "source"
	directoryFieldConstant            = "dir"
	credentialsFieldConstant          = "credentials"
	requiredValueMessageConstant      = "%s is required"
	duplicateNameMessageConstant      = "target name %q is used more than once"
	invalidBranchMessageConstant      = "branch %q is not a valid branch name"
	sourceMissingMessageConstant      = "source directory %s is not readable: %v"
	sourceNotDirectoryMessageConstant = "source %s is not a directory"
	overlapMessageConstant            = "dir %s must not overlap %s %s"
	usernameWithoutTokenMessage       = "credentials username is set without a token"
	credentialsTransportMessage       = "credentials require an http or https remote"
)

// Credentials authenticate pushes and fetches. They live in memory only.
type Credentials struct {
	Username string
	Token    string
}

// IsZero reports whether no credential is configured.
func (credentials Credentials) IsZero() bool {
	return len(strings.TrimSpace(credentials.Username)) == 0 && len(strings.TrimSpace(credentials.Token)) == 0
}

// Secrets lists the non-empty credential values for redaction.
func (credentials Credentials) Secrets() []string {
	secrets := make([]string, 0, 2)
	if trimmed := strings.TrimSpace(credentials.Username); len(trimmed) > 0 {
		secrets = append(secrets, trimmed)
	}
	if trimmed := strings.TrimSpace(credentials.Token); len(trimmed) > 0 {
		secrets = append(secrets, trimmed)
	}
	return secrets
}

// Author overrides the commit identity.
type Author struct {
	Name  string
	Email string
}

// Target is one resolved deploy unit. It is immutable once constructed.
type Target struct {
	Name                  string
	SourceDirectory       string
	WorkDirectory         string
	RemoteURL             string
	Branch                string
	MessageTemplate       string
	Commit                bool
	Push                  bool
	Force                 bool
	ConnectCommits        bool
	AllowUnresolvedTokens bool
	Tag                   string
	Author                Author
	Credentials           Credentials
}

// Redacted returns a copy that is safe to log or report.
func (target Target) Redacted() Target {
	redactor := redaction.NewRedactor(target.Credentials.Secrets()...)
	redacted := target
	redacted.RemoteURL = redactor.Redact(target.RemoteURL)
	redacted.WorkDirectory = redactor.Redact(target.WorkDirectory)
	redacted.SourceDirectory = redactor.Redact(target.SourceDirectory)
	redacted.MessageTemplate = redactor.Redact(target.MessageTemplate)
	if len(strings.TrimSpace(target.Credentials.Username)) > 0 {
		redacted.Credentials.Username = redaction.PlaceholderConstant
	}
	if len(strings.TrimSpace(target.Credentials.Token)) > 0 {
		redacted.Credentials.Token = redaction.PlaceholderConstant
	}
	return redacted
}

// String renders the target for diagnostics without credentials.
func (target Target) String() string {
	redacted := target.Redacted()
	return fmt.Sprintf("%s (%s %s -> %s)", redacted.Name, redacted.SourceDirectory, redacted.RemoteURL, redacted.Branch)
}

// pushKey identifies targets that publish the same branch from the same working copy.
func (target Target) pushKey() string {
	return filepath.Clean(target.WorkDirectory) + "\x00" + target.RemoteURL + "\x00" + target.Branch
}

// ValidateTargets checks every target against the source repository location and returns all
// problems joined. It touches the filesystem but never runs git.
func ValidateTargets(sourceRepository string, targets []Target, redactor redaction.Redactor) error {
	if len(targets) == 0 {
		return newTargetErrorMessage(ErrInvalidConfiguration, "", StageValidate, redactor, "no deploy targets configured")
	}

	sourceRoot := absolutePath(sourceRepository)
	seenNames := make(map[string]struct{}, len(targets))
	var problems []error
	for _, target := range targets {
		for _, problem := range validateTarget(sourceRoot, target) {
			problems = append(problems, newTargetErrorMessage(ErrInvalidConfiguration, target.Name, StageValidate, redactor, "%s", problem))
		}
		trimmedName := strings.TrimSpace(target.Name)
		if len(trimmedName) == 0 {
			continue
		}
		if _, duplicate := seenNames[trimmedName]; duplicate {
			problems = append(problems, newTargetErrorMessage(ErrInvalidConfiguration, target.Name, StageValidate, redactor, duplicateNameMessageConstant, trimmedName))
		}
		seenNames[trimmedName] = struct{}{}
	}
	return errors.Join(problems...)
}

func validateTarget(sourceRoot string, target Target) []string {
	var problems []string
	if len(strings.TrimSpace(target.Name)) == 0 {
		problems = append(problems, fmt.Sprintf(requiredValueMessageConstant, nameFieldConstant))
	}

	branch := strings.TrimSpace(target.Branch)
	switch {
	case len(branch) == 0:
		problems = append(problems, fmt.Sprintf(requiredValueMessageConstant, branchFieldConstant))
	case !validBranchName(branch):
		problems = append(problems, fmt.Sprintf(invalidBranchMessageConstant, branch))
	}

	remote := strings.TrimSpace(target.RemoteURL)
	if len(remote) == 0 {
		problems = append(problems, fmt.Sprintf(requiredValueMessageConstant, remoteFieldConstant))
	}

	if len(strings.TrimSpace(target.Credentials.Username)) > 0 && len(strings.TrimSpace(target.Credentials.Token)) == 0 {
		problems = append(problems, usernameWithoutTokenMessage)
	}
	if !target.Credentials.IsZero() && len(remote) > 0 && !isHTTPRemote(remote) {
		problems = append(problems, credentialsTransportMessage)
	}

	sourceDirectory := strings.TrimSpace(target.SourceDirectory)
	if len(sourceDirectory) == 0 {
		problems = append(problems, fmt.Sprintf(requiredValueMessageConstant, sourceFieldConstant))
	} else if sourceInfo, statError := os.Stat(sourceDirectory); statError != nil {
		problems = append(problems, fmt.Sprintf(sourceMissingMessageConstant, sourceDirectory, statError))
	} else if !sourceInfo.IsDir() {
		problems = append(problems, fmt.Sprintf(sourceNotDirectoryMessageConstant, sourceDirectory))
	}

	workDirectory := strings.TrimSpace(target.WorkDirectory)
	if len(workDirectory) == 0 {
		problems = append(problems, fmt.Sprintf(requiredValueMessageConstant, directoryFieldConstant))
		return problems
	}

	absoluteWorkDirectory := absolutePath(workDirectory)
	if len(sourceRoot) > 0 && (absoluteWorkDirectory == sourceRoot || isWithin(sourceRoot, absoluteWorkDirectory)) {
		problems = append(problems, fmt.Sprintf(overlapMessageConstant, workDirectory, "the source repository", sourceRoot))
	}
	if len(sourceDirectory) > 0 {
		absoluteSourceDirectory := absolutePath(sourceDirectory)
		if absoluteWorkDirectory == absoluteSourceDirectory ||
			isWithin(absoluteSourceDirectory, absoluteWorkDirectory) ||
			isWithin(absoluteWorkDirectory, absoluteSourceDirectory) {
			problems = append(problems, fmt.Sprintf(overlapMessageConstant, workDirectory, "source", sourceDirectory))
		}
	}
	return problems
}

// validBranchName applies the subset of git check-ref-format rules that matter for a branch.
func validBranchName(branch string) bool {
	if strings.HasPrefix(branch, "-") || strings.HasPrefix(branch, "/") || strings.HasSuffix(branch, "/") {
		return false
	}
	if strings.HasSuffix(branch, ".lock") || strings.HasSuffix(branch, ".") || branch == "@" {
		return false
	}
	if strings.Contains(branch, "..") || strings.Contains(branch, "//") || strings.Contains(branch, "@{") {
		return false
	}
	for _, character := range branch {
		if character <= ' ' || character == 0x7f || strings.ContainsRune("~^:?*[\\", character) {
			return false
		}
	}
	return true
}

func absolutePath(path string) string {
	trimmed := strings.TrimSpace(path)
	if len(trimmed) == 0 {
		return ""
	}
	absolute, absoluteError := filepath.Abs(trimmed)
	if absoluteError != nil {
		absolute = filepath.Clean(trimmed)
	}
	if resolved, resolveError := filepath.EvalSymlinks(absolute); resolveError == nil {
		return resolved
	}
	return absolute
}

// isWithin reports whether child lies strictly inside parent.
func isWithin(child string, parent string) bool {
	relative, relativeError := filepath.Rel(parent, child)
	if relativeError != nil {
		return false
	}
	return relative != "." && relative != ".." && !strings.HasPrefix(relative, ".."+string(filepath.Separator))
}
