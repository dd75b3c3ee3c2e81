package deploy

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tyemirov/gitdeploy/internal/redaction"
)

const (
	defaultSourceRepositoryConstant    = "."
	defaultWorkRootDirectoryConstant   = "gitdeploy"
	unknownTargetsMessageTemplate      = "unknown target(s) %s; configured targets: %s"
	noTargetsConfiguredMessageConstant = "no deploy targets configured"
	environmentUnsetMessageTemplate    = "credentials.%s names %s, which is not set"
	workRootUnavailableMessageTemplate = "dir is not set and no cache directory is available: %v"
	usernameEnvironmentFieldConstant   = "username_env"
	tokenEnvironmentFieldConstant      = "token_env"
)

var workDirectoryNameSanitizer = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// EnvironmentLookup resolves environment variables, as os.LookupEnv does.
type EnvironmentLookup func(string) (string, bool)

// CommandConfiguration captures the persisted deploy settings.
type CommandConfiguration struct {
	SourceRepository string                `mapstructure:"source_repository"`
	MetricsFile      string                `mapstructure:"metrics_file"`
	Targets          []TargetConfiguration `mapstructure:"targets"`
}

// TargetConfiguration is one configured target before credentials and defaults are resolved.
type TargetConfiguration struct {
	Name                  string                   `mapstructure:"name"`
	Remote                string                   `mapstructure:"remote"`
	Branch                string                   `mapstructure:"branch"`
	Source                string                   `mapstructure:"source"`
	Directory             string                   `mapstructure:"dir"`
	Commit                *bool                    `mapstructure:"commit"`
	Push                  *bool                    `mapstructure:"push"`
	Force                 bool                     `mapstructure:"force"`
	ConnectCommits        bool                     `mapstructure:"connect_commits"`
	Message               string                   `mapstructure:"message"`
	AllowUnresolvedTokens bool                     `mapstructure:"allow_unresolved_tokens"`
	Tag                   string                   `mapstructure:"tag"`
	Author                AuthorConfiguration      `mapstructure:"author"`
	Credentials           CredentialsConfiguration `mapstructure:"credentials"`
}

// AuthorConfiguration overrides the commit identity.
type AuthorConfiguration struct {
	Name  string `mapstructure:"name"`
	Email string `mapstructure:"email"`
}

// CredentialsConfiguration names the environment variables holding credentials.
type CredentialsConfiguration struct {
	UsernameEnvironment string `mapstructure:"username_env"`
	TokenEnvironment    string `mapstructure:"token_env"`
}

// TargetOverrides are invocation-wide switches applied on top of the configuration.
type TargetOverrides struct {
	Names    []string
	NoPush   bool
	NoCommit bool
}

// DefaultCommandConfiguration returns the baseline deploy configuration.
func DefaultCommandConfiguration() CommandConfiguration {
	return CommandConfiguration{SourceRepository: defaultSourceRepositoryConstant}
}

// Sanitize trims whitespace and applies defaults to unset values.
func (configuration CommandConfiguration) Sanitize() CommandConfiguration {
	sanitized := configuration
	sanitized.SourceRepository = strings.TrimSpace(configuration.SourceRepository)
	if len(sanitized.SourceRepository) == 0 {
		sanitized.SourceRepository = defaultSourceRepositoryConstant
	}
	sanitized.MetricsFile = strings.TrimSpace(configuration.MetricsFile)
	sanitized.Targets = make([]TargetConfiguration, 0, len(configuration.Targets))
	for _, target := range configuration.Targets {
		target.Name = strings.TrimSpace(target.Name)
		target.Remote = strings.TrimSpace(target.Remote)
		target.Branch = strings.TrimSpace(target.Branch)
		target.Source = strings.TrimSpace(target.Source)
		target.Directory = strings.TrimSpace(target.Directory)
		target.Tag = strings.TrimSpace(target.Tag)
		target.Author.Name = strings.TrimSpace(target.Author.Name)
		target.Author.Email = strings.TrimSpace(target.Author.Email)
		target.Credentials.UsernameEnvironment = strings.TrimSpace(target.Credentials.UsernameEnvironment)
		target.Credentials.TokenEnvironment = strings.TrimSpace(target.Credentials.TokenEnvironment)
		sanitized.Targets = append(sanitized.Targets, target)
	}
	return sanitized
}

// BuildTargets selects the configured targets, applies overrides and resolves credentials from
// the environment. Relative source paths are anchored at sourceRepository; an unset dir defaults
// to a per-target directory under workRoot. Every problem is reported, joined.
func (configuration CommandConfiguration) BuildTargets(sourceRepository string, overrides TargetOverrides, lookup EnvironmentLookup, workRoot func() (string, error)) ([]Target, error) {
	sanitized := configuration.Sanitize()
	if len(sanitized.Targets) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidConfiguration, noTargetsConfiguredMessageConstant)
	}

	selected, selectionError := selectTargets(sanitized.Targets, overrides.Names)
	if selectionError != nil {
		return nil, selectionError
	}

	var problems []error
	targets := make([]Target, 0, len(selected))
	for _, targetConfiguration := range selected {
		target, buildError := targetConfiguration.build(sourceRepository, overrides, lookup, workRoot)
		if buildError != nil {
			problems = append(problems, buildError)
			continue
		}
		targets = append(targets, target)
	}
	if len(problems) > 0 {
		return nil, errors.Join(problems...)
	}
	return targets, nil
}

func selectTargets(targets []TargetConfiguration, names []string) ([]TargetConfiguration, error) {
	if len(names) == 0 {
		return targets, nil
	}
	requested := make(map[string]bool, len(names))
	for _, name := range names {
		requested[strings.TrimSpace(name)] = false
	}
	selected := make([]TargetConfiguration, 0, len(names))
	configuredNames := make([]string, 0, len(targets))
	for _, target := range targets {
		configuredNames = append(configuredNames, target.Name)
		if _, wanted := requested[target.Name]; wanted {
			requested[target.Name] = true
			selected = append(selected, target)
		}
	}
	var unknown []string
	for _, name := range names {
		trimmedName := strings.TrimSpace(name)
		if found, known := requested[trimmedName]; known && !found {
			unknown = append(unknown, trimmedName)
			requested[trimmedName] = true
		}
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: "+unknownTargetsMessageTemplate, ErrInvalidConfiguration, strings.Join(unknown, ", "), strings.Join(configuredNames, ", "))
	}
	return selected, nil
}

func (configuration TargetConfiguration) build(sourceRepository string, overrides TargetOverrides, lookup EnvironmentLookup, workRoot func() (string, error)) (Target, error) {
	target := Target{
		Name:                  configuration.Name,
		RemoteURL:             configuration.Remote,
		Branch:                configuration.Branch,
		MessageTemplate:       configuration.Message,
		Commit:                configuration.Commit == nil || *configuration.Commit,
		Push:                  configuration.Push == nil || *configuration.Push,
		Force:                 configuration.Force,
		ConnectCommits:        configuration.ConnectCommits,
		AllowUnresolvedTokens: configuration.AllowUnresolvedTokens,
		Tag:                   configuration.Tag,
		Author:                Author{Name: configuration.Author.Name, Email: configuration.Author.Email},
	}
	if overrides.NoCommit {
		target.Commit = false
	}
	if overrides.NoPush || overrides.NoCommit {
		target.Push = false
	}

	if len(configuration.Source) > 0 {
		target.SourceDirectory = anchorPath(sourceRepository, configuration.Source)
	}

	var problems []string
	if len(configuration.Directory) > 0 {
		target.WorkDirectory = anchorPath(sourceRepository, configuration.Directory)
	} else if workRoot != nil {
		root, rootError := workRoot()
		if rootError != nil || len(strings.TrimSpace(root)) == 0 {
			problems = append(problems, fmt.Sprintf(workRootUnavailableMessageTemplate, rootError))
		} else {
			target.WorkDirectory = filepath.Join(root, defaultWorkRootDirectoryConstant, workDirectoryName(sourceRepository), workDirectoryName(configuration.Name))
		}
	}

	username, usernameProblem := resolveEnvironment(lookup, usernameEnvironmentFieldConstant, configuration.Credentials.UsernameEnvironment)
	token, tokenProblem := resolveEnvironment(lookup, tokenEnvironmentFieldConstant, configuration.Credentials.TokenEnvironment)
	for _, problem := range []string{usernameProblem, tokenProblem} {
		if len(problem) > 0 {
			problems = append(problems, problem)
		}
	}
	target.Credentials = Credentials{Username: username, Token: token}

	if len(problems) > 0 {
		return Target{}, newTargetErrorMessage(ErrInvalidConfiguration, target.Name, StageValidate, redaction.NewRedactor(target.Credentials.Secrets()...), "%s", strings.Join(problems, "; "))
	}
	return target, nil
}

func resolveEnvironment(lookup EnvironmentLookup, field string, variable string) (string, string) {
	if len(variable) == 0 {
		return "", ""
	}
	if lookup == nil {
		return "", fmt.Sprintf(environmentUnsetMessageTemplate, field, variable)
	}
	value, present := lookup(variable)
	if !present || len(strings.TrimSpace(value)) == 0 {
		return "", fmt.Sprintf(environmentUnsetMessageTemplate, field, variable)
	}
	return strings.TrimSpace(value), ""
}

func anchorPath(base string, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

func workDirectoryName(value string) string {
	name := workDirectoryNameSanitizer.ReplaceAllString(filepath.Base(filepath.Clean(value)), "-")
	name = strings.Trim(name, "-.")
	if len(name) == 0 {
		return defaultWorkRootDirectoryConstant
	}
	return name
}
