package utils

import (
	"context"
	"strings"
)

const (
	configurationFilePathContextKeyConstant = commandContextKey("configurationFilePath")
	runIdentifierContextKeyConstant         = commandContextKey("runIdentifier")
	deploySelectionContextKeyConstant       = commandContextKey("deploySelection")
	logLevelContextKeyConstant              = commandContextKey("logLevel")
)

type commandContextKey string

// DeploySelection narrows and overrides the configured targets for one invocation.
type DeploySelection struct {
	TargetNames []string
	NoPush      bool
	NoCommit    bool
}

// IsZero reports whether the selection leaves the configuration untouched.
func (selection DeploySelection) IsZero() bool {
	return len(selection.TargetNames) == 0 && !selection.NoPush && !selection.NoCommit
}

// CommandContextAccessor manages values stored in command execution contexts.
type CommandContextAccessor struct{}

// NewCommandContextAccessor constructs a CommandContextAccessor instance.
func NewCommandContextAccessor() CommandContextAccessor {
	return CommandContextAccessor{}
}

// WithConfigurationFilePath attaches the configuration file path to the provided context.
func (accessor CommandContextAccessor) WithConfigurationFilePath(parentContext context.Context, configurationFilePath string) context.Context {
	if parentContext == nil {
		parentContext = context.Background()
	}
	return context.WithValue(parentContext, configurationFilePathContextKeyConstant, configurationFilePath)
}

// WithRunIdentifier attaches the invocation identifier when one is present.
func (accessor CommandContextAccessor) WithRunIdentifier(parentContext context.Context, runIdentifier string) context.Context {
	if parentContext == nil {
		parentContext = context.Background()
	}
	trimmedIdentifier := strings.TrimSpace(runIdentifier)
	if len(trimmedIdentifier) == 0 {
		return parentContext
	}
	return context.WithValue(parentContext, runIdentifierContextKeyConstant, trimmedIdentifier)
}

// WithDeploySelection attaches normalized target selection values. Blank and repeated names are dropped.
func (accessor CommandContextAccessor) WithDeploySelection(parentContext context.Context, selection DeploySelection) context.Context {
	if parentContext == nil {
		parentContext = context.Background()
	}
	normalized := DeploySelection{NoPush: selection.NoPush, NoCommit: selection.NoCommit}
	seen := make(map[string]struct{}, len(selection.TargetNames))
	for _, name := range selection.TargetNames {
		trimmedName := strings.TrimSpace(name)
		if len(trimmedName) == 0 {
			continue
		}
		if _, duplicate := seen[trimmedName]; duplicate {
			continue
		}
		seen[trimmedName] = struct{}{}
		normalized.TargetNames = append(normalized.TargetNames, trimmedName)
	}
	if normalized.IsZero() {
		return parentContext
	}
	return context.WithValue(parentContext, deploySelectionContextKeyConstant, normalized)
}

// WithLogLevel attaches the effective log level to the provided context.
func (accessor CommandContextAccessor) WithLogLevel(parentContext context.Context, logLevel string) context.Context {
	if parentContext == nil {
		parentContext = context.Background()
	}
	trimmedLogLevel := strings.TrimSpace(logLevel)
	if len(trimmedLogLevel) == 0 {
		return parentContext
	}
	return context.WithValue(parentContext, logLevelContextKeyConstant, trimmedLogLevel)
}

// ConfigurationFilePath extracts the configuration file path from the provided context.
func (accessor CommandContextAccessor) ConfigurationFilePath(executionContext context.Context) (string, bool) {
	if executionContext == nil {
		return "", false
	}
	configurationFilePath, configurationFilePathAvailable := executionContext.Value(configurationFilePathContextKeyConstant).(string)
	if !configurationFilePathAvailable {
		return "", false
	}
	return configurationFilePath, true
}

// RunIdentifier extracts the invocation identifier from the provided context.
func (accessor CommandContextAccessor) RunIdentifier(executionContext context.Context) (string, bool) {
	if executionContext == nil {
		return "", false
	}
	value, valueAvailable := executionContext.Value(runIdentifierContextKeyConstant).(string)
	return value, valueAvailable
}

// DeploySelection extracts target selection values from the provided context.
func (accessor CommandContextAccessor) DeploySelection(executionContext context.Context) (DeploySelection, bool) {
	if executionContext == nil {
		return DeploySelection{}, false
	}
	value, valueAvailable := executionContext.Value(deploySelectionContextKeyConstant).(DeploySelection)
	if !valueAvailable {
		return DeploySelection{}, false
	}
	return value, true
}

// LogLevel extracts the effective log level from the provided context.
func (accessor CommandContextAccessor) LogLevel(executionContext context.Context) (string, bool) {
	if executionContext == nil {
		return "", false
	}
	value, valueAvailable := executionContext.Value(logLevelContextKeyConstant).(string)
	if !valueAvailable {
		return "", false
	}
	return value, true
}
