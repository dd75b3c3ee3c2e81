// Package flags binds the deploy selection flags to Cobra commands and reads them back.
package flags

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	// TargetFlagName selects configured targets by name.
	TargetFlagName = "target"
	// TargetFlagUsage describes the target selection flag.
	TargetFlagUsage = "Deploy only the named target (repeatable)"
	// NoPushFlagName disables pushing for every selected target.
	NoPushFlagName = "no-push"
	// NoPushFlagUsage describes the push override flag.
	NoPushFlagUsage = "Commit locally without contacting any remote"
	// NoCommitFlagName disables committing for every selected target.
	NoCommitFlagName = "no-commit"
	// NoCommitFlagUsage describes the commit override flag.
	NoCommitFlagUsage = "Stage the built content without committing or pushing"
)

// DeployFlagDefinitions toggles which selection flags a command exposes.
type DeployFlagDefinitions struct {
	Targets  bool
	NoPush   bool
	NoCommit bool
}

// AllDeployFlags enables every selection flag.
func AllDeployFlags() DeployFlagDefinitions {
	return DeployFlagDefinitions{Targets: true, NoPush: true, NoCommit: true}
}

// BindDeployFlags attaches the enabled selection flags to the command's local flag set.
func BindDeployFlags(command *cobra.Command, definitions DeployFlagDefinitions) {
	if command == nil {
		return
	}
	flagSet := command.Flags()
	if definitions.Targets && flagSet.Lookup(TargetFlagName) == nil {
		flagSet.StringArray(TargetFlagName, nil, TargetFlagUsage)
	}
	if definitions.NoPush {
		AddToggleFlag(flagSet, NoPushFlagName, false, NoPushFlagUsage)
	}
	if definitions.NoCommit {
		AddToggleFlag(flagSet, NoCommitFlagName, false, NoCommitFlagUsage)
	}
}

// AddToggleFlag defines a boolean flag unless the set already has one with that name.
func AddToggleFlag(flagSet *pflag.FlagSet, name string, defaultValue bool, usage string) {
	if flagSet == nil || len(name) == 0 {
		return
	}
	if flagSet.Lookup(name) != nil {
		return
	}
	flagSet.Bool(name, defaultValue, usage)
}
