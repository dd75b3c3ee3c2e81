package flags

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tyemirov/gitdeploy/internal/utils"
)

const boolFlagParseErrorTemplate = "unable to parse flag %q: %w"

// ErrFlagNotDefined indicates that the requested flag is not present on the command.
var ErrFlagNotDefined = errors.New("flag not defined")

// BoolFlag returns the flag value and whether the user changed it.
func BoolFlag(command *cobra.Command, name string) (bool, bool, error) {
	flagSet, flag := locateFlag(command, name)
	if flag == nil {
		return false, false, ErrFlagNotDefined
	}
	value, err := flagSet.GetBool(name)
	if err == nil {
		return value, flag.Changed, nil
	}
	if flag.Value == nil {
		return false, false, err
	}
	parsedValue, parseError := strconv.ParseBool(strings.TrimSpace(flag.Value.String()))
	if parseError != nil {
		return false, false, fmt.Errorf(boolFlagParseErrorTemplate, name, parseError)
	}
	return parsedValue, flag.Changed, nil
}

// StringArrayFlag returns the repeated flag values and whether the user changed them.
func StringArrayFlag(command *cobra.Command, name string) ([]string, bool, error) {
	flagSet, flag := locateFlag(command, name)
	if flag == nil {
		return nil, false, ErrFlagNotDefined
	}
	values, err := flagSet.GetStringArray(name)
	if err != nil {
		return nil, false, err
	}
	return values, flag.Changed, nil
}

func locateFlag(command *cobra.Command, name string) (*pflag.FlagSet, *pflag.Flag) {
	if command == nil {
		return nil, nil
	}

	candidateSets := []*pflag.FlagSet{
		command.Flags(),
		command.PersistentFlags(),
		command.InheritedFlags(),
	}
	if root := command.Root(); root != nil {
		candidateSets = append(candidateSets, root.PersistentFlags())
	}

	for _, set := range candidateSets {
		if set == nil {
			continue
		}
		if flag := set.Lookup(name); flag != nil {
			return set, flag
		}
	}
	return nil, nil
}

// CollectDeploySelection reads the selection flags defined on the command.
func CollectDeploySelection(command *cobra.Command) (utils.DeploySelection, error) {
	selection := utils.DeploySelection{}
	if command == nil {
		return selection, nil
	}

	targetNames, _, targetError := StringArrayFlag(command, TargetFlagName)
	if targetError != nil && !errors.Is(targetError, ErrFlagNotDefined) {
		return utils.DeploySelection{}, targetError
	}
	selection.TargetNames = targetNames

	noPush, _, noPushError := BoolFlag(command, NoPushFlagName)
	if noPushError != nil && !errors.Is(noPushError, ErrFlagNotDefined) {
		return utils.DeploySelection{}, noPushError
	}
	selection.NoPush = noPush

	noCommit, _, noCommitError := BoolFlag(command, NoCommitFlagName)
	if noCommitError != nil && !errors.Is(noCommitError, ErrFlagNotDefined) {
		return utils.DeploySelection{}, noCommitError
	}
	selection.NoCommit = noCommit

	return selection, nil
}

// ResolveDeploySelection prefers a selection already stored on the command context.
func ResolveDeploySelection(command *cobra.Command) (utils.DeploySelection, error) {
	contextAccessor := utils.NewCommandContextAccessor()
	if command != nil {
		if selection, available := contextAccessor.DeploySelection(command.Context()); available {
			return selection, nil
		}
	}
	return CollectDeploySelection(command)
}
