package deploy_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/tyemirov/gitdeploy/internal/deploy"
	"github.com/tyemirov/gitdeploy/internal/execshell"
	"github.com/tyemirov/gitdeploy/internal/gitrepo"
	"github.com/tyemirov/gitdeploy/internal/redaction"
)

func validTarget(testInstance *testing.T) deploy.Target {
	testInstance.Helper()
	root := testInstance.TempDir()
	sourceDirectory := filepath.Join(root, "source", "dist")
	require.NoError(testInstance, os.MkdirAll(sourceDirectory, 0o755))
	return deploy.Target{
		Name:            "pages",
		SourceDirectory: sourceDirectory,
		WorkDirectory:   filepath.Join(root, "work"),
		RemoteURL:       testPublicRemoteURLConstant,
		Branch:          "gh-pages",
		Commit:          true,
		Push:            true,
	}
}

func TestValidateTargets(testInstance *testing.T) {
	testCases := []struct {
		name            string
		mutate          func(target deploy.Target) []deploy.Target
		expectedMessage string
	}{
		{
			name:   "valid",
			mutate: func(target deploy.Target) []deploy.Target { return []deploy.Target{target} },
		},
		{
			name:            "no_targets",
			mutate:          func(deploy.Target) []deploy.Target { return nil },
			expectedMessage: "no deploy targets configured",
		},
		{
			name: "missing_branch",
			mutate: func(target deploy.Target) []deploy.Target {
				target.Branch = " "
				return []deploy.Target{target}
			},
			expectedMessage: "branch is required",
		},
		{
			name: "invalid_branch",
			mutate: func(target deploy.Target) []deploy.Target {
				target.Branch = "gh..pages"
				return []deploy.Target{target}
			},
			expectedMessage: `branch "gh..pages" is not a valid branch name`,
		},
		{
			name: "missing_remote",
			mutate: func(target deploy.Target) []deploy.Target {
				target.RemoteURL = ""
				return []deploy.Target{target}
			},
			expectedMessage: "remote is required",
		},
		{
			name: "missing_source",
			mutate: func(target deploy.Target) []deploy.Target {
				target.SourceDirectory = filepath.Join(target.SourceDirectory, "absent")
				return []deploy.Target{target}
			},
			expectedMessage: "is not readable",
		},
		{
			name: "duplicate_names",
			mutate: func(target deploy.Target) []deploy.Target {
				return []deploy.Target{target, target}
			},
			expectedMessage: `target name "pages" is used more than once`,
		},
		{
			name: "username_without_token",
			mutate: func(target deploy.Target) []deploy.Target {
				target.Credentials = deploy.Credentials{Username: testPrivateUsernameConstant}
				return []deploy.Target{target}
			},
			expectedMessage: "credentials username is set without a token",
		},
		{
			name: "credentials_over_ssh",
			mutate: func(target deploy.Target) []deploy.Target {
				target.RemoteURL = "git@github.com:pubUsername/temp.git"
				target.Credentials = deploy.Credentials{Token: testPrivateTokenConstant}
				return []deploy.Target{target}
			},
			expectedMessage: "credentials require an http or https remote",
		},
		{
			name: "work_directory_inside_source",
			mutate: func(target deploy.Target) []deploy.Target {
				target.WorkDirectory = filepath.Join(target.SourceDirectory, "deploy")
				return []deploy.Target{target}
			},
			expectedMessage: "must not overlap source",
		},
		{
			name: "work_directory_is_source",
			mutate: func(target deploy.Target) []deploy.Target {
				target.WorkDirectory = target.SourceDirectory
				return []deploy.Target{target}
			},
			expectedMessage: "must not overlap source",
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			targets := testCase.mutate(validTarget(testInstance))
			validationError := deploy.ValidateTargets("", targets, redaction.NewRedactor())
			if len(testCase.expectedMessage) == 0 {
				require.NoError(testInstance, validationError)
				return
			}
			require.Error(testInstance, validationError)
			require.ErrorIs(testInstance, validationError, deploy.ErrInvalidConfiguration)
			require.Contains(testInstance, validationError.Error(), testCase.expectedMessage)
		})
	}
}

func TestValidateTargetsRejectsWorkDirectoryContainingSourceRepository(testInstance *testing.T) {
	target := validTarget(testInstance)
	sourceRepository := filepath.Dir(target.SourceDirectory)
	target.WorkDirectory = filepath.Dir(sourceRepository)

	validationError := deploy.ValidateTargets(sourceRepository, []deploy.Target{target}, redaction.NewRedactor())
	require.ErrorIs(testInstance, validationError, deploy.ErrInvalidConfiguration)
	require.Contains(testInstance, validationError.Error(), "the source repository")
}

func TestValidateTargetsAggregatesEveryProblem(testInstance *testing.T) {
	first := validTarget(testInstance)
	first.Branch = ""
	second := validTarget(testInstance)
	second.Name = "mirror"
	second.RemoteURL = ""

	validationError := deploy.ValidateTargets("", []deploy.Target{first, second}, redaction.NewRedactor())
	require.Error(testInstance, validationError)
	require.Contains(testInstance, validationError.Error(), "validate[pages] invalid_configuration: branch is required")
	require.Contains(testInstance, validationError.Error(), "validate[mirror] invalid_configuration: remote is required")
}

func TestResolveTargets(testInstance *testing.T) {
	remoteDirectory := testInstance.TempDir()
	sourceRepository := "/srv/source"

	executor := &stubGitExecutor{executeFunc: func(_ context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
		if details.Arguments[len(details.Arguments)-1] == "upstream" {
			return execshell.ExecutionResult{StandardOutput: testAuthenticatedRemoteURLConstant + "\n"}, nil
		}
		return execshell.ExecutionResult{ExitCode: 2, StandardError: "error: No such remote"}, nil
	}}
	repositoryManager, managerError := gitrepo.NewRepositoryManager(executor)
	require.NoError(testInstance, managerError)
	resolver := deploy.NewRemoteResolver(repositoryManager, afero.NewOsFs(), os.UserHomeDir)

	targets := []deploy.Target{
		{Name: "alias", RemoteURL: "upstream"},
		{Name: "path", RemoteURL: remoteDirectory},
		{Name: "embedded", RemoteURL: testAuthenticatedRemoteURLConstant},
		{Name: "explicit", RemoteURL: testAuthenticatedRemoteURLConstant, Credentials: deploy.Credentials{Token: "other"}},
	}
	resolved, resolveError := resolver.ResolveTargets(context.Background(), sourceRepository, targets, redaction.NewRedactor())
	require.NoError(testInstance, resolveError)

	require.Equal(testInstance, testPublicRemoteURLConstant, resolved[0].RemoteURL)
	require.Equal(testInstance, deploy.Credentials{Username: testPrivateUsernameConstant, Token: testPrivateTokenConstant}, resolved[0].Credentials)
	require.True(testInstance, filepath.IsAbs(resolved[1].RemoteURL))
	require.Equal(testInstance, testPublicRemoteURLConstant, resolved[2].RemoteURL)
	require.Equal(testInstance, testPrivateTokenConstant, resolved[2].Credentials.Token)
	require.Equal(testInstance, deploy.Credentials{Token: "other"}, resolved[3].Credentials)
	require.Equal(testInstance, "upstream", targets[0].RemoteURL)

	for _, details := range executor.recordedDetails {
		require.Equal(testInstance, sourceRepository, details.WorkingDirectory)
	}
}

func TestResolveTargetsReportsUnknownAlias(testInstance *testing.T) {
	executor := &stubGitExecutor{executeFunc: func(context.Context, execshell.CommandDetails) (execshell.ExecutionResult, error) {
		return execshell.ExecutionResult{ExitCode: 2}, nil
	}}
	repositoryManager, managerError := gitrepo.NewRepositoryManager(executor)
	require.NoError(testInstance, managerError)
	resolver := deploy.NewRemoteResolver(repositoryManager, afero.NewMemMapFs(), nil)

	_, resolveError := resolver.ResolveTargets(context.Background(), "/srv/source", []deploy.Target{{Name: "pages", RemoteURL: "nowhere"}}, redaction.NewRedactor())
	require.ErrorIs(testInstance, resolveError, deploy.ErrInvalidConfiguration)
	require.Contains(testInstance, resolveError.Error(), `remote "nowhere" is not a URL, an existing path or a remote of /srv/source`)
}
