package gitrepo_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tyemirov/gitdeploy/internal/execshell"
	"github.com/tyemirov/gitdeploy/internal/gitrepo"
)

const (
	testRepositoryPathConstant                = "/tmp/repo"
	testBranchNameConstant                    = "gh-pages"
	testStartPointConstant                    = "refs/remotes/origin/gh-pages"
	testRemoteNameConstant                    = "origin"
	testAuthRemoteNameConstant                = "gitdeploy-auth"
	testRemoteURLConstant                     = "https://github.com/pubUsername/temp.git"
	testCleanWorktreeCaseNameConstant         = "clean"
	testDirtyWorktreeCaseNameConstant         = "dirty"
	testWorktreeErrorCaseNameConstant         = "error"
	testStatusFailureCaseNameConstant         = "status_failure"
	testValidationCaseNameConstant            = "validation"
	testPresentCaseNameConstant               = "present"
	testMissingCaseNameConstant               = "missing"
	testUnreachableCaseNameConstant           = "unreachable"
	testRunnerErrorCaseNameConstant           = "runner_error"
	testCurrentBranchSuccessCaseNameConstant  = "current_branch_success"
	testCurrentBranchDetachedCaseNameConstant = "current_branch_detached"
	testRemoteAuthenticationFailureConstant   = "fatal: Authentication failed"
	testCommitHashConstant                    = "0123456789abcdef0123456789abcdef01234567"
)

type stubGitExecutor struct {
	executeFunc     func(context.Context, execshell.CommandDetails) (execshell.ExecutionResult, error)
	recordedDetails []execshell.CommandDetails
}

func (executor *stubGitExecutor) ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	executor.recordedDetails = append(executor.recordedDetails, details)
	if executor.executeFunc != nil {
		return executor.executeFunc(executionContext, details)
	}
	return execshell.ExecutionResult{}, nil
}

func runnerFailure() error {
	return execshell.CommandExecutionError{Command: execshell.ShellCommand{Name: execshell.CommandGit}, Cause: errors.New("failed")}
}

func TestNewRepositoryManagerValidation(testInstance *testing.T) {
	testInstance.Run(testValidationCaseNameConstant, func(testInstance *testing.T) {
		manager, creationError := gitrepo.NewRepositoryManager(nil)
		require.Error(testInstance, creationError)
		require.ErrorIs(testInstance, creationError, gitrepo.ErrGitExecutorNotConfigured)
		require.Nil(testInstance, manager)
	})
}

func TestHasUncommittedChanges(testInstance *testing.T) {
	testCases := []struct {
		name        string
		executor    *stubGitExecutor
		path        string
		expected    bool
		expectError bool
		errorType   any
	}{
		{
			name: testCleanWorktreeCaseNameConstant,
			path: testRepositoryPathConstant,
			executor: &stubGitExecutor{executeFunc: func(context.Context, execshell.CommandDetails) (execshell.ExecutionResult, error) {
				return execshell.ExecutionResult{StandardOutput: ""}, nil
			}},
			expected: false,
		},
		{
			name: testDirtyWorktreeCaseNameConstant,
			path: testRepositoryPathConstant,
			executor: &stubGitExecutor{executeFunc: func(context.Context, execshell.CommandDetails) (execshell.ExecutionResult, error) {
				return execshell.ExecutionResult{StandardOutput: " M index.html\n?? app.js\n"}, nil
			}},
			expected: true,
		},
		{
			name: testStatusFailureCaseNameConstant,
			path: testRepositoryPathConstant,
			executor: &stubGitExecutor{executeFunc: func(context.Context, execshell.CommandDetails) (execshell.ExecutionResult, error) {
				return execshell.ExecutionResult{StandardError: "fatal: not a git repository", ExitCode: 128}, nil
			}},
			expected: false,
		},
		{
			name: testWorktreeErrorCaseNameConstant,
			path: testRepositoryPathConstant,
			executor: &stubGitExecutor{executeFunc: func(context.Context, execshell.CommandDetails) (execshell.ExecutionResult, error) {
				return execshell.ExecutionResult{}, runnerFailure()
			}},
			expectError: true,
			errorType:   gitrepo.RepositoryOperationError{},
		},
		{
			name:        testValidationCaseNameConstant,
			executor:    &stubGitExecutor{},
			expectError: true,
			errorType:   gitrepo.InvalidRepositoryInputError{},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			manager, creationError := gitrepo.NewRepositoryManager(testCase.executor)
			require.NoError(testInstance, creationError)

			dirty, checkError := manager.HasUncommittedChanges(context.Background(), testCase.path)
			if testCase.expectError {
				require.Error(testInstance, checkError)
				require.IsType(testInstance, testCase.errorType, checkError)
				return
			}
			require.NoError(testInstance, checkError)
			require.Equal(testInstance, testCase.expected, dirty)
			require.Len(testInstance, testCase.executor.recordedDetails, 1)
			require.Equal(testInstance, []string{"status", "--porcelain"}, testCase.executor.recordedDetails[0].Arguments)
			require.Equal(testInstance, "0", testCase.executor.recordedDetails[0].EnvironmentVariables["GIT_TERMINAL_PROMPT"])
		})
	}
}

func TestRemoteBranchState(testInstance *testing.T) {
	authEnvironment := map[string]string{"GIT_CONFIG_COUNT": "1"}
	testCases := []struct {
		name             string
		executor         *stubGitExecutor
		expectedPresence gitrepo.RemoteBranchPresence
		expectedExists   bool
		expectError      bool
		expectExistsErr  bool
	}{
		{
			name: testPresentCaseNameConstant,
			executor: &stubGitExecutor{executeFunc: func(context.Context, execshell.CommandDetails) (execshell.ExecutionResult, error) {
				return execshell.ExecutionResult{StandardOutput: testCommitHashConstant + "\trefs/heads/gh-pages\n"}, nil
			}},
			expectedPresence: gitrepo.RemoteBranchPresent,
			expectedExists:   true,
		},
		{
			name: testMissingCaseNameConstant,
			executor: &stubGitExecutor{executeFunc: func(context.Context, execshell.CommandDetails) (execshell.ExecutionResult, error) {
				return execshell.ExecutionResult{ExitCode: 2}, nil
			}},
			expectedPresence: gitrepo.RemoteBranchMissing,
		},
		{
			name: testUnreachableCaseNameConstant,
			executor: &stubGitExecutor{executeFunc: func(context.Context, execshell.CommandDetails) (execshell.ExecutionResult, error) {
				return execshell.ExecutionResult{StandardError: testRemoteAuthenticationFailureConstant, ExitCode: 128}, nil
			}},
			expectedPresence: gitrepo.RemoteBranchUnknown,
			expectError:      true,
		},
		{
			name: testRunnerErrorCaseNameConstant,
			executor: &stubGitExecutor{executeFunc: func(context.Context, execshell.CommandDetails) (execshell.ExecutionResult, error) {
				return execshell.ExecutionResult{}, runnerFailure()
			}},
			expectedPresence: gitrepo.RemoteBranchUnknown,
			expectError:      true,
			expectExistsErr:  true,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			manager, creationError := gitrepo.NewRepositoryManager(testCase.executor)
			require.NoError(testInstance, creationError)

			presence, probeError := manager.RemoteBranchState(context.Background(), testRepositoryPathConstant, testAuthRemoteNameConstant, testBranchNameConstant, authEnvironment)
			require.Equal(testInstance, testCase.expectedPresence, presence)
			if testCase.expectError {
				require.Error(testInstance, probeError)
				require.IsType(testInstance, gitrepo.RepositoryOperationError{}, probeError)
			} else {
				require.NoError(testInstance, probeError)
			}

			recorded := testCase.executor.recordedDetails[0]
			require.Equal(testInstance, []string{"ls-remote", "--exit-code", "--heads", testAuthRemoteNameConstant, "refs/heads/gh-pages"}, recorded.Arguments)
			require.Equal(testInstance, "1", recorded.EnvironmentVariables["GIT_CONFIG_COUNT"])

			exists, existsError := manager.RemoteBranchExists(context.Background(), testRepositoryPathConstant, testAuthRemoteNameConstant, testBranchNameConstant, authEnvironment)
			if testCase.expectExistsErr {
				require.Error(testInstance, existsError)
			} else {
				require.NoError(testInstance, existsError)
			}
			require.Equal(testInstance, testCase.expectedExists, exists)
		})
	}
}

func TestHasLocalBranchTreatsNonZeroAsAbsent(testInstance *testing.T) {
	executor := &stubGitExecutor{executeFunc: func(context.Context, execshell.CommandDetails) (execshell.ExecutionResult, error) {
		return execshell.ExecutionResult{ExitCode: 1}, nil
	}}
	manager, creationError := gitrepo.NewRepositoryManager(executor)
	require.NoError(testInstance, creationError)

	exists, probeError := manager.HasLocalBranch(context.Background(), testRepositoryPathConstant, testBranchNameConstant)
	require.NoError(testInstance, probeError)
	require.False(testInstance, exists)
	require.Equal(testInstance, []string{"show-ref", "--verify", "--quiet", "refs/heads/gh-pages"}, executor.recordedDetails[0].Arguments)

	_, validationError := manager.HasLocalBranch(context.Background(), testRepositoryPathConstant, " ")
	require.IsType(testInstance, gitrepo.InvalidRepositoryInputError{}, validationError)
}

func TestHasStagedChanges(testInstance *testing.T) {
	testCases := []struct {
		name        string
		exitCode    int
		expected    bool
		expectError bool
	}{
		{name: testCleanWorktreeCaseNameConstant, exitCode: 0, expected: false},
		{name: testDirtyWorktreeCaseNameConstant, exitCode: 1, expected: true},
		{name: testWorktreeErrorCaseNameConstant, exitCode: 128, expectError: true},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			executor := &stubGitExecutor{executeFunc: func(context.Context, execshell.CommandDetails) (execshell.ExecutionResult, error) {
				return execshell.ExecutionResult{ExitCode: testCase.exitCode}, nil
			}}
			manager, creationError := gitrepo.NewRepositoryManager(executor)
			require.NoError(testInstance, creationError)

			staged, probeError := manager.HasStagedChanges(context.Background(), testRepositoryPathConstant)
			if testCase.expectError {
				require.Error(testInstance, probeError)
				var commandFailure execshell.CommandFailedError
				require.ErrorAs(testInstance, probeError, &commandFailure)
				return
			}
			require.NoError(testInstance, probeError)
			require.Equal(testInstance, testCase.expected, staged)
		})
	}
}

func TestGetCurrentBranch(testInstance *testing.T) {
	testCases := []struct {
		name     string
		result   execshell.ExecutionResult
		expected string
	}{
		{
			name:     testCurrentBranchSuccessCaseNameConstant,
			result:   execshell.ExecutionResult{StandardOutput: "gh-pages\n"},
			expected: testBranchNameConstant,
		},
		{
			name:     testCurrentBranchDetachedCaseNameConstant,
			result:   execshell.ExecutionResult{ExitCode: 1},
			expected: "",
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			executor := &stubGitExecutor{executeFunc: func(context.Context, execshell.CommandDetails) (execshell.ExecutionResult, error) {
				return testCase.result, nil
			}}
			manager, creationError := gitrepo.NewRepositoryManager(executor)
			require.NoError(testInstance, creationError)

			branch, branchError := manager.GetCurrentBranch(context.Background(), testRepositoryPathConstant)
			require.NoError(testInstance, branchError)
			require.Equal(testInstance, testCase.expected, branch)
			require.Equal(testInstance, []string{"symbolic-ref", "--quiet", "--short", "HEAD"}, executor.recordedDetails[0].Arguments)
		})
	}
}

func TestRemoteConfiguration(testInstance *testing.T) {
	executor := &stubGitExecutor{executeFunc: func(_ context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
		if details.Arguments[1] == "get-url" {
			return execshell.ExecutionResult{StandardOutput: testRemoteURLConstant + "\n"}, nil
		}
		return execshell.ExecutionResult{}, nil
	}}
	manager, creationError := gitrepo.NewRepositoryManager(executor)
	require.NoError(testInstance, creationError)

	remoteURL, getError := manager.GetRemoteURL(context.Background(), testRepositoryPathConstant, testRemoteNameConstant)
	require.NoError(testInstance, getError)
	require.Equal(testInstance, testRemoteURLConstant, remoteURL)

	require.NoError(testInstance, manager.SetRemoteURL(context.Background(), testRepositoryPathConstant, testRemoteNameConstant, testRemoteURLConstant))
	require.NoError(testInstance, manager.AddRemote(context.Background(), testRepositoryPathConstant, testRemoteNameConstant, testRemoteURLConstant))

	require.Equal(testInstance, []string{"remote", "set-url", testRemoteNameConstant, testRemoteURLConstant}, executor.recordedDetails[1].Arguments)
	require.Equal(testInstance, []string{"remote", "add", testRemoteNameConstant, testRemoteURLConstant}, executor.recordedDetails[2].Arguments)

	missingURLError := manager.SetRemoteURL(context.Background(), testRepositoryPathConstant, testRemoteNameConstant, "")
	require.IsType(testInstance, gitrepo.InvalidRepositoryInputError{}, missingURLError)
}

func TestRequiredOperationsSurfaceNonZeroExit(testInstance *testing.T) {
	executor := &stubGitExecutor{executeFunc: func(context.Context, execshell.CommandDetails) (execshell.ExecutionResult, error) {
		return execshell.ExecutionResult{StandardError: "error: pathspec did not match", ExitCode: 1}, nil
	}}
	manager, creationError := gitrepo.NewRepositoryManager(executor)
	require.NoError(testInstance, creationError)

	checkoutError := manager.CheckoutBranch(context.Background(), testRepositoryPathConstant, testBranchNameConstant)
	require.Error(testInstance, checkoutError)
	var operationError gitrepo.RepositoryOperationError
	require.ErrorAs(testInstance, checkoutError, &operationError)
	require.Equal(testInstance, gitrepo.RepositoryOperationName("CheckoutBranch"), operationError.Operation)
	require.Contains(testInstance, checkoutError.Error(), "pathspec did not match")

	require.Error(testInstance, manager.StageAll(context.Background(), testRepositoryPathConstant))
	require.Error(testInstance, manager.FastForward(context.Background(), testRepositoryPathConstant, testStartPointConstant))
}

func TestOperationArguments(testInstance *testing.T) {
	executor := &stubGitExecutor{executeFunc: func(_ context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
		if details.Arguments[0] == "rev-parse" {
			return execshell.ExecutionResult{StandardOutput: testCommitHashConstant + "\n"}, nil
		}
		return execshell.ExecutionResult{}, nil
	}}
	manager, creationError := gitrepo.NewRepositoryManager(executor)
	require.NoError(testInstance, creationError)
	executionContext := context.Background()
	authEnvironment := map[string]string{"GIT_CONFIG_COUNT": "1"}

	require.NoError(testInstance, manager.InitRepository(executionContext, testRepositoryPathConstant))
	require.NoError(testInstance, manager.CreateBranch(executionContext, testRepositoryPathConstant, testBranchNameConstant, testStartPointConstant))
	require.NoError(testInstance, manager.CreateOrphanBranch(executionContext, testRepositoryPathConstant, testBranchNameConstant))
	require.NoError(testInstance, manager.PointHead(executionContext, testRepositoryPathConstant, testBranchNameConstant))
	require.NoError(testInstance, manager.FetchBranch(executionContext, testRepositoryPathConstant, testAuthRemoteNameConstant, testRemoteNameConstant, testBranchNameConstant, authEnvironment))
	commitHash, commitError := manager.Commit(executionContext, testRepositoryPathConstant, "Built site", map[string]string{"GIT_AUTHOR_NAME": "Deployer"})
	require.NoError(testInstance, commitError)
	require.Equal(testInstance, testCommitHashConstant, commitHash)
	require.NoError(testInstance, manager.CreateTag(executionContext, testRepositoryPathConstant, "v1.0.0"))

	expectedArguments := [][]string{
		{"init"},
		{"checkout", "-f", "-b", testBranchNameConstant, testStartPointConstant},
		{"checkout", "--orphan", testBranchNameConstant},
		{"symbolic-ref", "HEAD", "refs/heads/gh-pages"},
		{"fetch", "--no-tags", testAuthRemoteNameConstant, "+refs/heads/gh-pages:refs/remotes/origin/gh-pages"},
		{"commit", "--cleanup=verbatim", "--file", "-"},
		{"rev-parse", "--verify", "--quiet", "HEAD^{commit}"},
		{"tag", "v1.0.0"},
	}
	require.Len(testInstance, executor.recordedDetails, len(expectedArguments))
	for index, expected := range expectedArguments {
		require.Equal(testInstance, expected, executor.recordedDetails[index].Arguments)
	}
	require.Equal(testInstance, "1", executor.recordedDetails[4].EnvironmentVariables["GIT_CONFIG_COUNT"])
	require.Equal(testInstance, []byte("Built site"), executor.recordedDetails[5].StandardInput)
	require.Equal(testInstance, "Deployer", executor.recordedDetails[5].EnvironmentVariables["GIT_AUTHOR_NAME"])
	require.Equal(testInstance, "refs/remotes/origin/gh-pages", gitrepo.RemoteTrackingReference(testRemoteNameConstant, testBranchNameConstant))
}

func TestProbeWorkingCopy(testInstance *testing.T) {
	testInstance.Run("missing_directory", func(testInstance *testing.T) {
		executor := &stubGitExecutor{}
		manager, creationError := gitrepo.NewRepositoryManager(executor)
		require.NoError(testInstance, creationError)

		state, probeError := manager.ProbeWorkingCopy(context.Background(), filepath.Join(testInstance.TempDir(), "absent"))
		require.NoError(testInstance, probeError)
		require.Equal(testInstance, gitrepo.WorkingCopyAbsent, state)
		require.Empty(testInstance, executor.recordedDetails)
	})

	testInstance.Run("valid", func(testInstance *testing.T) {
		executor := &stubGitExecutor{executeFunc: func(context.Context, execshell.CommandDetails) (execshell.ExecutionResult, error) {
			return execshell.ExecutionResult{StandardOutput: ".git\n"}, nil
		}}
		manager, creationError := gitrepo.NewRepositoryManager(executor)
		require.NoError(testInstance, creationError)

		isWorkingCopy, probeError := manager.IsWorkingCopy(context.Background(), testInstance.TempDir())
		require.NoError(testInstance, probeError)
		require.True(testInstance, isWorkingCopy)
	})

	testInstance.Run("nested_inside_other_repository", func(testInstance *testing.T) {
		executor := &stubGitExecutor{executeFunc: func(context.Context, execshell.CommandDetails) (execshell.ExecutionResult, error) {
			return execshell.ExecutionResult{StandardOutput: "/home/user/project/.git\n"}, nil
		}}
		manager, creationError := gitrepo.NewRepositoryManager(executor)
		require.NoError(testInstance, creationError)

		state, probeError := manager.ProbeWorkingCopy(context.Background(), testInstance.TempDir())
		require.NoError(testInstance, probeError)
		require.Equal(testInstance, gitrepo.WorkingCopyAbsent, state)
	})

	testInstance.Run("corrupt", func(testInstance *testing.T) {
		directory := testInstance.TempDir()
		require.NoError(testInstance, os.WriteFile(filepath.Join(directory, ".git"), []byte("garbage"), 0o644))
		executor := &stubGitExecutor{executeFunc: func(context.Context, execshell.CommandDetails) (execshell.ExecutionResult, error) {
			return execshell.ExecutionResult{StandardError: "fatal: invalid gitfile format", ExitCode: 128}, nil
		}}
		manager, creationError := gitrepo.NewRepositoryManager(executor)
		require.NoError(testInstance, creationError)

		state, probeError := manager.ProbeWorkingCopy(context.Background(), directory)
		require.NoError(testInstance, probeError)
		require.Equal(testInstance, gitrepo.WorkingCopyCorrupt, state)
	})
}
