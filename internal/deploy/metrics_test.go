package deploy_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/tyemirov/gitdeploy/internal/deploy"
)

func TestMetricsObserveOutcomes(testInstance *testing.T) {
	metrics := deploy.NewMetrics()
	metrics.ObserveOutcome(deploy.Outcome{Success: true, Committed: true, Pushed: true, Stage: deploy.StagePublish, Duration: time.Second})
	metrics.ObserveOutcome(deploy.Outcome{Success: true, NothingToCommit: true, Stage: deploy.StagePublish, Duration: time.Second})
	metrics.ObserveOutcome(deploy.Outcome{Success: false, Stage: deploy.StagePublish, ErrorKind: deploy.ErrRemoteUnreachable})
	metrics.ObserveOutcome(deploy.Outcome{Success: false, Stage: deploy.StageMaterialize, ErrorKind: deploy.ErrWorkingCopyCorrupt})

	expected := `
# HELP gitdeploy_commits_total Commits created in deploy working copies
# TYPE gitdeploy_commits_total counter
gitdeploy_commits_total 1
# HELP gitdeploy_pushes_total Branch pushes attempted, by result
# TYPE gitdeploy_pushes_total counter
gitdeploy_pushes_total{result="failure"} 1
gitdeploy_pushes_total{result="success"} 1
# HELP gitdeploy_targets_total Deploy targets processed, by result
# TYPE gitdeploy_targets_total counter
gitdeploy_targets_total{result="failure"} 2
gitdeploy_targets_total{result="noop"} 1
gitdeploy_targets_total{result="success"} 1
`
	require.NoError(testInstance, testutil.GatherAndCompare(metrics.Gatherer(), strings.NewReader(expected),
		"gitdeploy_commits_total", "gitdeploy_pushes_total", "gitdeploy_targets_total"))

	histogramCount, countError := testutil.GatherAndCount(metrics.Gatherer(), "gitdeploy_target_duration_seconds")
	require.NoError(testInstance, countError)
	require.Equal(testInstance, 1, histogramCount)
}

func TestMetricsWriteTextfile(testInstance *testing.T) {
	metrics := deploy.NewMetrics()
	metrics.ObserveOutcome(deploy.Outcome{Success: true, Committed: true})

	path := filepath.Join(testInstance.TempDir(), "gitdeploy.prom")
	require.NoError(testInstance, metrics.WriteTextfile(path))

	content, readError := os.ReadFile(path)
	require.NoError(testInstance, readError)
	require.Contains(testInstance, string(content), "gitdeploy_commits_total 1")
	require.Contains(testInstance, string(content), `gitdeploy_targets_total{result="success"} 1`)
}

func TestMetricsSkipWithoutPath(testInstance *testing.T) {
	var metrics *deploy.Metrics
	require.NotPanics(testInstance, func() { metrics.ObserveOutcome(deploy.Outcome{}) })
	require.NoError(testInstance, metrics.WriteTextfile("/nonexistent/path"))
	require.NoError(testInstance, deploy.NewMetrics().WriteTextfile("  "))
}
