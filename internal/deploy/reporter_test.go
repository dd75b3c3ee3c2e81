package deploy_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tyemirov/gitdeploy/internal/deploy"
	"github.com/tyemirov/gitdeploy/internal/redaction"
)

func fixedClock(instants ...time.Time) func() time.Time {
	index := 0
	return func() time.Time {
		instant := instants[index]
		if index < len(instants)-1 {
			index++
		}
		return instant
	}
}

func TestReporterWritesTargetHeadersAndEvents(testInstance *testing.T) {
	var output bytes.Buffer
	var errorsOutput bytes.Buffer
	start := time.Date(2024, time.March, 9, 10, 30, 0, 0, time.UTC)
	reporter := deploy.NewReporter(&output, &errorsOutput, deploy.WithNowProvider(fixedClock(start)))

	reporter.Report(deploy.Event{Timestamp: start, Level: deploy.EventLevelInfo, Code: deploy.EventCodeCommitted, Target: "pages", Message: "8d2f0c4 Built site"})
	reporter.Report(deploy.Event{Timestamp: start, Level: deploy.EventLevelInfo, Code: deploy.EventCodePushed, Target: "pages", Message: "pushed"})
	reporter.Report(deploy.Event{Timestamp: start, Level: deploy.EventLevelError, Code: deploy.EventCodeFailed, Target: "mirror", Message: "remote_unreachable"})

	lines := strings.Split(strings.TrimSpace(output.String()), "\n")
	require.Len(testInstance, lines, 3)
	require.True(testInstance, strings.HasPrefix(lines[0], "-- target: pages ---"))
	require.Len(testInstance, lines[0], 80)
	require.Equal(testInstance, "10:30:00 INFO  TARGET_COMMITTED         8d2f0c4 Built site", lines[1])
	require.Equal(testInstance, "10:30:00 INFO  TARGET_PUSHED            pushed", lines[2])

	errorLines := strings.Split(strings.TrimSpace(errorsOutput.String()), "\n")
	require.Len(testInstance, errorLines, 2)
	require.True(testInstance, strings.HasPrefix(errorLines[0], "-- target: mirror "))
	require.Equal(testInstance, "10:30:00 ERROR TARGET_FAILED            remote_unreachable", errorLines[1])
}

func TestReporterMachineFormatRedactsDetails(testInstance *testing.T) {
	var output bytes.Buffer
	start := time.Date(2024, time.March, 9, 10, 30, 0, 0, time.UTC)
	reporter := deploy.NewReporter(&output, nil,
		deploy.WithTargetHeaders(false),
		deploy.WithNowProvider(fixedClock(start)),
		deploy.WithReporterRedactor(redaction.NewRedactor(testPrivateTokenConstant)),
	)

	reporter.Report(deploy.Event{
		Level:   deploy.EventLevelInfo,
		Code:    deploy.EventCodePushed,
		Target:  "pages",
		Message: "pushed to " + testAuthenticatedRemoteURLConstant,
		Details: map[string]string{"remote": testAuthenticatedRemoteURLConstant, "token": testPrivateTokenConstant},
	})

	require.Equal(testInstance,
		"10:30:00 INFO  TARGET_PUSHED            pushed to https://<CREDENTIALS>@github.com/pubUsername/temp.git | event=TARGET_PUSHED remote=https://<CREDENTIALS>@github.com/pubUsername/temp.git target=pages token=<CREDENTIALS>\n",
		output.String(),
	)
}

func TestReporterSummary(testInstance *testing.T) {
	start := time.Date(2024, time.March, 9, 10, 30, 0, 0, time.UTC)
	reporter := deploy.NewReporter(&bytes.Buffer{}, nil, deploy.WithNowProvider(fixedClock(start, start.Add(1500*time.Millisecond))))

	reporter.RecordOutcome(deploy.Outcome{Success: true, Committed: true, Pushed: true})
	reporter.RecordOutcome(deploy.Outcome{Success: true, NothingToCommit: true})
	reporter.RecordOutcome(deploy.Outcome{Success: false, ErrorKind: deploy.ErrRemoteUnreachable})

	require.Equal(testInstance,
		"Summary: total.targets=3 succeeded=2 failed=1 committed=1 pushed=1 duration_human=1.5s duration_ms=1500",
		reporter.Summary(),
	)
}

func TestNilReporterIsSafe(testInstance *testing.T) {
	var reporter *deploy.Reporter
	require.NotPanics(testInstance, func() {
		reporter.Report(deploy.Event{Code: deploy.EventCodePushed})
		reporter.RecordOutcome(deploy.Outcome{Success: true})
		reporter.PrintSummary()
	})
	require.Equal(testInstance, "0s", reporter.SummaryData().DurationHuman)
}
