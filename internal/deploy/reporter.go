package deploy

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tyemirov/gitdeploy/internal/redaction"
)

const (
	defaultLevelFieldWidth = 5
	defaultEventFieldWidth = 24
	defaultHeaderWidth     = 80
	defaultTimestampLayout = "15:04:05"
)

// EventLevel describes the severity of a reported deploy event.
type EventLevel string

// Supported event levels.
const (
	EventLevelInfo  EventLevel = "INFO"
	EventLevelWarn  EventLevel = "WARN"
	EventLevelError EventLevel = "ERROR"
)

// Event codes emitted per target.
const (
	EventCodeMaterialized    = "TARGET_MATERIALIZED"
	EventCodeCommitted       = "TARGET_COMMITTED"
	EventCodeStaged          = "TARGET_STAGED"
	EventCodeNothingToCommit = "TARGET_NOTHING_TO_COMMIT"
	EventCodePushed          = "TARGET_PUSHED"
	EventCodePushDeferred    = "TARGET_PUSH_DEFERRED"
	EventCodePushSkipped     = "TARGET_PUSH_SKIPPED"
	EventCodeFailed          = "TARGET_FAILED"
)

// Event captures a single deploy step for one target.
type Event struct {
	Timestamp time.Time
	Level     EventLevel
	Code      string
	Target    string
	Message   string
	Details   map[string]string
}

// ReporterOption customises Reporter behaviour.
type ReporterOption func(*Reporter)

// WithTargetHeaders toggles the per-target header lines of console output.
// Without headers every event is written as a human part followed by key=value pairs.
func WithTargetHeaders(enabled bool) ReporterOption {
	return func(reporter *Reporter) {
		reporter.includeTargetHeaders = enabled
	}
}

// WithNowProvider overrides the time source used for timestamps and duration calculations.
func WithNowProvider(provider func() time.Time) ReporterOption {
	return func(reporter *Reporter) {
		if provider != nil {
			reporter.now = provider
			reporter.startTime = provider()
		}
	}
}

// WithReporterRedactor masks credentials in every line the reporter writes.
func WithReporterRedactor(redactor redaction.Redactor) ReporterOption {
	return func(reporter *Reporter) {
		reporter.redactor = redactor
	}
}

// SummaryData captures aggregated deploy counters.
type SummaryData struct {
	TotalTargets         int
	Succeeded            int
	Failed               int
	Committed            int
	Pushed               int
	DurationHuman        string
	DurationMilliseconds int64
}

// Reporter writes deploy events and the final summary line.
type Reporter struct {
	outputWriter         io.Writer
	errorWriter          io.Writer
	includeTargetHeaders bool
	now                  func() time.Time
	redactor             redaction.Redactor

	mutex      sync.Mutex
	lastTarget string
	startTime  time.Time
	summary    SummaryData
}

// NewReporter constructs a Reporter that writes to the provided sinks.
func NewReporter(output io.Writer, errors io.Writer, options ...ReporterOption) *Reporter {
	if output == nil {
		output = os.Stdout
	}
	if errors == nil {
		errors = output
	}

	reporter := &Reporter{
		outputWriter:         output,
		errorWriter:          errors,
		includeTargetHeaders: true,
		now:                  time.Now,
		startTime:            time.Now(),
		redactor:             redaction.NewRedactor(),
	}
	for _, option := range options {
		option(reporter)
	}
	return reporter
}

// Report writes the event.
func (reporter *Reporter) Report(event Event) {
	if reporter == nil {
		return
	}

	reporter.mutex.Lock()
	defer reporter.mutex.Unlock()

	timestamp := event.Timestamp
	if timestamp.IsZero() {
		timestamp = reporter.now()
	}
	level := normalizeLevel(event.Level)
	code := normalizeCode(event.Code)
	targetName := reporter.redactor.Redact(strings.TrimSpace(event.Target))
	message := reporter.redactor.Redact(strings.TrimSpace(event.Message))

	writer := reporter.outputWriter
	if level == EventLevelError && reporter.errorWriter != nil {
		writer = reporter.errorWriter
	}

	if reporter.includeTargetHeaders {
		if len(targetName) > 0 && targetName != reporter.lastTarget {
			reporter.printTargetHeader(writer, targetName)
			reporter.lastTarget = targetName
		}
		fmt.Fprintln(writer, reporter.formatConsolePart(timestamp, level, code, message))
		return
	}

	fmt.Fprintf(writer, "%s | %s\n",
		reporter.formatConsolePart(timestamp, level, code, message),
		reporter.formatMachinePart(code, targetName, event.Details),
	)
}

// RecordOutcome adds a finished target to the summary counters.
func (reporter *Reporter) RecordOutcome(outcome Outcome) {
	if reporter == nil {
		return
	}

	reporter.mutex.Lock()
	defer reporter.mutex.Unlock()

	reporter.summary.TotalTargets++
	if outcome.Success {
		reporter.summary.Succeeded++
	} else {
		reporter.summary.Failed++
	}
	if outcome.Committed {
		reporter.summary.Committed++
	}
	if outcome.Pushed {
		reporter.summary.Pushed++
	}
}

// SummaryData returns a snapshot of the counters.
func (reporter *Reporter) SummaryData() SummaryData {
	if reporter == nil {
		return SummaryData{DurationHuman: "0s"}
	}

	reporter.mutex.Lock()
	defer reporter.mutex.Unlock()

	duration := reporter.now().Sub(reporter.startTime)
	data := reporter.summary
	data.DurationHuman = formatDuration(duration)
	data.DurationMilliseconds = durationMilliseconds(duration)
	return data
}

// Summary renders the aggregate statistics.
func (reporter *Reporter) Summary() string {
	data := reporter.SummaryData()
	parts := []string{
		fmt.Sprintf("Summary: total.targets=%d", data.TotalTargets),
		fmt.Sprintf("succeeded=%d", data.Succeeded),
		fmt.Sprintf("failed=%d", data.Failed),
		fmt.Sprintf("committed=%d", data.Committed),
		fmt.Sprintf("pushed=%d", data.Pushed),
		fmt.Sprintf("duration_human=%s", data.DurationHuman),
		fmt.Sprintf("duration_ms=%d", data.DurationMilliseconds),
	}
	return strings.Join(parts, " ")
}

// PrintSummary writes the summary to the primary output writer.
func (reporter *Reporter) PrintSummary() {
	if reporter == nil {
		return
	}
	summary := reporter.Summary()

	reporter.mutex.Lock()
	defer reporter.mutex.Unlock()

	fmt.Fprintln(reporter.outputWriter, summary)
}

func (reporter *Reporter) printTargetHeader(writer io.Writer, targetName string) {
	headerContent := fmt.Sprintf("target: %s", targetName)
	paddingWidth := defaultHeaderWidth - len(headerContent) - 4
	if paddingWidth < 0 {
		paddingWidth = 0
	}
	fmt.Fprintf(writer, "-- %s %s\n", headerContent, strings.Repeat("-", paddingWidth))
}

func (reporter *Reporter) formatConsolePart(timestamp time.Time, level EventLevel, code string, message string) string {
	levelField := fmt.Sprintf("%-*s", defaultLevelFieldWidth, string(level))
	codeField := fmt.Sprintf("%-*s", defaultEventFieldWidth, code)
	if len(message) == 0 {
		return strings.TrimRight(fmt.Sprintf("%s %s %s", timestamp.Format(defaultTimestampLayout), levelField, code), " ")
	}
	return fmt.Sprintf("%s %s %s %s", timestamp.Format(defaultTimestampLayout), levelField, codeField, message)
}

func (reporter *Reporter) formatMachinePart(code string, targetName string, details map[string]string) string {
	values := make(map[string]string, len(details)+2)
	values["event"] = code
	if len(targetName) > 0 {
		values["target"] = targetName
	}
	for key, value := range details {
		values[key] = reporter.redactor.Redact(value)
	}

	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%s", key, values[key]))
	}
	return strings.Join(pairs, " ")
}

func formatDuration(value time.Duration) string {
	if value < 0 {
		value = 0
	}
	rounded := value.Round(time.Millisecond)
	if rounded == 0 && value > 0 {
		rounded = time.Millisecond
	}
	return rounded.String()
}

func durationMilliseconds(value time.Duration) int64 {
	if value < 0 {
		value = 0
	}
	rounded := value.Round(time.Millisecond)
	if rounded == 0 && value > 0 {
		rounded = time.Millisecond
	}
	return rounded.Milliseconds()
}

func normalizeLevel(level EventLevel) EventLevel {
	switch level {
	case EventLevelWarn:
		return EventLevelWarn
	case EventLevelError:
		return EventLevelError
	default:
		return EventLevelInfo
	}
}

func normalizeCode(code string) string {
	trimmed := strings.TrimSpace(code)
	if len(trimmed) == 0 {
		return "UNKNOWN"
	}
	return strings.ReplaceAll(strings.ToUpper(trimmed), " ", "_")
}
