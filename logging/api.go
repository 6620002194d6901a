// Package logging prints the progress and results of a run to the console.
package logging

import "github.com/pkg/errors"

// Enumeration of the different log levels
const (
	LogLevelSilent  = iota // no output at all
	LogLevelError          // only errors
	LogLevelWarning        // errors and warnings
	LogLevelVerbose        // errors, warnings, target header, phases and results (DEFAULT)
)

var levelNames = map[string]int{
	"silent":  LogLevelSilent,
	"error":   LogLevelError,
	"warning": LogLevelWarning,
	"verbose": LogLevelVerbose,
}

// ParseLevel converts a level name to its value.
func ParseLevel(name string) (int, error) {
	level, ok := levelNames[name]
	if !ok {
		return LogLevelVerbose, errors.Errorf("unknown log level %q", name)
	}
	return level, nil
}

var logLevel = LogLevelVerbose

// Initialize sets the global log level; unknown names select verbose.
func Initialize(levelName string) {
	logLevel, _ = ParseLevel(levelName)
}

// Enabled reports whether messages of the given level are displayed.
func Enabled(level int) bool {
	return level != LogLevelSilent && logLevel >= level
}

// LogHeader displays the resolved target.
func LogHeader(triple, cpu string) {
	if Enabled(LogLevelVerbose) {
		displayHeader(triple, cpu)
	}
}

// LogBeginPhase starts a progress spinner for phase.
func LogBeginPhase(phase string) {
	if Enabled(LogLevelVerbose) {
		displayBeginPhase(phase)
	}
}

// LogEndPhase closes the spinner of the current phase.
func LogEndPhase(success bool) {
	if Enabled(LogLevelVerbose) {
		displayEndPhase(success)
	}
}

func LogInfo(tag, msg string) {
	if Enabled(LogLevelVerbose) {
		PrintInfoMessage(tag, msg)
	}
}

func LogSuccess(tag, msg string) {
	if Enabled(LogLevelVerbose) {
		PrintSuccessMessage(tag, msg)
	}
}

func LogWarning(tag, msg string) {
	if Enabled(LogLevelWarning) {
		PrintWarningMessage(tag, msg)
	}
}

// LogError displays err. A running phase is marked as failed first.
func LogError(tag string, err error) {
	if Enabled(LogLevelError) {
		displayEndPhase(false)
		PrintErrorMessage(tag, err)
	}
}
