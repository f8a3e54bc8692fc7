package pipeline

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
)

// PanicLogger receives a recovered hook panic with a trimmed stack.
type PanicLogger func(stage string, value any, stack []byte, fields ...map[string]any)

// hookPanic wraps a value recovered from a stage hook.
type hookPanic struct {
	value any
}

func (p hookPanic) Error() string {
	return fmt.Sprintf("hook panicked: %v", p.value)
}

func (p hookPanic) Unwrap() error {
	if err, ok := p.value.(error); ok {
		return err
	}
	return nil
}

// callHook runs hook and converts a panic into an error.
func callHook(stage string, report PanicLogger, fields map[string]any, hook func() error) (err error) {
	defer func() {
		if v := recover(); v != nil {
			stack := make([]byte, 8096)
			stack = cleanStackTrace(stack[:runtime.Stack(stack, false)])
			if report != nil {
				report(stage, v, stack, fields)
			}
			err = hookPanic{value: v}
		}
	}()
	return hook()
}

// LoggerPanicReporter reports hook panics through logger at error level.
func LoggerPanicReporter(logger Logger) PanicLogger {
	logger = normalizeLogger(logger)
	return func(stage string, value any, stack []byte, fields ...map[string]any) {
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("recovered from panic in %s hook: %v (%T)\n", stage, value, value))

		if len(fields) > 0 && fields[0] != nil {
			keys := make([]string, 0, len(fields[0]))
			for k := range fields[0] {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				sb.WriteString(fmt.Sprintf("  %s: %v\n", k, fields[0][k]))
			}
		}

		sb.WriteString("stack:\n")
		sb.Write(stack)
		logger.Error("%s", sb.String())
	}
}

func cleanStackTrace(stack []byte) []byte {
	lines := strings.Split(string(stack), "\n")

	panicLineIndex := -1
	for i, line := range lines {
		if strings.Contains(line, "panic(") {
			panicLineIndex = i
			break
		}
	}

	// drop the panic() frame and its file reference
	if panicLineIndex >= 0 && panicLineIndex+2 < len(lines) {
		lines = lines[panicLineIndex+2:]
	}

	return []byte(strings.Join(lines, "\n"))
}
