package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/natefinch/lumberjack"
)

const megabyte = 1024 * 1024

var (
	moduleLoggers   = make(map[string]*slog.Logger)
	moduleLevelVars = make(map[string]*slog.LevelVar)
	globalConfig    Config
	globalLevelVar  = &slog.LevelVar{}
	isInitialized   bool
	mutex           sync.RWMutex

	// output receives text/json records. Tests replace it.
	output io.Writer = os.Stdout
	// journalEnabled reports whether records are also sent to journald.
	journalEnabled = IsJournalAvailable
	fileWriter     io.WriteCloser
)

// Config represents logging configuration.
type Config struct {
	Level   string
	Format  string
	Modules map[string]string

	// File, when set, also writes records to a size-rotated file.
	File         string
	FileMaxBytes int64
	FileBackups  int
}

// Initialize sets up the logging system. It may be called again to apply a
// new configuration; existing module loggers are rebuilt.
func Initialize(config Config) {
	mutex.Lock()
	defer mutex.Unlock()

	globalConfig = config
	isInitialized = true

	if fileWriter != nil {
		_ = fileWriter.Close()
		fileWriter = nil
	}
	if config.File != "" {
		size := 100
		if config.FileMaxBytes > 0 {
			size = int((config.FileMaxBytes + megabyte - 1) / megabyte)
		}
		fileWriter = &lumberjack.Logger{
			Filename:   config.File,
			MaxSize:    size,
			MaxBackups: config.FileBackups,
		}
	}

	globalLevel := parseLevel(config.Level)
	if globalLevel == nil {
		defaultLevel := slog.LevelInfo
		globalLevel = &defaultLevel
	}
	globalLevelVar.Set(*globalLevel)

	for module, levelVar := range moduleLevelVars {
		levelVar.Set(moduleLevel(module))
		moduleLoggers[module] = slog.New(createHandler(config.Format, levelVar)).With("module", module)
	}

	slog.SetDefault(slog.New(createHandler(config.Format, globalLevelVar)))
}

// Close releases the log file, if any.
func Close() error {
	mutex.Lock()
	defer mutex.Unlock()
	if fileWriter == nil {
		return nil
	}
	err := fileWriter.Close()
	fileWriter = nil
	return err
}

// GetLogger returns a logger for the specified module, creating it if needed.
func GetLogger(module string) *slog.Logger {
	mutex.RLock()
	if logger, exists := moduleLoggers[module]; exists {
		mutex.RUnlock()
		return logger
	}
	mutex.RUnlock()

	mutex.Lock()
	defer mutex.Unlock()

	if logger, exists := moduleLoggers[module]; exists {
		return logger
	}

	levelVar := &slog.LevelVar{}
	format := "text"
	if isInitialized {
		levelVar.Set(moduleLevel(module))
		format = globalConfig.Format
	} else {
		levelVar.Set(slog.LevelInfo)
	}

	logger := slog.New(createHandler(format, levelVar)).With("module", module)
	moduleLoggers[module] = logger
	moduleLevelVars[module] = levelVar
	return logger
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// moduleLevel resolves the effective level of a module. Callers hold mutex.
func moduleLevel(module string) slog.Level {
	level := slog.LevelInfo
	if parsed := parseLevel(globalConfig.Level); parsed != nil {
		level = *parsed
	}
	if levelStr, exists := globalConfig.Modules[module]; exists {
		if parsed := parseLevel(levelStr); parsed != nil {
			level = *parsed
		}
	}
	return level
}

// createHandler builds the handler chain for the available outputs. Callers
// hold mutex.
func createHandler(format string, level slog.Leveler) slog.Handler {
	var handlers []slog.Handler

	if isOutputAvailable(output) {
		handlers = append(handlers, newFormatHandler(format, output, level))
	}
	if fileWriter != nil {
		handlers = append(handlers, newFormatHandler(format, fileWriter, level))
	}
	if journalEnabled() {
		handlers = append(handlers, NewJournalHandler(level))
	}

	switch len(handlers) {
	case 0:
		return newFormatHandler(format, output, level)
	case 1:
		return handlers[0]
	default:
		return newOutputs(handlers...)
	}
}

func newFormatHandler(format string, w io.Writer, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// isOutputAvailable reports whether w is worth writing to. Files other than
// the process's stdout are always used; stdout is skipped when it points at
// a device such as /dev/null.
func isOutputAvailable(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return w != nil
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return (mode&os.ModeCharDevice) != 0 || (mode&os.ModeNamedPipe) != 0 || (mode&os.ModeSocket) != 0 || mode.IsRegular()
}

// parseLevel converts string level to slog.Level.
func parseLevel(level string) *slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		l := slog.LevelDebug
		return &l
	case "info":
		l := slog.LevelInfo
		return &l
	case "warn", "warning":
		l := slog.LevelWarn
		return &l
	case "error":
		l := slog.LevelError
		return &l
	default:
		return nil
	}
}
