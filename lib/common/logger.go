package common

import (
	"fmt"
	stdlog "log"
	"os"
	"strings"

	"github.com/lni/dragonboat/v4/logger"
)

// --------------------------------------------------------------------------
// Custom Logger (implements dragonboats logger.ILogger)
// --------------------------------------------------------------------------

// tsLogger implements the ILogger interface with custom formatting
type tsLogger struct {
	name   string
	level  logger.LogLevel
	logger *stdlog.Logger
}

func (l *tsLogger) SetLevel(level logger.LogLevel) {
	l.level = level
}

func (l *tsLogger) Debugf(format string, args ...interface{}) {
	if l.level >= logger.DEBUG {
		l.log("DEBUG", format, args...)
	}
}

func (l *tsLogger) Infof(format string, args ...interface{}) {
	if l.level >= logger.INFO {
		l.log("INFO", format, args...)
	}
}

func (l *tsLogger) Warningf(format string, args ...interface{}) {
	if l.level >= logger.WARNING {
		l.log("WARN", format, args...)
	}
}

func (l *tsLogger) Errorf(format string, args ...interface{}) {
	if l.level >= logger.ERROR {
		l.log("ERROR", format, args...)
	}
}

func (l *tsLogger) Panicf(format string, args ...interface{}) {
	if l.level >= logger.CRITICAL {
		panic(fmt.Sprintf(format, args...))
	}
}

// log formats and writes a log message. this internal helper is used by the public methods
func (l *tsLogger) log(levelStr string, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	l.logger.Printf("%-5s | %-15s | %s", levelStr, l.name, message)
}

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

// CreateLogger creates a logger for a package. It is registered as dragonboat logger factory by InitLoggers.
// Logs go to stderr, so commands can write their results to stdout.
func CreateLogger(pkgName string) logger.ILogger {
	stdLogger := stdlog.New(os.Stderr, "", stdlog.Ldate|stdlog.Ltime)

	return &tsLogger{
		name:   pkgName,
		level:  logger.INFO,
		logger: stdLogger,
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// ParseLogLevel converts a string level to logger.LogLevel
func ParseLogLevel(level string) (logger.LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG, nil
	case "info":
		return logger.INFO, nil
	case "warning", "warn":
		return logger.WARNING, nil
	case "error":
		return logger.ERROR, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error", level)
	}
}

// --------------------------------------------------------------------------
// Logger initialization
// --------------------------------------------------------------------------

// dragonboatLoggers are the loggers created by dragonboat itself
var dragonboatLoggers = []string{"raft", "raftdb", "rsm", "transport", "dragonboat", "grpc", "util", "logdb"}

// customLoggers are the loggers of this module
var customLoggers = []string{"cache", "monitor", "store", "badger", "cmd"}

// InitLoggers installs the custom log format and sets the level of all loggers.
// The dragonboat loggers are only verbose at debug level, they stay at warning level otherwise.
func InitLoggers(level string) error {
	lvl, err := ParseLogLevel(level)
	if err != nil {
		return err
	}

	// Set as the global logger factory for Dragonboat
	logger.SetLoggerFactory(CreateLogger)

	raftLvl := lvl
	if lvl == logger.INFO {
		raftLvl = logger.WARNING
	}
	for _, name := range dragonboatLoggers {
		logger.GetLogger(name).SetLevel(raftLvl)
	}
	for _, name := range customLoggers {
		logger.GetLogger(name).SetLevel(lvl)
	}
	return nil
}
