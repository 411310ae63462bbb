package logger

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	PVHARNESS_LOG_FILE  = "PVHARNESS_LOG_FILE"  // File to mirror log output to, in JSON form
	PVHARNESS_LOG_LEVEL = "PVHARNESS_LOG_LEVEL" // Minimum level for the log file (defaults to debug)

	verbosityFlagName      = "verbose"
	verbosityFlagShortName = "v"
)

type Logger struct {
	logr.Logger
	name        string
	atomicLevel zap.AtomicLevel
	flush       func()
}

// New builds a logger that writes human-readable output to stderr and,
// when PVHARNESS_LOG_FILE is set, mirrors machine-readable JSON to that file.
func New(name string) *Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	consoleEncoder := zapcore.NewConsoleEncoder(encoderConfig)

	consoleAtomicLevel := zap.NewAtomicLevel()
	consoleAtomicLevel.SetLevel(zapcore.InfoLevel)

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stderr), consoleAtomicLevel),
	}

	var fileLogErr error
	if fileCore, err := getFileLogCore(encoderConfig); err != nil {
		if !errors.Is(err, errFileLogNotEnabled) {
			fileLogErr = err
		}
	} else {
		cores = append(cores, fileCore)
	}

	zapLogger := zap.New(zapcore.NewTee(cores...))
	log := zapr.NewLogger(zapLogger).WithName(name)

	if fileLogErr != nil {
		log.Error(fileLogErr, "failed to enable log file output")
		fmt.Fprintf(os.Stderr, "failed to enable log file output: %v\n", fileLogErr)
	}

	return &Logger{
		Logger:      log,
		name:        name,
		atomicLevel: consoleAtomicLevel,
		flush: func() {
			_ = zapLogger.Sync()
		},
	}
}

func (l *Logger) WithName(name string) *Logger {
	l.Logger = l.Logger.WithName(name)
	return l
}

func (l *Logger) SetLevel(level zapcore.Level) {
	l.atomicLevel.SetLevel(level)
}

func (l *Logger) Flush() {
	l.flush()
}

// AddLevelFlag registers the verbosity flag so the console log level can be
// raised from the command line (e.g. -v=debug or -v=3).
func (l *Logger) AddLevelFlag(fs *pflag.FlagSet) {
	levelVal := NewLevelFlagValue(func(level zapcore.Level) {
		l.SetLevel(level)
	})
	fs.VarP(&levelVal, verbosityFlagName, verbosityFlagShortName, "Logging verbosity level. One of 'debug', 'info', or 'error', or a positive integer for increasing debug verbosity.")
}

var errFileLogNotEnabled = errors.New("log file not enabled")

func getFileLogCore(encoderConfig zapcore.EncoderConfig) (zapcore.Core, error) {
	logPath, found := os.LookupEnv(PVHARNESS_LOG_FILE)
	if !found || logPath == "" {
		return nil, errFileLogNotEnabled
	}

	logLevel := zapcore.DebugLevel
	if levelStr, ok := os.LookupEnv(PVHARNESS_LOG_LEVEL); ok {
		parsed, err := StringToLevel(levelStr, zapcore.DebugLevel)
		if err != nil {
			return nil, fmt.Errorf("failed to parse log file level: %w", err)
		}
		logLevel = parsed
	}

	logOutput, err := os.OpenFile(logPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	logEncoder := zapcore.NewJSONEncoder(encoderConfig)
	return zapcore.NewCore(logEncoder, zapcore.AddSync(logOutput), zap.NewAtomicLevelAt(logLevel)), nil
}
