// Package logging configures the process-wide logrus logger.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/signifo/designgen/internal/config"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const logFileName = "designgen.log"

var (
	setupOnce  sync.Once
	outputMu   sync.Mutex
	fileOutput *lumberjack.Logger
)

// LogFormatter renders entries as "[time] [level] [file:line] message key=value".
type LogFormatter struct{}

// Format implements log.Formatter.
func (m *LogFormatter) Format(entry *log.Entry) ([]byte, error) {
	var b *bytes.Buffer
	if entry.Buffer != nil {
		b = entry.Buffer
	} else {
		b = &bytes.Buffer{}
	}

	timestamp := entry.Time.Format("2006-01-02 15:04:05")
	level := entry.Level.String()
	if level == "warning" {
		level = "warn"
	}
	message := strings.TrimRight(entry.Message, "\r\n")

	if entry.HasCaller() {
		fmt.Fprintf(b, "[%s] [%-5s] [%s:%d] %s", timestamp, level, filepath.Base(entry.Caller.File), entry.Caller.Line, message)
	} else {
		fmt.Fprintf(b, "[%s] [%-5s] %s", timestamp, level, message)
	}

	if len(entry.Data) > 0 {
		keys := make([]string, 0, len(entry.Data))
		for k := range entry.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(b, " %s=%v", k, entry.Data[k])
		}
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

// SetupBaseLogger installs the formatter and caller reporting once per process.
func SetupBaseLogger() {
	setupOnce.Do(func() {
		log.SetOutput(os.Stdout)
		log.SetReportCaller(true)
		log.SetFormatter(&LogFormatter{})
		log.SetLevel(log.InfoLevel)
	})
}

// ApplyConfig sets the level from cfg.Debug and switches output between
// stdout and a rotated file under the log directory.
func ApplyConfig(cfg *config.Config) error {
	if cfg == nil {
		return nil
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}

	outputMu.Lock()
	defer outputMu.Unlock()

	if !cfg.LoggingToFile {
		log.SetOutput(os.Stdout)
		return closeFileOutput()
	}

	dir, err := cfg.ResolvedLogDir()
	if err != nil {
		return err
	}
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("logging: failed to create log directory: %w", err)
	}
	filename := filepath.Join(dir, logFileName)
	if fileOutput != nil && fileOutput.Filename == filename &&
		fileOutput.MaxSize == cfg.LogMaxSizeMB && fileOutput.MaxBackups == cfg.LogMaxBackups {
		return nil
	}
	if err = closeFileOutput(); err != nil {
		log.Warnf("logging: failed to close previous log file: %v", err)
	}
	fileOutput = &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     0,
		Compress:   false,
	}
	log.SetOutput(fileOutput)
	return nil
}

// Output returns the writer currently receiving log lines.
func Output() io.Writer {
	return log.StandardLogger().Out
}

// Close flushes and closes the rotated log file, if any.
func Close() error {
	outputMu.Lock()
	defer outputMu.Unlock()
	return closeFileOutput()
}

func closeFileOutput() error {
	if fileOutput == nil {
		return nil
	}
	err := fileOutput.Close()
	fileOutput = nil
	return err
}
