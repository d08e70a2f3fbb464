package internal

import (
	"log"
	"os"
	"path/filepath"
	"sync"
)

var (
	fileLogger     *log.Logger
	fileLoggerOnce sync.Once
	fileLogEnabled bool
)

// initFileLogger opens the log file in the cache directory. Logging is
// disabled when the file cannot be opened.
func initFileLogger(enabled bool, cacheDir string) {
	fileLogEnabled = enabled

	if !enabled {
		return
	}

	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		fileLogEnabled = false
		return
	}

	logPath := filepath.Join(cacheDir, "server.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fileLogEnabled = false
		return
	}

	fileLogger = log.New(logFile, "", log.LstdFlags|log.Lmicroseconds)
}

// InitFileLogging initializes server and MCP logging based on config
func InitFileLogging(config *Config) {
	fileLoggerOnce.Do(func() {
		initFileLogger(config.LogFileEnabled, config.CacheDir)
	})
}

// logf logs a formatted message if file logging is enabled
func logf(component, level, format string, args ...any) {
	if !fileLogEnabled || fileLogger == nil {
		return
	}

	fileLogger.Printf("[%s] [%s] "+format, append([]any{component, level}, args...)...)
}

// LogInfo logs an info message from the HTTP server
func LogInfo(format string, args ...any) {
	logf("HTTP", "INFO", format, args...)
}

// LogError logs an error message from the HTTP server
func LogError(format string, args ...any) {
	logf("HTTP", "ERROR", format, args...)
}

// MCPLogInfo logs an info message
func MCPLogInfo(format string, args ...any) {
	logf("MCP", "INFO", format, args...)
}

// MCPLogError logs an error message
func MCPLogError(format string, args ...any) {
	logf("MCP", "ERROR", format, args...)
}

// MCPLogDebug logs a debug message
func MCPLogDebug(format string, args ...any) {
	logf("MCP", "DEBUG", format, args...)
}
