package logger

// SetupLogger builds the process-wide logger from the runtime settings.
func SetupLogger(logLevel string, logJSON, logSource bool) Logger {
	level := LogLevel(logLevel)
	switch level {
	case DebugLevel, InfoLevel, WarnLevel, ErrorLevel, DisabledLevel:
	default:
		level = InfoLevel
	}
	cfg := DefaultConfig()
	cfg.Level = level
	cfg.JSON = logJSON
	cfg.AddSource = logSource
	l := NewLogger(cfg)
	defaultLogger = l
	return l
}
