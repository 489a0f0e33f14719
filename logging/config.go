package logging

// Config defines the structure for the logging section of testwatch.yml.
type Config struct {
	// Level is the minimum log level to output (e.g., "debug", "info", "warn", "error").
	// Can be overridden by the TESTWATCH_LOG_LEVEL environment variable.
	Level string `json:"level,omitempty" yaml:"level,omitempty" jsonschema:"enum=trace,enum=debug,enum=info,enum=warn,enum=warning,enum=error"`

	// ReportCaller, if true, includes the file, line, and function name in the log output.
	// Can be enabled with the TESTWATCH_LOG_CALLER=true environment variable.
	ReportCaller bool `json:"report_caller,omitempty" yaml:"report_caller,omitempty"`

	// File configures logging to a file.
	File FileSinkConfig `json:"file,omitempty" yaml:"file,omitempty"`

	// Format configures the appearance of the log output.
	Format FormatConfig `json:"format,omitempty" yaml:"format,omitempty"`
}

// FileSinkConfig configures the file logging sink.
type FileSinkConfig struct {
	Enabled bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	// Path is the full path to the log file.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// FormatConfig controls the log output format.
type FormatConfig struct {
	// Preset can be "default" (rich text), "simple" (minimal text), or "json".
	Preset string `json:"preset,omitempty" yaml:"preset,omitempty" jsonschema:"enum=default,enum=simple,enum=json"`
	// DisableTimestamp disables the timestamp from the "default" and "simple" formats.
	DisableTimestamp bool `json:"disable_timestamp,omitempty" yaml:"disable_timestamp,omitempty"`
	// DisableComponent disables the component name from the "default" and "simple" formats.
	DisableComponent bool `json:"disable_component,omitempty" yaml:"disable_component,omitempty"`
	// StructuredToStderr controls when structured logs are sent to stderr.
	// Can be "auto" (default), "always", or "never".
	StructuredToStderr string `json:"structured_to_stderr,omitempty" yaml:"structured_to_stderr,omitempty" jsonschema:"enum=auto,enum=always,enum=never"`
}
