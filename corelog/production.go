package corelog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Format selects the on-the-wire shape of log lines.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Config configures a ProductionLogger.
type Config struct {
	// Level is the minimum level to emit for Debug calls ("debug"
	// enables them; anything else suppresses them).
	Level string
	// Format selects JSON or human-readable text output.
	Format Format
	// Output is "stdout" or "stderr"; defaults to stdout.
	Output string
	// ServiceName is attached to every log line.
	ServiceName string
	// Component is the default component tag; overridden per-call by
	// WithComponent.
	Component string
}

// ProductionLogger is the default Logger implementation: JSON lines
// suitable for log aggregation, or human-readable text for local
// development, chosen by Config.Format.
type ProductionLogger struct {
	debug       bool
	serviceName string
	component   string
	format      Format
	output      io.Writer
}

// NewProductionLogger builds a ProductionLogger from Config.
func NewProductionLogger(cfg Config) *ProductionLogger {
	output := io.Writer(os.Stdout)
	if cfg.Output == "stderr" {
		output = os.Stderr
	}
	format := cfg.Format
	if format == "" {
		format = FormatText
	}
	component := cfg.Component
	if component == "" {
		component = "orchestrator"
	}
	return &ProductionLogger{
		debug:       strings.EqualFold(cfg.Level, "debug"),
		serviceName: cfg.ServiceName,
		component:   component,
		format:      format,
		output:      output,
	}
}

// WithComponent returns a logger that tags every line with component,
// sharing the same output and level configuration.
func (p *ProductionLogger) WithComponent(component string) Logger {
	clone := *p
	clone.component = component
	return &clone
}

func (p *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	p.logEvent("INFO", msg, fields)
}
func (p *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	p.logEvent("ERROR", msg, fields)
}
func (p *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	p.logEvent("WARN", msg, fields)
}
func (p *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	if p.debug {
		p.logEvent("DEBUG", msg, fields)
	}
}

func (p *ProductionLogger) InfoWithContext(_ context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("INFO", msg, fields)
}
func (p *ProductionLogger) ErrorWithContext(_ context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("ERROR", msg, fields)
}
func (p *ProductionLogger) WarnWithContext(_ context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("WARN", msg, fields)
}
func (p *ProductionLogger) DebugWithContext(_ context.Context, msg string, fields map[string]interface{}) {
	if p.debug {
		p.logEvent("DEBUG", msg, fields)
	}
}

func (p *ProductionLogger) logEvent(level, msg string, fields map[string]interface{}) {
	timestamp := time.Now().UTC().Format(time.RFC3339)

	if p.format == FormatJSON {
		entry := map[string]interface{}{
			"timestamp": timestamp,
			"level":     level,
			"service":   p.serviceName,
			"component": p.component,
			"message":   msg,
		}
		for k, v := range fields {
			entry[k] = v
		}
		if data, err := json.Marshal(entry); err == nil {
			fmt.Fprintln(p.output, string(data))
		}
		return
	}

	var fieldStr strings.Builder
	for k, v := range fields {
		fmt.Fprintf(&fieldStr, " %s=%v", k, v)
	}
	fmt.Fprintf(p.output, "%s [%s] [%s/%s] %s%s\n",
		timestamp, level, p.serviceName, p.component, msg, fieldStr.String())
}
