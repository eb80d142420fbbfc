package util

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

// saveLoggerState saves the current logger state for restoration
func saveLoggerState() (io.Writer, logrus.Level, logrus.Formatter) {
	return Logger.Out, Logger.Level, Logger.Formatter
}

// restoreLoggerState restores the logger to its previous state
func restoreLoggerState(out io.Writer, level logrus.Level, formatter logrus.Formatter) {
	Logger.SetOutput(out)
	Logger.SetLevel(level)
	Logger.SetFormatter(formatter)
}

func TestSetLogLevel(t *testing.T) {
	out, level, formatter := saveLoggerState()
	defer restoreLoggerState(out, level, formatter)

	tests := []struct {
		level   string
		wantErr bool
	}{
		{"trace", false},
		{"debug", false},
		{"info", false},
		{"warn", false},
		{"warning", false},
		{"error", false},
		{"invalid", true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			err := SetLogLevel(tt.level)
			if (err != nil) != tt.wantErr {
				t.Errorf("SetLogLevel(%q) error = %v, wantErr %v", tt.level, err, tt.wantErr)
			}
		})
	}
}

func TestTraceEnabled(t *testing.T) {
	out, level, formatter := saveLoggerState()
	defer restoreLoggerState(out, level, formatter)

	SetLogLevel("debug")
	if TraceEnabled() {
		t.Error("TraceEnabled() = true at debug level")
	}
	SetLogLevel("trace")
	if !TraceEnabled() {
		t.Error("TraceEnabled() = false at trace level")
	}
}

func TestLevelFiltering(t *testing.T) {
	out, level, formatter := saveLoggerState()
	defer restoreLoggerState(out, level, formatter)

	var buf bytes.Buffer
	SetLogOutput(&buf)
	SetLogLevel("warn")

	Debugf("debug %d", 1)
	Infof("info %d", 2)
	if buf.Len() != 0 {
		t.Errorf("below-level records written: %q", buf.String())
	}

	Warnf("warn %d", 3)
	Errorf("error %d", 4)
	output := buf.String()
	if !strings.Contains(output, "warn 3") || !strings.Contains(output, "error 4") {
		t.Errorf("expected warn and error records, got %q", output)
	}
}

func TestWithOperation_JSONFields(t *testing.T) {
	out, level, formatter := saveLoggerState()
	defer restoreLoggerState(out, level, formatter)

	var buf bytes.Buffer
	SetLogOutput(&buf)
	SetJSONFormat()

	WithOperation("device:leaf1", "SET-pipeline-config").Warn("rejected")

	var rec map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if rec["device"] != "device:leaf1" {
		t.Errorf("device = %v, want %q", rec["device"], "device:leaf1")
	}
	if rec["operation"] != "SET-pipeline-config" {
		t.Errorf("operation = %v, want %q", rec["operation"], "SET-pipeline-config")
	}
	if rec["msg"] != "rejected" {
		t.Errorf("msg = %v, want %q", rec["msg"], "rejected")
	}
}

func TestWithFields(t *testing.T) {
	out, level, formatter := saveLoggerState()
	defer restoreLoggerState(out, level, formatter)

	var buf bytes.Buffer
	SetLogOutput(&buf)

	WithFields(map[string]interface{}{"pipeconf": "basic", "fingerprint": 42}).Info("loaded")
	WithDevice("leaf1").Info("connected")
	WithField("remote", "10.0.0.1:9559").Info("forwarding")

	output := buf.String()
	for _, want := range []string{"pipeconf=basic", "fingerprint=42", "device=leaf1", "remote=\"10.0.0.1:9559\""} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q: %s", want, output)
		}
	}
}
