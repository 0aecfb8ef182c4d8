package observability

import (
	"errors"
	"os"
	"syscall"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		env  string
		want zapcore.Level
	}{
		{"", zap.InfoLevel},
		{"INFO", zap.InfoLevel},
		{"debug", zap.DebugLevel},
		{"  warn  ", zap.WarnLevel},
		{"Error", zap.ErrorLevel},
		{"verbose", zap.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLogLevel(tt.env).Level(); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.env, got, tt.want)
		}
	}
}

func TestNewLogger_HonoursLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	logger, err := NewLogger()
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	if logger.Core().Enabled(zap.InfoLevel) {
		t.Error("info enabled with LOG_LEVEL=warn")
	}
	if !logger.Core().Enabled(zap.WarnLevel) {
		t.Error("warn disabled with LOG_LEVEL=warn")
	}
}

// syncErrWriter discards writes and fails Sync with err.
type syncErrWriter struct{ err error }

func (w syncErrWriter) Write(p []byte) (int, error) { return len(p), nil }
func (w syncErrWriter) Sync() error                 { return w.err }

func loggerWithSyncErr(err error) *zap.Logger {
	enc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	return zap.New(zapcore.NewCore(enc, syncErrWriter{err: err}, zap.InfoLevel))
}

func TestFlushLogs(t *testing.T) {
	diskFull := &os.PathError{Op: "sync", Path: "/var/log/wind.log", Err: syscall.ENOSPC}
	tests := []struct {
		name    string
		logger  *zap.Logger
		wantErr error
	}{
		{"nil logger", nil, nil},
		{"sync ok", loggerWithSyncErr(nil), nil},
		{"stderr EINVAL", loggerWithSyncErr(&os.PathError{Op: "sync", Path: "/dev/stderr", Err: syscall.EINVAL}), nil},
		{"terminal ENOTTY", loggerWithSyncErr(&os.PathError{Op: "sync", Path: "/dev/stderr", Err: syscall.ENOTTY}), nil},
		{"real failure", loggerWithSyncErr(diskFull), syscall.ENOSPC},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := FlushLogs(tt.logger)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("FlushLogs() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("FlushLogs() error = %v, want wrapping %v", err, tt.wantErr)
			}
		})
	}
}
