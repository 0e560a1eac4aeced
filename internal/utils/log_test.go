package utils

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestDebugErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "logs error", err: errors.New("not scanning"), want: `level=DEBUG msg="ble: stop scan" adapter=hci0 error="not scanning"`},
		{name: "nil is silent", err: nil, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{
				Level: slog.LevelDebug,
				ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
					if a.Key == slog.TimeKey {
						return slog.Attr{}
					}
					return a
				},
			}))

			DebugErr(logger, "ble: stop scan", tt.err, "adapter", "hci0")

			if got := strings.TrimSpace(buf.String()); got != tt.want {
				t.Errorf("log = %q; want %q", got, tt.want)
			}
		})
	}
}
