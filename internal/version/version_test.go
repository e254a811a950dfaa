package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestInfoString(t *testing.T) {
	tests := []struct {
		name string
		info Info
		want string
	}{
		{"dev build", Info{Version: "0.1.0-dev", GoVersion: "go1.24"}, "teamslot 0.1.0-dev go1.24"},
		{"release", Info{Version: "1.2.0", Commit: "0123456789abcdef", BuildDate: "2026-03-01", GoVersion: "go1.24"}, "teamslot 1.2.0 (0123456, 2026-03-01) go1.24"},
		{"commit only", Info{Version: "1.2.0", Commit: "abc", GoVersion: "go1.24"}, "teamslot 1.2.0 (abc) go1.24"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.String(); got != tt.want {
				t.Fatalf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetReportsRuntime(t *testing.T) {
	info := Get()
	if info.GoVersion != runtime.Version() {
		t.Fatalf("GoVersion = %q", info.GoVersion)
	}
	if !strings.Contains(info.String(), Version) {
		t.Fatalf("String() %q missing version", info.String())
	}
}
