package executor

import (
	"io"
	"log/slog"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInitCommand_String(t *testing.T) {
	tests := []struct {
		name string
		cmd  InitCommand
		want string
	}{
		{
			name: "argv",
			cmd:  InitCommand{Argv: []string{"mkdir", "-p", "/work/out"}},
			want: "mkdir -p /work/out",
		},
		{
			name: "shell",
			cmd:  InitCommand{Shell: "cdo -f nc copy in.grb in.nc"},
			want: "cdo -f nc copy in.grb in.nc",
		},
		{
			name: "argv wins over shell",
			cmd:  InitCommand{Argv: []string{"true"}, Shell: "false"},
			want: "true",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cmd.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}
