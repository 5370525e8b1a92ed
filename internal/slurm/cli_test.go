package slurm

import "testing"

func TestParseSubmitOutput(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		want    string
		wantErr bool
	}{
		{name: "plain id", out: "4242\n", want: "4242"},
		{name: "id with cluster", out: "4242;levante\n", want: "4242"},
		{name: "surrounding space", out: " 17 \n", want: "17"},
		{name: "empty", out: "", wantErr: true},
		{name: "blank line", out: "\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSubmitOutput(tt.out)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseSubmitOutput(%q) error = %v, wantErr %v", tt.out, err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("parseSubmitOutput(%q) = %q, want %q", tt.out, got, tt.want)
			}
		})
	}
}
