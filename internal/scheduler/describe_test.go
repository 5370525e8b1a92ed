package scheduler

import (
	"testing"

	"github.com/me/jobtree/pkg/model"
)

func TestRunDescription(t *testing.T) {
	tests := []struct {
		name   string
		c      model.Combination
		ignore []string
		want   string
	}{
		{
			name: "sorted initials",
			c:    model.Combination{"start_year": "2000", "model": "echam"},
			want: "_mecham_sy2000",
		},
		{
			name: "booleans shorten",
			c:    model.Combination{"debug": "true", "strict": "false"},
			want: "_d1_s0",
		},
		{
			name:   "ignored names",
			c:      model.Combination{"start_year": "2000", "model": "echam"},
			ignore: []string{"model"},
			want:   "_sy2000",
		},
		{
			name: "empty",
			c:    model.Combination{},
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := runDescription(tt.c, tt.ignore); got != tt.want {
				t.Errorf("runDescription(%v, %v) = %q, want %q", tt.c, tt.ignore, got, tt.want)
			}
		})
	}
}

func TestInitials(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"model", "m"},
		{"start_year", "sy"},
		{"a_b_c", "abc"},
		{"x__y", "xy"},
		{"_hidden", "h"},
	}
	for _, tt := range tests {
		if got := initials(tt.name); got != tt.want {
			t.Errorf("initials(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestCommonParams(t *testing.T) {
	tests := []struct {
		name   string
		combos []model.Combination
		want   string
	}{
		{
			name: "none",
			want: "",
		},
		{
			name: "shared key survives",
			combos: []model.Combination{
				{"model": "echam", "year": "2000"},
				{"model": "echam", "year": "2001"},
			},
			want: "model: echam",
		},
		{
			name: "nothing shared",
			combos: []model.Combination{
				{"year": "2000"},
				{"year": "2001"},
			},
			want: "",
		},
		{
			name: "identical combinations",
			combos: []model.Combination{
				{"model": "echam"},
				{"model": "echam"},
			},
			want: "model: echam",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := commonParams(tt.combos); got != tt.want {
				t.Errorf("commonParams(%v) = %q, want %q", tt.combos, got, tt.want)
			}
		})
	}
}
