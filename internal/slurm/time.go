package slurm

import (
	"fmt"
	"regexp"
	"strconv"
)

// Accepted time limit spellings, from most to least specific. Each
// pattern captures its fields left to right.
var timeFormats = []*regexp.Regexp{
	regexp.MustCompile(`^([0-9]+)-([0-9]{2}):([0-9]{2}):([0-9]{2})$`), // days-hours:minutes:seconds
	regexp.MustCompile(`^([0-9]{1,2}):([0-9]{2}):([0-9]{2})$`),       // hours:minutes:seconds
	regexp.MustCompile(`^([0-9]{1,2}):([0-9]{2})$`),                  // minutes:seconds
}

// ParseMinutes converts a Slurm time limit such as "1-00:00:00",
// "2:30:00" or "45:00" into whole minutes, rounding trailing seconds
// up. The REST submission path needs minutes; the sbatch header takes
// the original string.
func ParseMinutes(limit string) (int, error) {
	for _, format := range timeFormats {
		m := format.FindStringSubmatch(limit)
		if m == nil {
			continue
		}
		// Right-align the captures on days, hours, minutes, seconds.
		var parts [4]int
		offset := len(parts) - (len(m) - 1)
		for i, field := range m[1:] {
			n, err := strconv.Atoi(field)
			if err != nil {
				return 0, fmt.Errorf("invalid time limit %q: %w", limit, err)
			}
			parts[offset+i] = n
		}
		minutes := (parts[0]*24+parts[1])*60 + parts[2]
		if parts[3] > 0 {
			minutes++
		}
		return minutes, nil
	}
	return 0, fmt.Errorf("invalid time limit %q", limit)
}
