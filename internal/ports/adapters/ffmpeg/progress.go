package ffmpeg

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/forPelevin/automv/internal/ports"
)

// readProgress consumes the key=value blocks written by `-progress` and
// reports out_time as a fraction of expected. It always drains r.
func readProgress(r io.Reader, expected float64, progress ports.ProgressFunc) {
	if progress == nil || expected <= 0 {
		_, _ = io.Copy(io.Discard, r)
		return
	}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok {
			continue
		}
		if f, ok := progressFraction(key, value, expected); ok {
			progress(f)
		}
	}
	_, _ = io.Copy(io.Discard, r)
}

// progressFraction maps one progress key to a fraction in [0, 1].
// out_time_ms carries microseconds as well; ffmpeg kept the name for
// compatibility.
func progressFraction(key, value string, expected float64) (float64, bool) {
	switch key {
	case "out_time_us", "out_time_ms":
		us, err := strconv.ParseInt(value, 10, 64)
		if err != nil || us < 0 {
			return 0, false
		}
		return clamp(float64(us)/1e6/expected, 0, 1), true
	case "progress":
		if value == "end" {
			return 1, true
		}
	}
	return 0, false
}

func clamp(x, a, b float64) float64 {
	if x < a {
		return a
	}
	if x > b {
		return b
	}
	return x
}
