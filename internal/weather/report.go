package weather

import (
	"fmt"
	"strings"
	"time"
)

// FormatReport renders the per-period summaries as a human readable report.
func FormatReport(loc Location, date time.Time, summaries []PeriodSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Weather Report for %s - %s\n", loc.Name(), date.Format(DateLayout))
	b.WriteString(strings.Repeat("=", 50))
	b.WriteString("\n")

	if len(summaries) == 0 {
		b.WriteString("\nNo observations.\n")
		return b.String()
	}

	for _, s := range summaries {
		name := string(s.Period)
		fmt.Fprintf(&b, "\n%s%s (%d samples):\n", strings.ToUpper(name[:1]), name[1:], s.Samples)
		fmt.Fprintf(&b, "Temperature: %.1f°C\n", s.AvgTemperature)
		fmt.Fprintf(&b, "Feels like: %.1f°C\n", s.AvgFeelsLike)
		fmt.Fprintf(&b, "Humidity: %.1f%%\n", s.AvgHumidity)
		fmt.Fprintf(&b, "Wind Speed: %.1f km/h\n", s.AvgWindSpeed)
		fmt.Fprintf(&b, "Weather: %s\n", s.Condition)
	}
	return b.String()
}
