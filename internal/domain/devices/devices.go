// Package devices classifies sessions by the device class of their user agent.
package devices

import (
	"github.com/mileusna/useragent"

	"github.com/okian/formwizard/internal/domain/model"
)

// Device classes.
const (
	Desktop = "Desktop"
	Mobile  = "Mobile"
	Tablet  = "Tablet"
	Bot     = "Bot"
	Unknown = "Unknown"
)

var order = []string{Desktop, Mobile, Tablet, Bot, Unknown}

// Classify maps a raw User-Agent string to a device class.
func Classify(ua string) string {
	if ua == "" {
		return Unknown
	}
	parsed := useragent.Parse(ua)
	switch {
	case parsed.Bot:
		return Bot
	case parsed.Tablet:
		return Tablet
	case parsed.Mobile:
		return Mobile
	case parsed.Desktop:
		return Desktop
	default:
		return Unknown
	}
}

// Breakdown counts distinct sessions per device class. A session is classified
// by the first user agent it reported; sessions that never reported one are Unknown.
func Breakdown(events []model.Event) []model.DeviceCount {
	bySession := make(map[string]string)
	for i := range events {
		e := &events[i]
		if class, seen := bySession[e.SessionID]; seen && class != Unknown {
			continue
		}
		ua := ""
		if e.Metadata.UserAgent != nil {
			ua = *e.Metadata.UserAgent
		}
		bySession[e.SessionID] = Classify(ua)
	}

	counts := make(map[string]int, len(order))
	for _, class := range bySession {
		counts[class]++
	}
	out := make([]model.DeviceCount, 0, len(counts))
	for _, class := range order {
		if n := counts[class]; n > 0 {
			out = append(out, model.DeviceCount{Device: class, Sessions: n})
		}
	}
	return out
}
