package transcript

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/zhouzirui/os1/backend/internal/model/transcript"
	"gopkg.in/yaml.v3"
)

// Format 导出格式。
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatText Format = "text"
)

// ParseFormat maps a user supplied name to a Format, defaulting to JSON.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "text", "txt":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unsupported transcript format: %q", name)
	}
}

// ContentType returns the HTTP content type for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatYAML:
		return "application/yaml"
	case FormatText:
		return "text/plain; charset=utf-8"
	default:
		return "application/json"
	}
}

// Export writes events to w in the requested format.
func Export(w io.Writer, events []transcript.Event, format Format) error {
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		defer func() { _ = enc.Close() }()
		return enc.Encode(events)
	case FormatText:
		for _, ev := range events {
			if _, err := fmt.Fprintln(w, FormatLine(ev)); err != nil {
				return err
			}
		}
		return nil
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(events)
	}
}

// FormatLine renders one event the way the console shows it.
func FormatLine(ev transcript.Event) string {
	return fmt.Sprintf("[%s] %s: %s", ev.Timestamp.Local().Format("15:04:05"), ev.Speaker, ev.Text)
}
