// Package export writes a chat transcript to a file format.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/strrl/ragchat/pkg/models"
)

// Transcript is one chat and its thread.
type Transcript struct {
	User       string             `json:"user" yaml:"user"`
	Session    models.ChatSession `json:"session" yaml:"session"`
	ExportedAt time.Time          `json:"exported_at" yaml:"exported_at"`
	Messages   []models.Message   `json:"messages" yaml:"messages"`
}

// Exporter defines the interface for all export formats
type Exporter interface {
	Export(t *Transcript, w io.Writer) error
	Extension() string
}

// Formats lists the accepted format names.
var Formats = []string{"md", "json", "yaml", "html"}

// NewExporter creates a new exporter based on format
func NewExporter(format string) (Exporter, error) {
	switch format {
	case "md", "markdown":
		return &MarkdownExporter{}, nil
	case "json":
		return &JSONExporter{}, nil
	case "yaml", "yml":
		return &YAMLExporter{}, nil
	case "html":
		return &HTMLExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s (supported: md, json, yaml, html)", format)
	}
}

func roleName(r models.Role) string {
	if r == models.RoleUser {
		return "You"
	}
	return "Assistant"
}
