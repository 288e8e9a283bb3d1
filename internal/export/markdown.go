package export

import (
	"fmt"
	"io"

	"github.com/strrl/ragchat/internal/normalize"
	"github.com/strrl/ragchat/pkg/models"
)

// MarkdownExporter writes the thread as a Markdown document. Answers are
// normalized so they read the way the chat shows them.
type MarkdownExporter struct{}

func (e *MarkdownExporter) Export(t *Transcript, w io.Writer) error {
	if _, err := fmt.Fprintf(w, "# %s\n\n", t.Session.Title); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "**Chat:** %s  \n", t.Session.ID)
	if t.User != "" {
		_, _ = fmt.Fprintf(w, "**User:** %s  \n", t.User)
	}
	if !t.Session.UpdatedAt.IsZero() {
		_, _ = fmt.Fprintf(w, "**Updated:** %s  \n", t.Session.UpdatedAt.Format("2006-01-02 15:04"))
	}
	_, _ = fmt.Fprintf(w, "**Messages:** %d\n\n", len(t.Messages))
	_, _ = fmt.Fprintf(w, "---\n\n")

	for i, msg := range t.Messages {
		content := msg.Content
		if msg.Role == models.RoleAssistant {
			content = normalize.Normalize(content)
		}
		if _, err := fmt.Fprintf(w, "### %s\n\n%s\n\n", roleName(msg.Role), content); err != nil {
			return err
		}
		if i < len(t.Messages)-1 {
			_, _ = fmt.Fprintf(w, "---\n\n")
		}
	}
	return nil
}

func (e *MarkdownExporter) Extension() string {
	return "md"
}
