package export

import (
	"html"
	"html/template"
	"io"

	"github.com/strrl/ragchat/internal/normalize"
	"github.com/strrl/ragchat/pkg/models"
)

var page = template.Must(template.New("transcript").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 52rem; margin: 2rem auto; line-height: 1.5; }
.msg { padding: .75rem 1rem; margin: 1rem 0; border-radius: .5rem; }
.user { background: #e8f0fe; }
.assistant { background: #f4f4f5; }
.role { font-weight: 600; margin-bottom: .25rem; }
.meta { color: #666; font-size: .9rem; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p class="meta">{{.ID}}{{if .User}} · {{.User}}{{end}}{{if .Updated}} · {{.Updated}}{{end}}</p>
{{range .Messages}}<div class="msg {{.Class}}">
<div class="role">{{.Role}}</div>
<div class="content">{{.Body}}</div>
</div>
{{end}}</body>
</html>
`))

type htmlMessage struct {
	Class string
	Role  string
	Body  template.HTML
}

// HTMLExporter writes a standalone page. Answers go through the same
// Markdown pipeline as the web client; questions are escaped.
type HTMLExporter struct{}

func (e *HTMLExporter) Export(t *Transcript, w io.Writer) error {
	data := struct {
		Title    string
		ID       string
		User     string
		Updated  string
		Messages []htmlMessage
	}{
		Title: t.Session.Title,
		ID:    t.Session.ID,
		User:  t.User,
	}
	if !t.Session.UpdatedAt.IsZero() {
		data.Updated = t.Session.UpdatedAt.Format("2006-01-02 15:04")
	}
	for _, msg := range t.Messages {
		data.Messages = append(data.Messages, htmlMessage{
			Class: string(msg.Role),
			Role:  roleName(msg.Role),
			Body:  messageHTML(msg),
		})
	}
	return page.Execute(w, data)
}

func messageHTML(msg models.Message) template.HTML {
	if msg.Role == models.RoleAssistant {
		msg.IsMarkdown = true
		return template.HTML(normalize.RenderMessage(msg))
	}
	return template.HTML(normalize.Breaks(html.EscapeString(msg.Content)))
}

func (e *HTMLExporter) Extension() string {
	return "html"
}
