package email

import (
	"bytes"
	"context"
	"fmt"
	htmltpl "html/template"
	"strings"
	texttpl "text/template"
	"time"

	"github.com/dropDatabas3/sentinel/internal/observability/logger"
)

// Notifier avisa al usuario que su verificación terminó. Es best-effort:
// los errores se loguean y nunca se propagan al pipeline.
type Notifier interface {
	VerificationComplete(ctx context.Context, n Notice)
}

// Notice datos de la notificación.
type Notice struct {
	To          string
	SubjectID   string
	CompletedAt time.Time
	AppName     string
}

// Noop no envía nada.
type Noop struct{}

func (Noop) VerificationComplete(context.Context, Notice) {}

// MailNotifier renderiza la notificación y la envía con un Sender.
type MailNotifier struct {
	sender Sender
}

func NewMailNotifier(s Sender) *MailNotifier { return &MailNotifier{sender: s} }

const subjectLine = "Your identity verification is complete"

var (
	textTpl = texttpl.Must(texttpl.New("text").Parse(
		`Hi,

Your {{.AppName}} verification finished on {{.CompletedAt.Format "2006-01-02 15:04 MST"}}.
You now have full access to your dashboard.
`))

	htmlTpl = htmltpl.Must(htmltpl.New("html").Parse(
		`<p>Hi,</p>
<p>Your <strong>{{.AppName}}</strong> verification finished on {{.CompletedAt.Format "2006-01-02 15:04 MST"}}.</p>
<p>You now have full access to your dashboard.</p>
`))
)

// Render retorna html y texto de la notificación.
func Render(n Notice) (html, text string, err error) {
	if n.AppName == "" {
		n.AppName = "Sentinel"
	}
	if n.CompletedAt.IsZero() {
		n.CompletedAt = time.Now()
	}
	var hb, tb bytes.Buffer
	if err := htmlTpl.Execute(&hb, n); err != nil {
		return "", "", fmt.Errorf("render html: %w", err)
	}
	if err := textTpl.Execute(&tb, n); err != nil {
		return "", "", fmt.Errorf("render text: %w", err)
	}
	return hb.String(), tb.String(), nil
}

func (m *MailNotifier) VerificationComplete(ctx context.Context, n Notice) {
	log := logger.From(ctx).With(logger.Component("email"), logger.Op("VerificationComplete"),
		logger.SubjectID(n.SubjectID))
	if strings.TrimSpace(n.To) == "" {
		log.Debug("no recipient, skipping notification")
		return
	}
	html, text, err := Render(n)
	if err != nil {
		log.Warn("notification render failed", logger.Err(err))
		return
	}
	if err := m.sender.Send(n.To, subjectLine, html, text); err != nil {
		log.Warn("notification not delivered", logger.Err(err))
	}
}
