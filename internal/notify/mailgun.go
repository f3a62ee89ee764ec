package notify

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/mailgun/mailgun-go/v4"
	"github.com/rs/zerolog"

	"github.com/aristath/treasury/internal/digest"
)

// MailgunConfig configures the email channel
type MailgunConfig struct {
	Domain    string
	APIKey    string
	Sender    string
	Recipient string
	APIBase   string // Overrides the Mailgun API endpoint (EU region, tests)
	Timeout   time.Duration
}

// Mailgun sends digests as email
type Mailgun struct {
	mg  mailgun.Mailgun
	cfg MailgunConfig
	log zerolog.Logger
}

// NewMailgun creates an email notifier
func NewMailgun(cfg MailgunConfig, log zerolog.Logger) *Mailgun {
	mg := mailgun.NewMailgun(cfg.Domain, cfg.APIKey)
	if cfg.APIBase != "" {
		mg.SetAPIBase(cfg.APIBase)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &Mailgun{
		mg:  mg,
		cfg: cfg,
		log: log.With().Str("component", "mailgun_notifier").Logger(),
	}
}

// Name implements Notifier
func (m *Mailgun) Name() string { return "mailgun" }

// Send implements Notifier
func (m *Mailgun) Send(ctx context.Context, msg Message) error {
	subject := msg.Subject
	if subject == "" {
		subject = "Holdings changes"
	}

	text := msg.Text
	if msg.Mode == digest.ModeHTML {
		text = stripTags(msg.Text)
	}

	message := m.mg.NewMessage(m.cfg.Sender, subject, text, m.cfg.Recipient)
	if msg.Mode == digest.ModeHTML {
		message.SetHtml("<pre style=\"font-family: sans-serif\">" + msg.Text + "</pre>")
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	resp, id, err := m.mg.Send(ctx, message)
	if err != nil {
		return fmt.Errorf("mailgun send failed: %w", err)
	}

	m.log.Debug().Str("id", id).Str("response", resp).Msg("Email queued")
	return nil
}

func stripTags(s string) string {
	r := strings.NewReplacer("<b>", "", "</b>", "", "<i>", "", "</i>", "")
	return html.UnescapeString(r.Replace(s))
}
