// AngelaMos | 2026
// mailer.go

package notification

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/carterperez-dev/legalquota/internal/config"
	"github.com/carterperez-dev/legalquota/internal/outbox"
)

type emailData struct {
	AppName    string
	Title      string
	Intro      string
	ButtonURL  string
	ButtonText string
	Year       int
}

const emailHTML = `<!doctype html>
<html>
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width,initial-scale=1">
  <title>{{.Title}}</title>
  <style>
    body { margin: 0; padding: 0; background: #f8fafc; color: #0f172a;
      font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif; }
    .container { max-width: 600px; margin: 40px auto; background: #ffffff;
      border-radius: 12px; overflow: hidden; border: 1px solid #e2e8f0; }
    .header { padding: 24px 32px; font-weight: 700; color: #1e40af; border-bottom: 1px solid #e2e8f0; }
    .hero { padding: 32px; }
    h1 { margin: 0 0 16px; font-size: 24px; }
    p { margin: 0 0 20px; line-height: 1.6; color: #475569; }
    .btn { display: inline-block; padding: 14px 28px; background: #2563eb;
      color: #ffffff !important; text-decoration: none; border-radius: 10px; font-weight: 600; }
    .footer { padding: 20px 32px; color: #64748b; font-size: 13px; text-align: center;
      border-top: 1px solid #e2e8f0; }
  </style>
</head>
<body>
  <div class="container">
    <div class="header">{{.AppName}}</div>
    <div class="hero">
      <h1>{{.Title}}</h1>
      <p>{{.Intro}}</p>
      {{if .ButtonURL}}<a class="btn" href="{{.ButtonURL}}">{{.ButtonText}}</a>{{end}}
    </div>
    <div class="footer">&copy; {{.Year}} {{.AppName}}</div>
  </div>
</body>
</html>`

const emailText = `{{.Title}}

{{.Intro}}
{{if .ButtonURL}}
{{.ButtonText}}: {{.ButtonURL}}
{{end}}
-- {{.AppName}}
`

// Mailer is the email outbox channel.
type Mailer struct {
	cfg  config.SMTPConfig
	html *template.Template
	text *template.Template
	send func(ctx context.Context, to string, msg []byte) error
	now  func() time.Time
}

func NewMailer(cfg config.SMTPConfig) *Mailer {
	m := &Mailer{
		cfg:  cfg,
		html: template.Must(template.New("email_html").Parse(emailHTML)),
		text: template.Must(template.New("email_text").Parse(emailText)),
		now:  time.Now,
	}
	m.send = m.sendSMTP
	return m
}

// Deliver sends the email part of event. Events without a recipient or
// without an email template are skipped.
func (m *Mailer) Deliver(ctx context.Context, event outbox.Event) error {
	tpl, err := Lookup(event.TemplateID)
	if err != nil {
		return err
	}
	if tpl.Email == "" || event.Recipient == "" {
		return nil
	}

	msg, err := m.compose(event, tpl)
	if err != nil {
		return err
	}

	if err := m.send(ctx, event.Recipient, msg); err != nil {
		return fmt.Errorf("send %s email: %w", tpl.ID, err)
	}
	return nil
}

func (m *Mailer) compose(event outbox.Event, tpl Template) ([]byte, error) {
	subject, err := render(tpl.ID+".subject", tpl.Subject, event.Params)
	if err != nil {
		return nil, err
	}
	intro, err := render(tpl.ID+".email", tpl.Email, event.Params)
	if err != nil {
		return nil, err
	}

	data := emailData{
		AppName:    m.cfg.AppName,
		Title:      subject,
		Intro:      intro,
		ButtonText: tpl.ButtonText,
		Year:       m.now().Year(),
	}
	if url := event.Params["checkout_url"]; url != "" {
		data.ButtonURL = url
		data.ButtonText = "Complete checkout"
	} else if tpl.ButtonPath != "" && m.cfg.AppBaseURL != "" {
		data.ButtonURL = strings.TrimRight(m.cfg.AppBaseURL, "/") + tpl.ButtonPath
	}

	var htmlBody, textBody bytes.Buffer
	if err := m.html.Execute(&htmlBody, data); err != nil {
		return nil, fmt.Errorf("render email html: %w", err)
	}
	if err := m.text.Execute(&textBody, data); err != nil {
		return nil, fmt.Errorf("render email text: %w", err)
	}

	boundary := fmt.Sprintf("alt_%d", m.now().UnixNano())

	var msg bytes.Buffer
	write := func(format string, a ...any) { fmt.Fprintf(&msg, format, a...) }

	write("From: %s\r\n", m.fromHeader())
	write("To: %s\r\n", event.Recipient)
	write("Subject: %s\r\n", subject)
	write("Date: %s\r\n", m.now().Format(time.RFC1123Z))
	write("MIME-Version: 1.0\r\n")
	write("Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)

	write("--%s\r\n", boundary)
	write("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	write("%s\r\n\r\n", textBody.String())

	write("--%s\r\n", boundary)
	write("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	write("%s\r\n\r\n", htmlBody.String())

	write("--%s--\r\n", boundary)

	return msg.Bytes(), nil
}

func (m *Mailer) fromHeader() string {
	if m.cfg.FromName == "" {
		return m.cfg.From
	}
	return fmt.Sprintf("%q <%s>", m.cfg.FromName, m.cfg.From)
}

func (m *Mailer) sendSMTP(ctx context.Context, to string, msg []byte) error {
	addr := net.JoinHostPort(m.cfg.Host, fmt.Sprint(m.cfg.Port))
	tlsCfg := &tls.Config{ServerName: m.cfg.Host, MinVersion: tls.VersionTLS12}

	var (
		conn net.Conn
		err  error
	)
	if m.cfg.UseSSL {
		dialer := &tls.Dialer{Config: tlsCfg}
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	} else {
		var dialer net.Dialer
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	defer conn.Close() //nolint:errcheck // closed after QUIT

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline) //nolint:errcheck // best effort
	}

	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Quit() //nolint:errcheck // message already accepted or failed

	if !m.cfg.UseSSL {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(tlsCfg); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
		}
	}

	if m.cfg.Username != "" {
		auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := c.Mail(m.cfg.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt: %w", err)
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	return w.Close()
}
