package services

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/fenilmodi00/nepal-ipo-radar/models"
	"github.com/fenilmodi00/nepal-ipo-radar/shared"
	"github.com/sirupsen/logrus"
)

// NotificationDispatcher delivers one alert for a batch of newly detected records
type NotificationDispatcher interface {
	Notify(ctx context.Context, records []models.IPORecord) error
	Name() string
}

// subscriberLister supplies extra alert recipients
type subscriberLister interface {
	ListSubscribers(ctx context.Context) ([]models.Subscriber, error)
}

// mailSender delivers a raw RFC 5322 message
type mailSender interface {
	Send(ctx context.Context, from string, recipients []string, message []byte) error
}

// EmailSettings configures the SMTP alert channel
type EmailSettings struct {
	SMTPHost          string
	SMTPPort          int
	Username          string
	Password          string
	Recipient         string
	SenderName        string
	NotifySubscribers bool
	SendTimeout       time.Duration
}

var alertTemplate = template.Must(template.New("alert").Funcs(template.FuncMap{
	"price": func(p float64) string { return strconv.FormatFloat(p, 'f', -1, 64) },
}).Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #1f2937;">
<h2 class="headline">New IPOs detected in Nepal</h2>
<p class="intro">{{len .Records}} new offering(s) found by the latest market scan.</p>
{{range .Records}}<div class="ipo" style="border:1px solid #e5e7eb; border-radius:8px; padding:12px; margin-bottom:12px;">
<h3 class="company">{{.CompanyName}} <span class="status">({{.Status}})</span></h3>
<p class="sector"><strong>Sector:</strong> {{.Sector}}</p>
<p class="share-type"><strong>Target Group:</strong> {{.ShareType}}</p>
<p class="price"><strong>Price:</strong> Rs. {{price .Price}}</p>
<p class="units"><strong>Units:</strong> {{.Units}}</p>
<p class="dates"><strong>Opens:</strong> {{.OpeningDate}} <strong>Closes:</strong> {{.ClosingDate}}</p>
{{if .Description}}<p class="description">{{.Description}}</p>{{end}}
</div>
{{end}}<p class="footer" style="font-size:12px; color:#6b7280;">Sent by Nepal IPO Radar. Always verify details with CDSC and your broker before applying.</p>
</body>
</html>
`))

// alertSubject is the subject line for a batch of n records
func alertSubject(n int) string {
	return fmt.Sprintf("🚀 New IPO Alert: %d Companies Detected!", n)
}

// RenderAlertHTML renders the alert email body
func RenderAlertHTML(records []models.IPORecord) (string, error) {
	view := make([]models.IPORecord, len(records))
	for i, record := range records {
		if strings.TrimSpace(record.ShareType) == "" {
			record.ShareType = models.DefaultShareType
		}
		view[i] = record
	}

	var buf bytes.Buffer
	if err := alertTemplate.Execute(&buf, struct{ Records []models.IPORecord }{view}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// EmailDispatcher sends one HTML alert email per batch over SMTP.
// Subscribers are Bcc'd on the same message when enabled.
type EmailDispatcher struct {
	settings    EmailSettings
	subscribers subscriberLister
	sender      mailSender
	metrics     *shared.ServiceMetrics
	logger      *logrus.Entry
}

// NewEmailDispatcher creates an SMTP-backed dispatcher
func NewEmailDispatcher(settings EmailSettings, subscribers subscriberLister) *EmailDispatcher {
	sender := &smtpSender{
		host:     settings.SMTPHost,
		port:     settings.SMTPPort,
		username: settings.Username,
		password: settings.Password,
		timeout:  settings.SendTimeout,
	}
	dispatcher := newEmailDispatcherWithSender(settings, subscribers, sender)
	sender.metrics = dispatcher.metrics
	sender.logger = dispatcher.logger
	return dispatcher
}

func newEmailDispatcherWithSender(settings EmailSettings, subscribers subscriberLister, sender mailSender) *EmailDispatcher {
	return &EmailDispatcher{
		settings:    settings,
		subscribers: subscribers,
		sender:      sender,
		metrics:     shared.NewServiceMetrics("notification_dispatcher"),
		logger:      logrus.WithField("component", "EmailDispatcher"),
	}
}

func (d *EmailDispatcher) Name() string {
	return "email"
}

// Metrics returns delivery metrics
func (d *EmailDispatcher) Metrics() *shared.ServiceMetrics {
	return d.metrics
}

// Notify sends one alert listing records. An empty batch sends nothing.
func (d *EmailDispatcher) Notify(ctx context.Context, records []models.IPORecord) error {
	if len(records) == 0 {
		return nil
	}
	startTime := time.Now()

	body, err := RenderAlertHTML(records)
	if err != nil {
		d.recordFailure(startTime)
		return shared.NewNotificationError("RENDER_FAILED", "failed to render alert email", err)
	}

	recipients := d.recipients(ctx)
	message := d.buildMessage(alertSubject(len(records)), body)

	if err := d.sender.Send(ctx, d.settings.Username, recipients, message); err != nil {
		d.recordFailure(startTime)
		return shared.NewNotificationError("SEND_FAILED", "failed to send alert email", err).
			WithDetails(map[string]int{"recipients": len(recipients), "records": len(records)})
	}

	d.metrics.RecordRequest(true, time.Since(startTime))
	d.metrics.IncrementCustomCounter("notifications_sent")
	d.logger.WithFields(logrus.Fields{
		"records":    len(records),
		"recipients": len(recipients),
		"duration":   time.Since(startTime),
	}).Info("IPO alert email sent")
	return nil
}

func (d *EmailDispatcher) recordFailure(startTime time.Time) {
	d.metrics.RecordRequest(false, time.Since(startTime))
	d.metrics.IncrementCustomCounter("notifications_failed")
}

// recipients returns the alert address plus subscribers, deduplicated.
// A subscriber lookup failure only narrows the audience.
func (d *EmailDispatcher) recipients(ctx context.Context) []string {
	recipients := []string{d.settings.Recipient}
	if !d.settings.NotifySubscribers || d.subscribers == nil {
		return recipients
	}

	subscribers, err := d.subscribers.ListSubscribers(ctx)
	if err != nil {
		d.logger.WithError(err).Warn("Failed to load subscribers; alerting the primary recipient only")
		return recipients
	}

	seen := map[string]bool{strings.ToLower(d.settings.Recipient): true}
	for _, sub := range subscribers {
		email := strings.ToLower(sub.Email)
		if seen[email] {
			continue
		}
		seen[email] = true
		recipients = append(recipients, sub.Email)
	}
	return recipients
}

// buildMessage assembles headers and body; Bcc recipients appear only in the envelope
func (d *EmailDispatcher) buildMessage(subject, htmlBody string) []byte {
	from := mail.Address{Name: d.settings.SenderName, Address: d.settings.Username}

	var msg strings.Builder
	msg.WriteString("From: " + from.String() + "\r\n")
	msg.WriteString("To: " + d.settings.Recipient + "\r\n")
	msg.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	msg.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)
	return []byte(msg.String())
}

// DisabledDispatcher stands in when SMTP credentials are missing
type DisabledDispatcher struct{}

func NewDisabledDispatcher() *DisabledDispatcher {
	return &DisabledDispatcher{}
}

func (d *DisabledDispatcher) Name() string {
	return "disabled"
}

// Notify reports that alerts are not configured
func (d *DisabledDispatcher) Notify(ctx context.Context, records []models.IPORecord) error {
	if len(records) == 0 {
		return nil
	}
	return shared.NewNotificationError("NOT_CONFIGURED", "email alerts are not configured", nil)
}

// smtpSender talks SMTP directly so the dial and the whole exchange honour ctx.
// Port 465 uses implicit TLS; other ports upgrade with STARTTLS when offered.
type smtpSender struct {
	host     string
	port     int
	username string
	password string
	timeout  time.Duration
	metrics  *shared.ServiceMetrics
	logger   *logrus.Entry
}

func (s *smtpSender) Send(ctx context.Context, from string, recipients []string, message []byte) error {
	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))

	dialer := &net.Dialer{Timeout: s.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("SMTP dial failed: %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(s.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("setting SMTP deadline: %w", err)
	}

	tlsConfig := &tls.Config{ServerName: s.host}
	if s.port == 465 {
		conn = tls.Client(conn, tlsConfig)
	}

	client, err := smtp.NewClient(conn, s.host)
	if err != nil {
		return fmt.Errorf("creating SMTP client: %w", err)
	}
	defer client.Close()

	if s.port != 465 {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				return fmt.Errorf("SMTP STARTTLS failed: %w", err)
			}
		}
	}

	if s.username != "" && s.password != "" {
		if err := client.Auth(smtp.PlainAuth("", s.username, s.password, s.host)); err != nil {
			return fmt.Errorf("SMTP auth failed: %w", err)
		}
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("SMTP MAIL command failed: %w", err)
	}
	rejected, err := acceptRecipients(client.Rcpt, recipients)
	for addr, rcptErr := range rejected {
		s.logger.WithFields(logrus.Fields{
			"recipient": addr,
			"error":     rcptErr,
		}).Warn("SMTP server rejected a Bcc recipient; skipping it")
	}
	if s.metrics != nil && len(rejected) > 0 {
		s.metrics.AddToCustomCounter("recipients_rejected", int64(len(rejected)))
	}
	if err != nil {
		return err
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("SMTP DATA command failed: %w", err)
	}
	if _, err := w.Write(message); err != nil {
		return fmt.Errorf("writing email body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing email body: %w", err)
	}

	return client.Quit()
}

// acceptRecipients issues RCPT for every address. The first address is the
// alert recipient and must be accepted; rejected Bcc addresses are returned
// and skipped.
func acceptRecipients(rcpt func(string) error, recipients []string) (map[string]error, error) {
	if len(recipients) == 0 {
		return nil, fmt.Errorf("no recipients")
	}
	if err := rcpt(recipients[0]); err != nil {
		return nil, fmt.Errorf("SMTP RCPT command failed for %s: %w", recipients[0], err)
	}

	rejected := make(map[string]error)
	for _, addr := range recipients[1:] {
		if err := rcpt(addr); err != nil {
			rejected[addr] = err
		}
	}
	return rejected, nil
}
