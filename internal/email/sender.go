package email

import (
	"bytes"
	"fmt"
	"log"
	"net/smtp"
	"os"
	"text/template"
)

type Sender interface {
	Send(to, subject, htmlBody string) error
}

type SMTPSender struct {
	host string
	port string
	from string
	auth smtp.Auth // nil for local dev (MailHog)
}

func NewSMTPSender() *SMTPSender {
	return &SMTPSender{
		host: getenv("SMTP_HOST", "localhost"),
		port: getenv("SMTP_PORT", "1025"),
		from: getenv("SMTP_FROM", "no-reply@amalkita.local"),
	}
}

func (s *SMTPSender) Send(to, subject, htmlBody string) error {
	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	msg := buildRFC822(s.from, to, subject, htmlBody)
	return smtp.SendMail(addr, s.auth, s.from, []string{to}, msg)
}

func buildRFC822(from, to, subject, html string) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&buf, "\r\n%s\r\n", html)
	return buf.Bytes()
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

var receiptTpl = template.Must(template.New("donationReceipt").Parse(`
<h2>Terima kasih atas donasi Anda!</h2>
<p>Campaign: <b>{{.Campaign}}</b></p>
<p>Amount: <b>{{printf "IDR %.0f" .Amount}}</b></p>
{{if .InvoiceNumber}}<p>Receipt number: <b>{{.InvoiceNumber}}</b></p>{{end}}
`))

// RenderDonationReceiptEmail builds the receipt body. InvoiceNumber may be
// empty when the accounting sync has not produced one.
func RenderDonationReceiptEmail(campaignTitle string, amount float64, invoiceNumber string) string {
	var buf bytes.Buffer
	_ = receiptTpl.Execute(&buf, map[string]any{
		"Campaign":      campaignTitle,
		"Amount":        amount,
		"InvoiceNumber": invoiceNumber,
	})
	return buf.String()
}

// LogSender writes emails to the log instead of SMTP.
type LogSender struct{}

func (LogSender) Send(to, subject, htmlBody string) error {
	log.Printf("[email] to=%s subject=%q body=%d bytes", to, subject, len(htmlBody))
	return nil
}
