package delivery

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/tradedesk/billing/internal/billing"
	"github.com/tradedesk/billing/pkg/mailer"
	"github.com/tradedesk/billing/pkg/sanitizer"
)

//go:embed templates
var templatesFS embed.FS

// Composer turns a document plus its parties into a ready-to-send
// email. Bodies are markdown templates; the owner's custom note is
// stripped to plain text before it enters the template so client input
// can never smuggle markup into the message.
type Composer struct {
	renderer *mailer.Renderer
}

func NewComposer() *Composer {
	sub, err := fs.Sub(templatesFS, "templates")
	if err != nil {
		panic(err)
	}
	return &Composer{renderer: mailer.NewRenderer(sub)}
}

type documentData struct {
	Number       string
	BusinessName string
	ClientName   string
	Total        string
	DueDate      string
	ValidUntil   string
	Note         string
	ViewURL      string
	BankDetails  string
	PaymentTerms string
}

// Document composes the outbound email for a send. note overrides the
// document's stored note when non-empty (the "add a message" box on
// the send screen).
func (c *Composer) Document(doc *billing.Document, b *billing.BusinessProfile, client *billing.Client, note, viewURL string, attachments []mailer.Attachment) (*mailer.Email, error) {
	if note == "" {
		note = doc.Note
	}

	data := documentData{
		Number:       doc.Number,
		BusinessName: b.Name,
		ClientName:   client.Name,
		Total:        doc.Total.Format(doc.Currency),
		Note:         sanitizer.StripHTML(note),
		ViewURL:      viewURL,
		PaymentTerms: b.PaymentTerms,
	}
	if doc.DueAt != nil {
		data.DueDate = doc.DueAt.Format("2 Jan 2006")
	}
	if doc.ValidUntil != nil {
		data.ValidUntil = doc.ValidUntil.Format("2 Jan 2006")
	}
	if doc.Kind == billing.KindInvoice {
		data.BankDetails = bankDetails(b)
	}

	tmpl := "send_invoice.md"
	if doc.Kind == billing.KindQuote {
		tmpl = "send_quote.md"
	}

	return c.compose(tmpl, data, b, client, attachments)
}

// Receipt composes the best-effort payment confirmation email.
func (c *Composer) Receipt(doc *billing.Document, b *billing.BusinessProfile, client *billing.Client) (*mailer.Email, error) {
	data := documentData{
		Number:       doc.Number,
		BusinessName: b.Name,
		ClientName:   client.Name,
		Total:        doc.Total.Format(doc.Currency),
	}
	return c.compose("receipt.md", data, b, client, nil)
}

func (c *Composer) compose(tmpl string, data documentData, b *billing.BusinessProfile, client *billing.Client, attachments []mailer.Attachment) (*mailer.Email, error) {
	result, err := c.renderer.Render("base.html", tmpl, data)
	if err != nil {
		return nil, fmt.Errorf("delivery: compose %s: %w", tmpl, err)
	}

	subject, err := renderSubject(result.Metadata, data)
	if err != nil {
		return nil, fmt.Errorf("delivery: compose %s: %w", tmpl, err)
	}

	html := result.HTML
	if sig := sanitizer.SanitizeNote(b.EmailSignature); sig != "" {
		html += "\n<div class=\"signature\">" + sig + "</div>"
	}

	return &mailer.Email{
		To:          []string{mailer.Recipient(client.Name, client.Email)},
		ReplyTo:     b.Email,
		Subject:     subject,
		HTML:        html,
		Text:        result.Text,
		Attachments: attachments,
		Tags:        mailer.SimpleTags("billing"),
	}, nil
}

// Subjects in frontmatter may reference template fields, e.g.
// "Invoice {{.Number}} from {{.BusinessName}}".
func renderSubject(metadata map[string]any, data any) (string, error) {
	raw, ok := metadata["Subject"].(string)
	if !ok || raw == "" {
		return "", errors.New("template has no subject")
	}
	return mailer.RenderSubject(raw, data)
}

func bankDetails(b *billing.BusinessProfile) string {
	if b.BankAccount == "" || b.BankBSB == "" {
		return ""
	}
	details := fmt.Sprintf("BSB: %s  \nAccount: %s", b.BankBSB, b.BankAccount)
	if b.BankName != "" {
		details = fmt.Sprintf("Bank: %s  \n%s", b.BankName, details)
	}
	return details
}
