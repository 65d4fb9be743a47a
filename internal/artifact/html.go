package artifact

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"

	"github.com/tradedesk/billing/internal/billing"
)

//go:embed templates/document.html
var documentTemplateFS embed.FS

// HTMLRenderer renders the print-ready HTML form of a document. The
// output opens and prints cleanly from any mail client; PDF conversion
// happens downstream when a converter service is configured.
type HTMLRenderer struct {
	tmpl *template.Template
}

func NewHTMLRenderer() *HTMLRenderer {
	return &HTMLRenderer{
		tmpl: template.Must(template.ParseFS(documentTemplateFS, "templates/document.html")),
	}
}

type documentView struct {
	Title        string
	Number       string
	Business     *billing.BusinessProfile
	Client       *billing.Client
	IssuedAt     string
	DueAt        string
	ValidUntil   string
	Items        []lineItemView
	Total        string
	Note         string
	BankDetails  bool
	PaymentTerms string
}

type lineItemView struct {
	Description string
	Quantity    string
	UnitPrice   string
	Total       string
}

func (r *HTMLRenderer) Render(_ context.Context, doc *billing.Document, b *billing.BusinessProfile, client *billing.Client, items []billing.LineItem) ([]byte, string, error) {
	view := documentView{
		Title:        titleFor(doc.Kind),
		Number:       doc.Number,
		Business:     b,
		Client:       client,
		IssuedAt:     doc.IssuedAt.Format("2 Jan 2006"),
		Total:        doc.Total.Format(doc.Currency),
		Note:         doc.Note,
		BankDetails:  doc.Kind == billing.KindInvoice && b.BankAccount != "",
		PaymentTerms: b.PaymentTerms,
	}
	if doc.DueAt != nil {
		view.DueAt = doc.DueAt.Format("2 Jan 2006")
	}
	if doc.ValidUntil != nil {
		view.ValidUntil = doc.ValidUntil.Format("2 Jan 2006")
	}

	for _, it := range items {
		view.Items = append(view.Items, lineItemView{
			Description: it.Description,
			Quantity:    formatQuantity(it.Quantity),
			UnitPrice:   it.UnitPrice.Format(doc.Currency),
			Total:       it.Total.Format(doc.Currency),
		})
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, view); err != nil {
		return nil, "", fmt.Errorf("artifact: render html: %w", err)
	}
	return buf.Bytes(), "text/html; charset=utf-8", nil
}

func titleFor(kind billing.Kind) string {
	if kind == billing.KindQuote {
		return "Quote"
	}
	return "Tax Invoice"
}

func formatQuantity(q float64) string {
	if q == float64(int64(q)) {
		return fmt.Sprintf("%d", int64(q))
	}
	return fmt.Sprintf("%.2f", q)
}
