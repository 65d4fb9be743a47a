// Package artifact renders a document into its attachment form and
// stores it. Rendering happens before any delivery attempt; a document
// that cannot be rendered is not sent.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tradedesk/billing/internal/billing"
	"github.com/tradedesk/billing/pkg/storage"
)

// ErrPrepareFailed wraps any failure to render or store the artifact.
var ErrPrepareFailed = errors.New("artifact: couldn't prepare document")

// Renderer produces the attachment bytes for a document.
type Renderer interface {
	Render(ctx context.Context, doc *billing.Document, b *billing.BusinessProfile, client *billing.Client, items []billing.LineItem) (content []byte, contentType string, err error)
}

// Artifact is a rendered, stored document ready to attach and link.
type Artifact struct {
	Key         string
	URL         string
	Filename    string
	ContentType string
	Content     []byte
}

// Pipeline renders and stores artifacts.
type Pipeline struct {
	renderer Renderer
	store    storage.Storage
	log      *slog.Logger
}

func NewPipeline(renderer Renderer, store storage.Storage, log *slog.Logger) *Pipeline {
	return &Pipeline{
		renderer: renderer,
		store:    store,
		log:      log,
	}
}

// Prepare renders the document and uploads the result. The stored copy
// is what the emailed view link points at; the returned Content is
// attached to the email directly.
func (p *Pipeline) Prepare(ctx context.Context, doc *billing.Document, b *billing.BusinessProfile, client *billing.Client, items []billing.LineItem) (*Artifact, error) {
	content, contentType, err := p.renderer.Render(ctx, doc, b, client, items)
	if err != nil {
		return nil, errors.Join(ErrPrepareFailed, err)
	}

	info, err := storage.PutBytes(ctx, p.store, content,
		storage.WithPrefix("artifacts/"+doc.BusinessID),
		storage.WithContentType(contentType),
	)
	if err != nil {
		return nil, errors.Join(ErrPrepareFailed, err)
	}

	// Signed link; artifacts carry client names and amounts and must
	// not be publicly listable.
	viewURL, err := p.store.URL(ctx, info.Key, storage.WithForceSigned())
	if err != nil {
		// The attachment itself is intact; send without the link.
		p.log.WarnContext(ctx, "artifact link unavailable",
			slog.String("document_id", doc.ID),
			slog.Any("error", err),
		)
		viewURL = ""
	}

	return &Artifact{
		Key:         info.Key,
		URL:         viewURL,
		Filename:    Filename(doc, contentType),
		ContentType: contentType,
		Content:     content,
	}, nil
}

// Filename is the attachment name the client sees.
func Filename(doc *billing.Document, contentType string) string {
	ext := "pdf"
	if strings.Contains(contentType, "html") {
		ext = "html"
	}
	return fmt.Sprintf("%s-%s.%s", strings.ToLower(string(doc.Kind)), doc.Number, ext)
}
