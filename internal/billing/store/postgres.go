package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradedesk/billing/internal/billing"
	"github.com/tradedesk/billing/pkg/id"
)

// Postgres implements every store interface on a single pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ DocumentStore = (*Postgres)(nil)
	_ ClientStore   = (*Postgres)(nil)
	_ BusinessStore = (*Postgres)(nil)
	_ ReminderStore = (*Postgres)(nil)
	_ ActivityStore = (*Postgres)(nil)
)

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const documentColumns = `id, business_id, client_id, number, kind, status, currency,
	total_cents, note, issued_at, due_at, valid_until,
	sent_at, paid_at, accepted_at, declined_at,
	job_id, accounting_id, signer_name, signature_ref,
	created_at, updated_at`

func scanDocument(row pgx.Row) (*billing.Document, error) {
	var d billing.Document
	err := row.Scan(
		&d.ID, &d.BusinessID, &d.ClientID, &d.Number, &d.Kind, &d.Status, &d.Currency,
		&d.Total, &d.Note, &d.IssuedAt, &d.DueAt, &d.ValidUntil,
		&d.SentAt, &d.PaidAt, &d.AcceptedAt, &d.DeclinedAt,
		&d.JobID, &d.AccountingID, &d.SignerName, &d.SignatureRef,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: scan document: %w", err)
	}
	return &d, nil
}

func (p *Postgres) Get(ctx context.Context, docID string) (*billing.Document, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, docID)
	return scanDocument(row)
}

func (p *Postgres) LineItems(ctx context.Context, documentID string) ([]billing.LineItem, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, document_id, description, quantity, unit_price_cents, total_cents, position
		 FROM line_items WHERE document_id = $1 ORDER BY position`, documentID)
	if err != nil {
		return nil, fmt.Errorf("store: query line items: %w", err)
	}
	defer rows.Close()

	var items []billing.LineItem
	for rows.Next() {
		var it billing.LineItem
		if err := rows.Scan(&it.ID, &it.DocumentID, &it.Description, &it.Quantity, &it.UnitPrice, &it.Total, &it.Position); err != nil {
			return nil, fmt.Errorf("store: scan line item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// Transition performs the compare-and-set status write. The WHERE
// clause on the prior status is the authoritative duplicate check: of
// two concurrent callers, exactly one matches and the other gets
// ErrStatusConflict.
func (p *Postgres) Transition(ctx context.Context, docID string, from, to billing.Status, stamp Stamp) (*billing.Document, error) {
	row := p.pool.QueryRow(ctx, `
		UPDATE documents SET
			status = $3,
			sent_at = COALESCE($4, sent_at),
			paid_at = COALESCE($5, paid_at),
			accepted_at = COALESCE($6, accepted_at),
			declined_at = COALESCE($7, declined_at),
			signer_name = COALESCE(NULLIF($8, ''), signer_name),
			signature_ref = COALESCE(NULLIF($9, ''), signature_ref),
			updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING `+documentColumns,
		docID, from, to,
		stamp.SentAt, stamp.PaidAt, stamp.AcceptedAt, stamp.DeclinedAt,
		stamp.SignerName, stamp.SignatureRef,
	)

	doc, err := scanDocument(row)
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	// No row matched: either the document is gone or its status moved
	// underneath us. Distinguish so callers can report it properly.
	if _, getErr := p.Get(ctx, docID); getErr != nil {
		return nil, getErr
	}
	return nil, ErrStatusConflict
}

func (p *Postgres) SetAccountingID(ctx context.Context, docID, remoteID string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE documents SET accounting_id = $2, updated_at = now() WHERE id = $1`,
		docID, remoteID)
	if err != nil {
		return fmt.Errorf("store: set accounting id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) ListOverdue(ctx context.Context, businessID string, asOf time.Time) ([]billing.Document, error) {
	return p.listDocuments(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE business_id = $1 AND kind = 'invoice' AND status = 'sent'
		  AND due_at IS NOT NULL AND due_at < $2
		ORDER BY due_at`, businessID, asOf)
}

func (p *Postgres) ListLapsedQuotes(ctx context.Context, businessID string, asOf time.Time) ([]billing.Document, error) {
	return p.listDocuments(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE business_id = $1 AND kind = 'quote' AND status = 'sent'
		  AND valid_until IS NOT NULL AND valid_until < $2
		ORDER BY valid_until`, businessID, asOf)
}

func (p *Postgres) listDocuments(ctx context.Context, query string, args ...any) ([]billing.Document, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query documents: %w", err)
	}
	defer rows.Close()

	var docs []billing.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

func (p *Postgres) GetClient(ctx context.Context, clientID string) (*billing.Client, error) {
	var c billing.Client
	err := p.pool.QueryRow(ctx, `
		SELECT id, business_id, name, email, phone, address, created_at, updated_at
		FROM clients WHERE id = $1`, clientID).
		Scan(&c.ID, &c.BusinessID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get client: %w", err)
	}
	return &c, nil
}

const businessColumns = `id, owner_user_id, name, abn, email, phone, address, logo_key,
	bank_name, bank_bsb, bank_account, payment_terms,
	delivery_mode, email_signature,
	smtp_host, smtp_port, smtp_username, smtp_password, smtp_from,
	gmail_refresh_token, accounting_tenant_id,
	reminders_enabled, sms_reminders_enabled, reminder_tone,
	created_at, updated_at`

func scanBusiness(row pgx.Row) (*billing.BusinessProfile, error) {
	var (
		b    billing.BusinessProfile
		smtp billing.SMTPSettings
	)
	err := row.Scan(
		&b.ID, &b.OwnerUserID, &b.Name, &b.ABN, &b.Email, &b.Phone, &b.Address, &b.LogoKey,
		&b.BankName, &b.BankBSB, &b.BankAccount, &b.PaymentTerms,
		&b.DeliveryMode, &b.EmailSignature,
		&smtp.Host, &smtp.Port, &smtp.Username, &smtp.Password, &smtp.From,
		&b.GmailRefreshToken, &b.AccountingTenantID,
		&b.RemindersEnabled, &b.SMSRemindersEnabled, &b.ReminderTone,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: scan business: %w", err)
	}
	if smtp.Host != "" {
		b.SMTP = &smtp
	}
	return &b, nil
}

func (p *Postgres) GetBusiness(ctx context.Context, businessID string) (*billing.BusinessProfile, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+businessColumns+` FROM businesses WHERE id = $1`, businessID)
	return scanBusiness(row)
}

func (p *Postgres) ListBusinesses(ctx context.Context) ([]billing.BusinessProfile, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+businessColumns+` FROM businesses ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("store: query businesses: %w", err)
	}
	defer rows.Close()

	var businesses []billing.BusinessProfile
	for rows.Next() {
		b, err := scanBusiness(rows)
		if err != nil {
			return nil, err
		}
		businesses = append(businesses, *b)
	}
	return businesses, rows.Err()
}

// Claim wins or loses the reminder tier row in one statement. The
// insert runs before any send attempt, so a crash after claiming means
// a skipped reminder, never a duplicate one.
func (p *Postgres) Claim(ctx context.Context, documentID string, tier int, at time.Time) (bool, error) {
	tag, err := p.pool.Exec(ctx, `
		INSERT INTO reminder_log (document_id, tier, sent_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (document_id, tier) DO NOTHING`,
		documentID, tier, at)
	if err != nil {
		return false, fmt.Errorf("store: claim reminder: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (p *Postgres) RecordChannels(ctx context.Context, documentID string, tier int, channels []string) error {
	if _, err := p.pool.Exec(ctx, `
		UPDATE reminder_log SET channels = $3 WHERE document_id = $1 AND tier = $2`,
		documentID, tier, channels); err != nil {
		return fmt.Errorf("store: record reminder channels: %w", err)
	}
	return nil
}

func (p *Postgres) Append(ctx context.Context, e ActivityEntry) error {
	if e.ID == "" {
		e.ID = id.NewULID()
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	if _, err := p.pool.Exec(ctx, `
		INSERT INTO activity_log (id, business_id, document_id, action, channel, detail, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.BusinessID, e.DocumentID, e.Action, e.Channel, e.Detail, e.At); err != nil {
		return fmt.Errorf("store: append activity: %w", err)
	}
	return nil
}

func (p *Postgres) ListForDocument(ctx context.Context, documentID string, limit int) ([]ActivityEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.pool.Query(ctx, `
		SELECT id, business_id, document_id, action, channel, detail, occurred_at
		FROM activity_log WHERE document_id = $1
		ORDER BY occurred_at DESC LIMIT $2`, documentID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: query activity: %w", err)
	}
	defer rows.Close()

	var entries []ActivityEntry
	for rows.Next() {
		var e ActivityEntry
		if err := rows.Scan(&e.ID, &e.BusinessID, &e.DocumentID, &e.Action, &e.Channel, &e.Detail, &e.At); err != nil {
			return nil, fmt.Errorf("store: scan activity: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
