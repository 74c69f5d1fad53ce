package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/dittorahmat/amal-kita/internal/donation"
)

// Repository wraps a *sql.DB with the campaign/donation/sequence queries.
type Repository struct {
	DB *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{DB: db}
}

func (r *Repository) available() bool {
	return r != nil && r.DB != nil
}

// Campaign ops

func (r *Repository) InsertCampaign(ctx context.Context, c donation.Campaign) error {
	if !r.available() {
		return fmt.Errorf("database not initialized")
	}
	query := `
		INSERT INTO campaigns (id, title, description, organizer, target_amount, category, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			organizer = EXCLUDED.organizer,
			target_amount = EXCLUDED.target_amount,
			category = EXCLUDED.category,
			updated_at = CURRENT_TIMESTAMP
	`
	_, err := r.DB.ExecContext(ctx, query, c.ID, c.Title, c.Description, c.Organizer, c.TargetAmount, c.Category, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert campaign: %w", err)
	}
	log.Printf("[DB] Inserted/Updated campaign: %s", c.ID)
	return nil
}

func (r *Repository) GetCampaign(ctx context.Context, id string) (donation.Campaign, error) {
	var c donation.Campaign
	if !r.available() {
		return c, fmt.Errorf("database not initialized")
	}
	query := `
		SELECT c.id, c.title, c.description, c.organizer, c.target_amount, c.category, c.created_at,
		       COALESCE(SUM(d.amount), 0), COUNT(d.id)
		FROM campaigns c
		LEFT JOIN donations d ON d.campaign_id = c.id
		WHERE c.id = $1
		GROUP BY c.id, c.title, c.description, c.organizer, c.target_amount, c.category, c.created_at
	`
	err := r.DB.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.Title, &c.Description, &c.Organizer, &c.TargetAmount, &c.Category, &c.CreatedAt,
		&c.CurrentAmount, &c.DonorCount,
	)
	if err != nil {
		return donation.Campaign{}, fmt.Errorf("failed to get campaign %s: %w", id, err)
	}
	return c, nil
}

func (r *Repository) ListCampaigns(ctx context.Context) ([]donation.Campaign, error) {
	if !r.available() {
		return nil, fmt.Errorf("database not initialized")
	}
	query := `
		SELECT c.id, c.title, c.description, c.organizer, c.target_amount, c.category, c.created_at,
		       COALESCE(SUM(d.amount), 0), COUNT(d.id)
		FROM campaigns c
		LEFT JOIN donations d ON d.campaign_id = c.id
		GROUP BY c.id, c.title, c.description, c.organizer, c.target_amount, c.category, c.created_at
		ORDER BY c.created_at DESC
		LIMIT 100
	`
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query campaigns: %w", err)
	}
	defer rows.Close()

	var list []donation.Campaign
	for rows.Next() {
		var c donation.Campaign
		if err := rows.Scan(&c.ID, &c.Title, &c.Description, &c.Organizer, &c.TargetAmount, &c.Category, &c.CreatedAt,
			&c.CurrentAmount, &c.DonorCount); err != nil {
			return nil, fmt.Errorf("failed to scan campaign: %w", err)
		}
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating campaigns: %w", err)
	}
	return list, nil
}

// Donation ops

func (r *Repository) InsertDonation(ctx context.Context, d donation.Donation) error {
	if !r.available() {
		return fmt.Errorf("database not initialized")
	}
	query := `
		INSERT INTO donations (id, campaign_id, donor_name, donor_email, amount, message, sync_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := r.DB.ExecContext(ctx, query,
		d.ID, d.CampaignID, d.Donor.Name, d.Donor.Email, d.Donor.Amount, d.Donor.Message, d.SyncStatus, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert donation: %w", err)
	}
	log.Printf("[DB] Inserted donation: %s (campaign %s)", d.ID, d.CampaignID)
	return nil
}

func (r *Repository) GetDonation(ctx context.Context, id string) (donation.Donation, error) {
	var d donation.Donation
	if !r.available() {
		return d, fmt.Errorf("database not initialized")
	}
	query := `
		SELECT id, campaign_id, donor_name, donor_email, amount, message,
		       COALESCE(invoice_id, 0), COALESCE(invoice_number, ''), sync_status, created_at
		FROM donations
		WHERE id = $1
	`
	err := r.DB.QueryRowContext(ctx, query, id).Scan(
		&d.ID, &d.CampaignID, &d.Donor.Name, &d.Donor.Email, &d.Donor.Amount, &d.Donor.Message,
		&d.InvoiceID, &d.InvoiceNumber, &d.SyncStatus, &d.CreatedAt,
	)
	if err != nil {
		return donation.Donation{}, fmt.Errorf("failed to get donation %s: %w", id, err)
	}
	d.Donor.ID = d.ID
	d.Donor.Timestamp = d.CreatedAt
	return d, nil
}

// MarkDonationSynced records a successful invoice push.
func (r *Repository) MarkDonationSynced(ctx context.Context, donationID string, invoiceID int64, invoiceNumber string) error {
	if !r.available() {
		return fmt.Errorf("database not initialized")
	}
	query := `
		UPDATE donations
		SET invoice_id = $1, invoice_number = $2, sync_status = $3, updated_at = CURRENT_TIMESTAMP
		WHERE id = $4
	`
	_, err := r.DB.ExecContext(ctx, query, invoiceID, invoiceNumber, donation.SyncDone, donationID)
	if err != nil {
		return fmt.Errorf("failed to mark donation synced: %w", err)
	}
	log.Printf("[DB] Donation %s synced to invoice %d (%s)", donationID, invoiceID, invoiceNumber)
	return nil
}

// MarkDonationSyncFailed records the failure reason. The donation itself
// stays valid; only the invoice link is missing.
func (r *Repository) MarkDonationSyncFailed(ctx context.Context, donationID, reason string) error {
	if !r.available() {
		return fmt.Errorf("database not initialized")
	}
	query := `
		UPDATE donations
		SET sync_status = $1, sync_error = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $3
	`
	_, err := r.DB.ExecContext(ctx, query, donation.SyncFailed, reason, donationID)
	if err != nil {
		return fmt.Errorf("failed to mark donation sync failed: %w", err)
	}
	log.Printf("[DB] Donation %s sync failed: %s", donationID, reason)
	return nil
}

// Invoice sequence ops

// NextInvoiceSequence atomically advances and returns the per-day invoice
// counter for dateKey (YYYY-MM-DD).
func (r *Repository) NextInvoiceSequence(ctx context.Context, dateKey string) (int, error) {
	if !r.available() {
		return 0, fmt.Errorf("database not initialized")
	}
	query := `
		INSERT INTO invoice_sequences (date_key, seq)
		VALUES ($1, 1)
		ON CONFLICT (date_key) DO UPDATE SET seq = invoice_sequences.seq + 1
		RETURNING seq
	`
	var seq int
	if err := r.DB.QueryRowContext(ctx, query, dateKey).Scan(&seq); err != nil {
		return 0, fmt.Errorf("failed to advance invoice sequence for %s: %w", dateKey, err)
	}
	return seq, nil
}

// SequenceSource adapts the repository to the synthesizer's Sequencer
// dependency without importing this package there.
type SequenceSource struct {
	Repo *Repository
}

func (s SequenceSource) Next(ctx context.Context, dateKey string) (int, error) {
	return s.Repo.NextInvoiceSequence(ctx, dateKey)
}
