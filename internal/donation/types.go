// Package donation holds the domain records shared between the HTTP API,
// the durable store and the Odoo sync pipeline.
package donation

// Donor is the giving party as captured by the donation form. Timestamp is
// epoch milliseconds. Message and Email are optional.
type Donor struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Amount    float64 `json:"amount"`
	Message   string  `json:"message,omitempty"`
	Email     string  `json:"email,omitempty"`
	Timestamp int64   `json:"timestamp"`
}

// Campaign is the fundraising target. The sync pipeline only reads ID and
// Title; the rest backs the public API.
type Campaign struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	Description   string  `json:"description,omitempty"`
	Organizer     string  `json:"organizer,omitempty"`
	TargetAmount  float64 `json:"targetAmount,omitempty"`
	CurrentAmount float64 `json:"currentAmount,omitempty"`
	DonorCount    int     `json:"donorCount,omitempty"`
	Category      string  `json:"category,omitempty"`
	CreatedAt     int64   `json:"createdAt,omitempty"`
}

// Sync status of a donation's invoice in the accounting system. A donation
// is valid regardless of this status; the invoice is strictly best-effort.
const (
	SyncPending = "pending"
	SyncDone    = "synced"
	SyncFailed  = "failed"
)

// Donation is the persisted record joining a donor to a campaign.
type Donation struct {
	ID            string `json:"id"`
	CampaignID    string `json:"campaignId"`
	Donor         Donor  `json:"donor"`
	InvoiceID     int64  `json:"invoiceId,omitempty"`
	InvoiceNumber string `json:"invoiceNumber,omitempty"`
	SyncStatus    string `json:"syncStatus"`
	CreatedAt     int64  `json:"createdAt"`
}
