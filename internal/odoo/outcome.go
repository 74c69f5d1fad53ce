package odoo

// AccountStrategy names which income-account lookup finally matched. Each
// strategy maps to a different field spelling across Odoo versions.
type AccountStrategy string

const (
	AccountNone         AccountStrategy = ""
	AccountByType       AccountStrategy = "account_type"
	AccountByCodePrefix AccountStrategy = "code_prefix"
	AccountByRevenue    AccountStrategy = "revenue_name"
	AccountByLegacyType AccountStrategy = "internal_type"
	AccountByUserType   AccountStrategy = "user_type_name"
)

// PostingLevel records which draft-to-posted attempt succeeded.
type PostingLevel int

const (
	// PostNone means every posting attempt failed; the invoice stays draft.
	PostNone PostingLevel = iota
	// PostAction is the primary action_post path.
	PostAction
	// PostStateWrite is the direct state write fallback.
	PostStateWrite
	// PostStateOnly is the last-resort write of the state field alone.
	PostStateOnly
)

func (p PostingLevel) String() string {
	switch p {
	case PostAction:
		return "action_post"
	case PostStateWrite:
		return "state_write"
	case PostStateOnly:
		return "state_only"
	}
	return "none"
}

// Outcome is the structured result of one sync run. Tests assert against it
// instead of scraping log output. InvoiceID is zero when creation failed;
// posting and numbering failures never zero it back out.
type Outcome struct {
	InvoiceID     int64
	Number        string
	NumberApplied bool

	PartnerID     int64
	ProductID     int64
	AccountID     int64
	JournalID     int64
	PaymentTermID int64

	AccountStrategy AccountStrategy
	Posting         PostingLevel

	// Err holds the fatal error when InvoiceID is zero. It never escapes
	// SyncDonation as a returned error.
	Err error
}

// Created reports whether the remote invoice exists.
func (o Outcome) Created() bool { return o.InvoiceID > 0 }
