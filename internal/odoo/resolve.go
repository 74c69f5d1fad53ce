package odoo

import (
	"context"
	"fmt"
	"log"

	"github.com/dittorahmat/amal-kita/internal/donation"
)

// resolvePartner finds the partner by exact name match or creates one.
// Lookup failures and create failures are fatal to the sync.
func (s *Service) resolvePartner(ctx context.Context, d donation.Donor) (int64, error) {
	res, err := s.search(ctx, modelPartner, []any{cond("name", "=", d.Name)})
	if err != nil {
		return 0, fmt.Errorf("search %s: %w", modelPartner, err)
	}
	if id, ok := firstID(res); ok {
		log.Printf("[odoo] partner found: %d", id)
		return id, nil
	}

	payload := map[string]any{
		"name":       d.Name,
		"is_company": false,
		"type":       "contact",
		"email":      d.Email,
	}
	// Receivable account varies by Odoo version; attach only if the lookup
	// happens to work on this schema.
	if accID, ok := s.findReceivableAccount(ctx); ok {
		payload["property_account_receivable_id"] = accID
	}

	created, err := s.rpc.Call(ctx, modelPartner, "create", []any{payload})
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", modelPartner, err)
	}
	id, ok := createdID(created)
	if !ok {
		return 0, fmt.Errorf("create %s: unexpected result %s", modelPartner, created.GoString())
	}
	log.Printf("[odoo] partner created: %d", id)
	return id, nil
}

// findReceivableAccount is allowed to fail silently; the field name it
// searches on does not exist on every Odoo version.
func (s *Service) findReceivableAccount(ctx context.Context) (int64, bool) {
	res, err := s.search(ctx, modelAccount, []any{cond("account_type", "=", "asset_receivable")})
	if err != nil {
		log.Printf("[odoo] receivable account lookup skipped: %v", err)
		return 0, false
	}
	id, ok := firstID(res)
	return id, ok
}

// resolveDonationProduct find-or-creates the zero-priced service product all
// donation invoice lines reference.
func (s *Service) resolveDonationProduct(ctx context.Context) (int64, error) {
	res, err := s.search(ctx, modelProduct, []any{cond("name", "=", donationProductName)})
	if err != nil {
		return 0, fmt.Errorf("search %s: %w", modelProduct, err)
	}
	if id, ok := firstID(res); ok {
		log.Printf("[odoo] donation product found: %d", id)
		return id, nil
	}

	payload := map[string]any{
		"name":             donationProductName,
		"type":             "service",
		"sale_ok":          true,
		"purchase_ok":      false,
		"list_price":       0,
		"categ_id":         1,
		"description_sale": "Charitable donation",
		"invoice_policy":   "order",
	}
	created, err := s.rpc.Call(ctx, modelProduct, "create", []any{payload})
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", modelProduct, err)
	}
	id, ok := createdID(created)
	if !ok {
		return 0, fmt.Errorf("create %s: unexpected result %s", modelProduct, created.GoString())
	}
	log.Printf("[odoo] donation product created: %d", id)
	return id, nil
}

// accountLookup is one strategy in the income-account fallback chain.
type accountLookup struct {
	strategy AccountStrategy
	domain   []any
}

// findIncomeAccount walks the fallback chain until a strategy yields a
// record. A strategy that errors (the field does not exist on this schema
// version) and one that matches nothing are treated identically: move on.
// Exhausting the chain is not an error; the invoice is created without an
// account reference.
func (s *Service) findIncomeAccount(ctx context.Context) (int64, AccountStrategy) {
	chain := []accountLookup{
		{AccountByType, []any{cond("account_type", "=", "income")}},
		{AccountByCodePrefix, []any{cond("code", "=like", "4%")}},
		{AccountByRevenue, []any{cond("name", "=ilike", "%revenue%")}},
		{AccountByLegacyType, []any{cond("internal_type", "=", "other")}},
		{AccountByUserType, []any{cond("user_type_id.name", "=ilike", "%income%")}},
	}
	for _, lookup := range chain {
		res, err := s.search(ctx, modelAccount, lookup.domain)
		if err != nil {
			log.Printf("[odoo] income account strategy %s not usable on this schema: %v", lookup.strategy, err)
			continue
		}
		if id, ok := firstID(res); ok {
			log.Printf("[odoo] income account %d found via %s", id, lookup.strategy)
			return id, lookup.strategy
		}
	}
	log.Printf("[odoo] no income account found; invoice lines will rely on product defaults")
	return 0, AccountNone
}

// findSaleJournal prefers journals of type sale, falling back to the first
// journal of any type. Zero means none found; the invoice proceeds anyway.
func (s *Service) findSaleJournal(ctx context.Context) int64 {
	res, err := s.search(ctx, modelJournal, []any{cond("type", "=", "sale")})
	if err == nil {
		if id, ok := firstID(res); ok {
			return id
		}
	} else {
		log.Printf("[odoo] sale journal lookup failed: %v", err)
	}

	res, err = s.search(ctx, modelJournal, []any{})
	if err != nil {
		log.Printf("[odoo] journal lookup failed: %v", err)
		return 0
	}
	id, _ := firstID(res)
	return id
}

// findImmediatePaymentTerm prefers terms named like "immediate", falling
// back to the first available record.
func (s *Service) findImmediatePaymentTerm(ctx context.Context) int64 {
	res, err := s.search(ctx, modelPaymentTerm, []any{cond("name", "=ilike", "%immediate%")})
	if err == nil {
		if id, ok := firstID(res); ok {
			return id
		}
	} else {
		log.Printf("[odoo] immediate payment term lookup failed: %v", err)
	}

	res, err = s.search(ctx, modelPaymentTerm, []any{})
	if err != nil {
		log.Printf("[odoo] payment term lookup failed: %v", err)
		return 0
	}
	id, _ := firstID(res)
	return id
}
