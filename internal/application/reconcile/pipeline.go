// Package reconcile implements the three-stage idempotent reconciliation of
// the donor roster against the payment provider: customers, then mandates,
// then subscriptions. Each stage fetches existing remote state, creates what
// is missing, and merges the two into a complete record-to-entity mapping.
// Re-running a completed reconciliation finds everything and creates nothing.
package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/mkuiper/donorsync/internal/adapters/mollie"
	"github.com/mkuiper/donorsync/internal/domain/donor"
	"github.com/mkuiper/donorsync/internal/domain/matcher"
	"github.com/mkuiper/donorsync/internal/infrastructure/storage"
)

// customerPageSize bounds the customer list call. The listing is a single
// page: customers beyond it are invisible to matching. Known limitation.
const customerPageSize = 250

// ProviderAPI is the set of remote operations the pipeline consumes.
type ProviderAPI interface {
	ListCustomers(ctx context.Context, limit int) ([]mollie.Customer, error)
	CreateCustomer(ctx context.Context, req mollie.CreateCustomerRequest) (*mollie.Customer, error)
	ListMandates(ctx context.Context, customerID string) ([]mollie.Mandate, error)
	CreateMandate(ctx context.Context, customerID string, req mollie.CreateMandateRequest) (*mollie.Mandate, error)
	ListSubscriptions(ctx context.Context, customerID string) ([]mollie.Subscription, error)
	CreateSubscription(ctx context.Context, customerID string, req mollie.CreateSubscriptionRequest) (*mollie.Subscription, error)
}

// Config holds the pipeline-level values used when creating subscriptions,
// plus the policy for ambiguous remote state.
type Config struct {
	Description string
	WebhookURL  string
	Interval    string
	Policy      matcher.SelectionPolicy
}

// Options holds per-run switches.
type Options struct {
	DryRun bool
}

// Summary reports the counts of one pipeline run.
type Summary struct {
	RecordsParsed int
	Customers     Counts
	Mandates      Counts
	Subscriptions Counts
}

// Entry pairs a donor record with its resolved remote customer. It is the
// input unit for the mandate and subscription stages, which both need the
// customer id.
type Entry struct {
	Record   donor.Record
	Customer mollie.Customer
}

// Pipeline sequences the three reconciliation stages.
type Pipeline struct {
	api     ProviderAPI
	cfg     Config
	storage *storage.Storage
	logger  *slog.Logger
}

// NewPipeline creates a pipeline. storage may be nil to disable run history.
func NewPipeline(api ProviderAPI, cfg Config, store *storage.Storage, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval == "" {
		cfg.Interval = "1 month"
	}
	return &Pipeline{
		api:     api,
		cfg:     cfg,
		storage: store,
		logger:  logger,
	}
}

// Run reconciles the roster. Stages run strictly in order; each later stage
// consumes the full output of the previous one. Only invariant violations
// abort the run — remote failures stay local to their stage or item.
func (p *Pipeline) Run(ctx context.Context, records []donor.Record, opts Options) (*Summary, error) {
	records = p.dedupe(records)
	summary := &Summary{RecordsParsed: len(records)}

	p.logger.Info("starting reconciliation",
		"records", len(records),
		"dry_run", opts.DryRun,
		"selection_policy", p.cfg.Policy.String(),
	)

	var runID int64
	if p.storage != nil {
		var err error
		runID, err = p.storage.StartSyncRun(len(records), opts.DryRun)
		if err != nil {
			// Tracking failure must not block reconciliation.
			p.logger.Warn("failed to start run tracking", "error", err)
		}
	}

	customerStage := p.customerStage()
	customerStage.SetDryRun(opts.DryRun)

	allCustomers, customerCounts, err := customerStage.Reconcile(ctx, records)
	if err != nil {
		p.failRun(runID, err)
		return nil, err
	}
	summary.Customers = customerCounts

	// Thread the customer mapping forward. Records without a customer (a
	// failed or dry-run create) drop out of the later stages.
	entries := make([]Entry, 0, allCustomers.Len())
	for _, rec := range records {
		if customer, ok := allCustomers.Get(rec); ok {
			entries = append(entries, Entry{Record: rec, Customer: customer})
		}
	}

	mandateStage := p.mandateStage()
	mandateStage.SetDryRun(opts.DryRun)

	allMandates, mandateCounts, err := mandateStage.Reconcile(ctx, entries)
	if err != nil {
		p.failRun(runID, err)
		return nil, err
	}
	summary.Mandates = mandateCounts

	subscriptionStage := p.subscriptionStage()
	subscriptionStage.SetDryRun(opts.DryRun)

	allSubscriptions, subscriptionCounts, err := subscriptionStage.Reconcile(ctx, entries)
	if err != nil {
		p.failRun(runID, err)
		return nil, err
	}
	summary.Subscriptions = subscriptionCounts

	p.recordOutcomes(runID, records, allCustomers, allMandates, allSubscriptions, opts.DryRun)
	p.completeRun(runID, summary)

	p.logger.Info("reconciliation complete",
		"records", summary.RecordsParsed,
		"customers_found", summary.Customers.Found,
		"customers_created", summary.Customers.Created,
		"mandates_found", summary.Mandates.Found,
		"mandates_created", summary.Mandates.Created,
		"subscriptions_found", summary.Subscriptions.Found,
		"subscriptions_created", summary.Subscriptions.Created,
		"failed", summary.Customers.Failed+summary.Mandates.Failed+summary.Subscriptions.Failed,
	)

	return summary, nil
}

// customerStage matches roster records against one page of remote customers
// and creates customers for the unmatched remainder.
func (p *Pipeline) customerStage() *Stage[donor.Record, mollie.Customer] {
	fetch := func(ctx context.Context, inputs []donor.Record) (FetchResult[donor.Record, mollie.Customer], error) {
		customers, err := p.api.ListCustomers(ctx, customerPageSize)
		if err != nil {
			return FetchResult[donor.Record, mollie.Customer]{}, err
		}
		p.logger.Debug("listed remote customers", "count", len(customers), "page_size", customerPageSize)

		found := NewMap[donor.Record, mollie.Customer]()
		for _, customer := range customers {
			for _, rec := range inputs {
				if !matcher.Matches(rec, customer) {
					continue
				}
				if found.Has(rec) {
					// Duplicate remote customers for one record; the first
					// listed one is authoritative.
					p.logger.Warn("multiple remote customers match record, keeping first",
						"identity", identity(rec),
						"customer_id", customer.ID,
					)
					continue
				}
				if err := found.Put(rec, customer); err != nil {
					return FetchResult[donor.Record, mollie.Customer]{}, err
				}
			}
		}
		return FetchResult[donor.Record, mollie.Customer]{Found: found}, nil
	}

	create := func(ctx context.Context, rec donor.Record) (mollie.Customer, error) {
		customer, err := p.api.CreateCustomer(ctx, mollie.CreateCustomerRequest{
			Name:  rec.DisplayName(),
			Email: rec.Email,
		})
		if err != nil {
			return mollie.Customer{}, err
		}
		return *customer, nil
	}

	return NewStage("customers", fetch, create, identity, p.logger)
}

// mandateStage resolves each customer's mandate and issues SEPA direct-debit
// mandates for customers without one.
func (p *Pipeline) mandateStage() *Stage[Entry, mollie.Mandate] {
	fetch := func(ctx context.Context, inputs []Entry) (FetchResult[Entry, mollie.Mandate], error) {
		result := FetchResult[Entry, mollie.Mandate]{Found: NewMap[Entry, mollie.Mandate]()}
		for _, entry := range inputs {
			mandates, err := p.api.ListMandates(ctx, entry.Customer.ID)
			if err != nil {
				p.logger.Error("mandate lookup failed, excluding customer from this run",
					"identity", identity(entry.Record),
					"customer_id", entry.Customer.ID,
					"error", err,
				)
				result.Excluded = append(result.Excluded, entry)
				continue
			}

			mandate, ok, err := matcher.Select(p.cfg.Policy, mandates,
				func(m mollie.Mandate) time.Time { return m.CreatedAt })
			if err != nil {
				p.logger.Error("ambiguous mandate state, excluding customer from this run",
					"identity", identity(entry.Record),
					"customer_id", entry.Customer.ID,
					"error", err,
				)
				result.Excluded = append(result.Excluded, entry)
				continue
			}
			if !ok {
				continue
			}
			if err := result.Found.Put(entry, mandate); err != nil {
				return FetchResult[Entry, mollie.Mandate]{}, err
			}
		}
		return result, nil
	}

	create := func(ctx context.Context, entry Entry) (mollie.Mandate, error) {
		req := mollie.CreateMandateRequest{
			Method: "directdebit",
			// The remote customer's name is the source of truth here, not
			// the roster record.
			ConsumerName:    entry.Customer.Name,
			ConsumerAccount: entry.Record.IBAN,
		}
		if entry.Record.AuthorizedSince != nil {
			req.SignatureDate = entry.Record.AuthorizedSince.Format("2006-01-02")
		}

		mandate, err := p.api.CreateMandate(ctx, entry.Customer.ID, req)
		if err != nil {
			return mollie.Mandate{}, err
		}
		return *mandate, nil
	}

	describe := func(entry Entry) string { return identity(entry.Record) }
	return NewStage("mandates", fetch, create, describe, p.logger)
}

// subscriptionStage resolves each customer's subscription and creates the
// recurring payment instruction for customers without one.
func (p *Pipeline) subscriptionStage() *Stage[Entry, mollie.Subscription] {
	fetch := func(ctx context.Context, inputs []Entry) (FetchResult[Entry, mollie.Subscription], error) {
		result := FetchResult[Entry, mollie.Subscription]{Found: NewMap[Entry, mollie.Subscription]()}
		for _, entry := range inputs {
			subscriptions, err := p.api.ListSubscriptions(ctx, entry.Customer.ID)
			if err != nil {
				p.logger.Error("subscription lookup failed, excluding customer from this run",
					"identity", identity(entry.Record),
					"customer_id", entry.Customer.ID,
					"error", err,
				)
				result.Excluded = append(result.Excluded, entry)
				continue
			}

			subscription, ok, err := matcher.Select(p.cfg.Policy, subscriptions,
				func(s mollie.Subscription) time.Time { return s.CreatedAt })
			if err != nil {
				p.logger.Error("ambiguous subscription state, excluding customer from this run",
					"identity", identity(entry.Record),
					"customer_id", entry.Customer.ID,
					"error", err,
				)
				result.Excluded = append(result.Excluded, entry)
				continue
			}
			if !ok {
				continue
			}
			if err := result.Found.Put(entry, subscription); err != nil {
				return FetchResult[Entry, mollie.Subscription]{}, err
			}
		}
		return result, nil
	}

	create := func(ctx context.Context, entry Entry) (mollie.Subscription, error) {
		subscription, err := p.api.CreateSubscription(ctx, entry.Customer.ID, mollie.CreateSubscriptionRequest{
			Amount: mollie.Amount{
				Currency: "EUR",
				Value:    donor.FormatAmount(entry.Record.DonationAmount),
			},
			Interval:    p.cfg.Interval,
			Description: p.cfg.Description,
			WebhookURL:  p.cfg.WebhookURL,
		})
		if err != nil {
			return mollie.Subscription{}, err
		}
		return *subscription, nil
	}

	describe := func(entry Entry) string { return identity(entry.Record) }
	return NewStage("subscriptions", fetch, create, describe, p.logger)
}

// recordOutcomes writes the per-donor result of this run to storage.
func (p *Pipeline) recordOutcomes(
	runID int64,
	records []donor.Record,
	customers *Map[donor.Record, mollie.Customer],
	mandates *Map[Entry, mollie.Mandate],
	subscriptions *Map[Entry, mollie.Subscription],
	dryRun bool,
) {
	if p.storage == nil || runID == 0 {
		return
	}

	for _, rec := range records {
		outcome := &storage.DonorOutcome{
			RunID:       runID,
			DisplayName: rec.DisplayName(),
			Email:       rec.Email,
			DryRun:      dryRun,
		}

		customer, ok := customers.Get(rec)
		if ok {
			outcome.CustomerID = customer.ID
			entry := Entry{Record: rec, Customer: customer}
			if mandate, ok := mandates.Get(entry); ok {
				outcome.MandateID = mandate.ID
			}
			if subscription, ok := subscriptions.Get(entry); ok {
				outcome.SubscriptionID = subscription.ID
			}
		}

		switch {
		case outcome.CustomerID != "" && outcome.MandateID != "" && outcome.SubscriptionID != "":
			outcome.Status = "reconciled"
		case dryRun:
			outcome.Status = "dry-run"
		case outcome.CustomerID == "":
			outcome.Status = "failed"
		default:
			outcome.Status = "partial"
		}

		if err := p.storage.SaveDonorOutcome(outcome); err != nil {
			p.logger.Warn("failed to save donor outcome", "identity", identity(rec), "error", err)
		}
	}
}

func (p *Pipeline) completeRun(runID int64, summary *Summary) {
	if p.storage == nil || runID == 0 {
		return
	}
	if err := p.storage.CompleteSyncRun(runID, storage.RunCounts{
		CustomersFound:       summary.Customers.Found,
		CustomersCreated:     summary.Customers.Created,
		MandatesFound:        summary.Mandates.Found,
		MandatesCreated:      summary.Mandates.Created,
		SubscriptionsFound:   summary.Subscriptions.Found,
		SubscriptionsCreated: summary.Subscriptions.Created,
		Failed:               summary.Customers.Failed + summary.Mandates.Failed + summary.Subscriptions.Failed,
	}); err != nil {
		p.logger.Warn("failed to complete run tracking", "error", err)
	}
}

func (p *Pipeline) failRun(runID int64, cause error) {
	if p.storage == nil || runID == 0 {
		return
	}
	if err := p.storage.FailSyncRun(runID, cause.Error()); err != nil {
		p.logger.Warn("failed to mark run as failed", "error", err)
	}
}

// dedupe drops roster rows that repeat an earlier row's identity. Two rows
// with the same (display name, email) pair are the same donor; reconciling
// the pair twice in one run would violate the unique-key invariant.
func (p *Pipeline) dedupe(records []donor.Record) []donor.Record {
	type key struct{ name, email string }
	seen := make(map[key]bool, len(records))
	unique := records[:0:0]
	for _, rec := range records {
		k := key{rec.DisplayName(), rec.Email}
		if seen[k] {
			p.logger.Warn("duplicate roster row ignored", "identity", identity(rec))
			continue
		}
		seen[k] = true
		unique = append(unique, rec)
	}
	return unique
}

// identity renders a record for log lines: the email when present, the
// display name otherwise.
func identity(rec donor.Record) string {
	if rec.Email != "" {
		return rec.Email
	}
	return rec.DisplayName()
}
