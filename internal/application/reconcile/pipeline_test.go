package reconcile

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkuiper/donorsync/internal/adapters/mollie"
	"github.com/mkuiper/donorsync/internal/domain/donor"
	"github.com/mkuiper/donorsync/internal/domain/matcher"
)

// fakeProvider simulates the remote account: creates are visible to
// subsequent list calls, so re-running the pipeline sees its own output.
type fakeProvider struct {
	customers     []mollie.Customer
	mandates      map[string][]mollie.Mandate
	subscriptions map[string][]mollie.Subscription

	nextID int

	listCustomersErr    error
	failCustomerNames   map[string]bool
	failMandateAccounts map[string]bool

	customerCreates     int
	mandateCreates      int
	subscriptionCreates int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		mandates:      make(map[string][]mollie.Mandate),
		subscriptions: make(map[string][]mollie.Subscription),
	}
}

func (f *fakeProvider) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s_%d", prefix, f.nextID)
}

func (f *fakeProvider) ListCustomers(ctx context.Context, limit int) ([]mollie.Customer, error) {
	if f.listCustomersErr != nil {
		return nil, f.listCustomersErr
	}
	if len(f.customers) > limit {
		return f.customers[:limit], nil
	}
	return f.customers, nil
}

func (f *fakeProvider) CreateCustomer(ctx context.Context, req mollie.CreateCustomerRequest) (*mollie.Customer, error) {
	f.customerCreates++
	if f.failCustomerNames[req.Name] {
		return nil, errors.New("provider rejected customer")
	}
	customer := mollie.Customer{ID: f.id("cst"), Name: req.Name, Email: req.Email, CreatedAt: time.Now()}
	f.customers = append(f.customers, customer)
	return &customer, nil
}

func (f *fakeProvider) ListMandates(ctx context.Context, customerID string) ([]mollie.Mandate, error) {
	return f.mandates[customerID], nil
}

func (f *fakeProvider) CreateMandate(ctx context.Context, customerID string, req mollie.CreateMandateRequest) (*mollie.Mandate, error) {
	f.mandateCreates++
	if f.failMandateAccounts[req.ConsumerAccount] {
		return nil, errors.New("invalid consumer account")
	}
	mandate := mollie.Mandate{ID: f.id("mdt"), Status: "valid", SignatureDate: req.SignatureDate, CreatedAt: time.Now()}
	f.mandates[customerID] = append(f.mandates[customerID], mandate)
	return &mandate, nil
}

func (f *fakeProvider) ListSubscriptions(ctx context.Context, customerID string) ([]mollie.Subscription, error) {
	return f.subscriptions[customerID], nil
}

func (f *fakeProvider) CreateSubscription(ctx context.Context, customerID string, req mollie.CreateSubscriptionRequest) (*mollie.Subscription, error) {
	f.subscriptionCreates++
	subscription := mollie.Subscription{
		ID:          f.id("sub"),
		Amount:      req.Amount,
		Interval:    req.Interval,
		Description: req.Description,
		WebhookURL:  req.WebhookURL,
		Status:      "active",
		CreatedAt:   time.Now(),
	}
	f.subscriptions[customerID] = append(f.subscriptions[customerID], subscription)
	return &subscription, nil
}

func janJansen() donor.Record {
	return donor.Record{
		FirstName:      "Jan",
		LastName:       "Jansen",
		Email:          "jan@x.nl",
		IBAN:           "NL00BANK1234",
		DonationAmount: 10,
	}
}

func TestPipeline_EmptyRemote_CreatesEverything(t *testing.T) {
	provider := newFakeProvider()
	pipeline := NewPipeline(provider, Config{Description: "Donatie", WebhookURL: "https://x.nl/hook"}, nil, nil)

	summary, err := pipeline.Run(context.Background(), []donor.Record{janJansen()}, Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.RecordsParsed)
	assert.Equal(t, Counts{Found: 0, Created: 1}, summary.Customers)
	assert.Equal(t, Counts{Found: 0, Created: 1}, summary.Mandates)
	assert.Equal(t, Counts{Found: 0, Created: 1}, summary.Subscriptions)

	require.Len(t, provider.customers, 1)
	assert.Equal(t, "Jan Jansen", provider.customers[0].Name)

	customerID := provider.customers[0].ID
	require.Len(t, provider.subscriptions[customerID], 1)
	sub := provider.subscriptions[customerID][0]
	assert.Equal(t, mollie.Amount{Currency: "EUR", Value: "10.00"}, sub.Amount)
	assert.Equal(t, "1 month", sub.Interval)
	assert.Equal(t, "Donatie", sub.Description)
	assert.Equal(t, "https://x.nl/hook", sub.WebhookURL)
}

func TestPipeline_Rerun_FindsEverythingCreatesNothing(t *testing.T) {
	provider := newFakeProvider()
	pipeline := NewPipeline(provider, Config{}, nil, nil)
	records := []donor.Record{janJansen()}

	_, err := pipeline.Run(context.Background(), records, Options{})
	require.NoError(t, err)

	summary, err := pipeline.Run(context.Background(), records, Options{})
	require.NoError(t, err)

	assert.Equal(t, Counts{Found: 1, Created: 0}, summary.Customers)
	assert.Equal(t, Counts{Found: 1, Created: 0}, summary.Mandates)
	assert.Equal(t, Counts{Found: 1, Created: 0}, summary.Subscriptions)
	assert.Equal(t, 1, provider.customerCreates)
	assert.Equal(t, 1, provider.mandateCreates)
	assert.Equal(t, 1, provider.subscriptionCreates)
}

func TestPipeline_DuplicateRosterRows_ReconciledOnce(t *testing.T) {
	provider := newFakeProvider()
	pipeline := NewPipeline(provider, Config{}, nil, nil)

	summary, err := pipeline.Run(context.Background(), []donor.Record{janJansen(), janJansen()}, Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.RecordsParsed)
	assert.Equal(t, Counts{Found: 0, Created: 1}, summary.Customers)
	assert.Equal(t, 1, provider.customerCreates)
}

func TestPipeline_ListFailureDegradesNotAborts(t *testing.T) {
	provider := newFakeProvider()
	provider.listCustomersErr = errors.New("connection refused")
	pipeline := NewPipeline(provider, Config{}, nil, nil)

	summary, err := pipeline.Run(context.Background(), []donor.Record{janJansen()}, Options{})
	require.NoError(t, err)

	// Zero matches found; the record is created instead.
	assert.Equal(t, Counts{Found: 0, Created: 1}, summary.Customers)
}

func TestPipeline_CustomerCreateFailure_IsolatedPerRecord(t *testing.T) {
	provider := newFakeProvider()
	provider.failCustomerNames = map[string]bool{"Piet Peters": true}
	pipeline := NewPipeline(provider, Config{}, nil, nil)

	records := []donor.Record{
		janJansen(),
		{FirstName: "Piet", LastName: "Peters", Email: "piet@x.nl", IBAN: "NL11BANK5678", DonationAmount: 5},
	}

	summary, err := pipeline.Run(context.Background(), records, Options{})
	require.NoError(t, err)

	assert.Equal(t, Counts{Found: 0, Created: 1, Failed: 1}, summary.Customers)
	// The failed record has no customer, so the later stages only see Jan.
	assert.Equal(t, Counts{Found: 0, Created: 1}, summary.Mandates)
	assert.Equal(t, Counts{Found: 0, Created: 1}, summary.Subscriptions)
}

func TestPipeline_MandateUsesRemoteCustomerName(t *testing.T) {
	provider := newFakeProvider()
	// Remote customer exists under a name that differs from the roster.
	provider.customers = []mollie.Customer{
		{ID: "cst_existing", Name: "Jan Jansen", Email: "jan@x.nl", CreatedAt: time.Now()},
	}

	var seenConsumerName string
	pipeline := NewPipeline(&consumerNameSpy{fakeProvider: provider, seen: &seenConsumerName}, Config{}, nil, nil)

	rec := janJansen()
	_, err := pipeline.Run(context.Background(), []donor.Record{rec}, Options{})
	require.NoError(t, err)

	assert.Equal(t, "Jan Jansen", seenConsumerName)
}

type consumerNameSpy struct {
	*fakeProvider
	seen *string
}

func (s *consumerNameSpy) CreateMandate(ctx context.Context, customerID string, req mollie.CreateMandateRequest) (*mollie.Mandate, error) {
	*s.seen = req.ConsumerName
	return s.fakeProvider.CreateMandate(ctx, customerID, req)
}

func TestPipeline_RequireUnique_SkipsAmbiguousCustomer(t *testing.T) {
	provider := newFakeProvider()
	provider.customers = []mollie.Customer{
		{ID: "cst_1", Name: "Jan Jansen", Email: "jan@x.nl", CreatedAt: time.Now()},
	}
	provider.mandates["cst_1"] = []mollie.Mandate{
		{ID: "mdt_1", Status: "valid", CreatedAt: time.Now()},
		{ID: "mdt_2", Status: "valid", CreatedAt: time.Now()},
	}

	pipeline := NewPipeline(provider, Config{Policy: matcher.RequireUnique}, nil, nil)

	summary, err := pipeline.Run(context.Background(), []donor.Record{janJansen()}, Options{})
	require.NoError(t, err)

	// The ambiguous customer is excluded: neither matched nor created.
	assert.Equal(t, Counts{Found: 0, Created: 0, Failed: 1}, summary.Mandates)
	assert.Equal(t, 0, provider.mandateCreates)
}

func TestPipeline_MostRecentPolicy_PicksLatestMandate(t *testing.T) {
	provider := newFakeProvider()
	provider.customers = []mollie.Customer{
		{ID: "cst_1", Name: "Jan Jansen", Email: "jan@x.nl", CreatedAt: time.Now()},
	}
	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	provider.mandates["cst_1"] = []mollie.Mandate{
		{ID: "mdt_old", Status: "valid", CreatedAt: old},
		{ID: "mdt_new", Status: "valid", CreatedAt: recent},
	}
	provider.subscriptions["cst_1"] = []mollie.Subscription{
		{ID: "sub_1", Status: "active", CreatedAt: old},
	}

	pipeline := NewPipeline(provider, Config{Policy: matcher.MostRecent}, nil, nil)

	summary, err := pipeline.Run(context.Background(), []donor.Record{janJansen()}, Options{})
	require.NoError(t, err)

	assert.Equal(t, Counts{Found: 1, Created: 0}, summary.Mandates)
	assert.Equal(t, 0, provider.mandateCreates)
}

func TestPipeline_DryRun_TouchesNothing(t *testing.T) {
	provider := newFakeProvider()
	pipeline := NewPipeline(provider, Config{}, nil, nil)

	summary, err := pipeline.Run(context.Background(), []donor.Record{janJansen()}, Options{DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, Counts{Found: 0, Created: 1}, summary.Customers)
	assert.Equal(t, 0, provider.customerCreates)
	assert.Equal(t, 0, provider.mandateCreates)
	assert.Equal(t, 0, provider.subscriptionCreates)
	assert.Empty(t, provider.customers)
}

func TestPipeline_SignatureDateFromRoster(t *testing.T) {
	provider := newFakeProvider()
	pipeline := NewPipeline(provider, Config{}, nil, nil)

	authorized := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	rec := janJansen()
	rec.AuthorizedSince = &authorized

	_, err := pipeline.Run(context.Background(), []donor.Record{rec}, Options{})
	require.NoError(t, err)

	customerID := provider.customers[0].ID
	require.Len(t, provider.mandates[customerID], 1)
	assert.Equal(t, "2024-03-01", provider.mandates[customerID][0].SignatureDate)
}
