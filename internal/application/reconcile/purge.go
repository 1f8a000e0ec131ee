package reconcile

import (
	"context"
	"log/slog"

	"github.com/mkuiper/donorsync/internal/adapters/mollie"
	"github.com/mkuiper/donorsync/internal/domain/donor"
	"github.com/mkuiper/donorsync/internal/domain/matcher"
)

// CustomerDeleter is the remote capability the purge operation needs.
type CustomerDeleter interface {
	ListCustomers(ctx context.Context, limit int) ([]mollie.Customer, error)
	DeleteCustomer(ctx context.Context, customerID string) error
}

// PurgeCustomers deletes every remote customer that matches a roster record.
// This is a maintenance operation invoked separately from the pipeline; the
// pipeline itself never deletes or mutates remote entities. Per-customer
// delete failures are logged and skipped.
func PurgeCustomers(ctx context.Context, api CustomerDeleter, records []donor.Record, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}

	customers, err := api.ListCustomers(ctx, customerPageSize)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, customer := range customers {
		match := false
		for _, rec := range records {
			if matcher.Matches(rec, customer) {
				match = true
				break
			}
		}
		if !match {
			continue
		}

		if err := api.DeleteCustomer(ctx, customer.ID); err != nil {
			logger.Error("failed to delete customer",
				"customer_id", customer.ID,
				"name", customer.Name,
				"error", err,
			)
			continue
		}
		deleted++
		logger.Info("deleted customer", "customer_id", customer.ID, "name", customer.Name)
	}

	return deleted, nil
}
