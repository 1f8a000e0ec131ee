package mollie

import "time"

// Customer is a customer resource owned by the payment provider.
// Local code only reads it and references it by ID.
type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// Mandate is a direct-debit authorization attached to a customer.
type Mandate struct {
	ID            string    `json:"id"`
	Status        string    `json:"status"`
	Method        string    `json:"method"`
	SignatureDate string    `json:"signatureDate"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Subscription is a recurring payment instruction attached to a customer.
type Subscription struct {
	ID          string    `json:"id"`
	Amount      Amount    `json:"amount"`
	Interval    string    `json:"interval"`
	Description string    `json:"description"`
	WebhookURL  string    `json:"webhookUrl"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Amount is a monetary value as transmitted on the wire: an ISO currency
// code plus a string value with exactly two fraction digits ("10.00").
type Amount struct {
	Currency string `json:"currency"`
	Value    string `json:"value"`
}

// CreateCustomerRequest is the payload for creating a customer.
type CreateCustomerRequest struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// CreateMandateRequest is the payload for issuing a SEPA direct-debit mandate.
type CreateMandateRequest struct {
	Method          string `json:"method"`
	ConsumerName    string `json:"consumerName"`
	ConsumerAccount string `json:"consumerAccount"`
	SignatureDate   string `json:"signatureDate,omitempty"`
}

// CreateSubscriptionRequest is the payload for creating a subscription.
type CreateSubscriptionRequest struct {
	Amount      Amount `json:"amount"`
	Interval    string `json:"interval"`
	Description string `json:"description,omitempty"`
	WebhookURL  string `json:"webhookUrl,omitempty"`
}

// customersEnvelope and friends model the HAL-style list responses.
type customersEnvelope struct {
	Count    int `json:"count"`
	Embedded struct {
		Customers []Customer `json:"customers"`
	} `json:"_embedded"`
}

type mandatesEnvelope struct {
	Count    int `json:"count"`
	Embedded struct {
		Mandates []Mandate `json:"mandates"`
	} `json:"_embedded"`
}

type subscriptionsEnvelope struct {
	Count    int `json:"count"`
	Embedded struct {
		Subscriptions []Subscription `json:"subscriptions"`
	} `json:"_embedded"`
}
