package orb

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const SubscriptionStatusActive = "active"

type Customer struct {
	ID                 string    `json:"id"`
	ExternalCustomerID string    `json:"external_customer_id"`
	Name               string    `json:"name"`
	Email              string    `json:"email"`
	Currency           string    `json:"currency"`
	CreatedAt          time.Time `json:"created_at"`
}

type PaginationMetadata struct {
	HasMore    bool    `json:"has_more"`
	NextCursor *string `json:"next_cursor"`
}

type CustomerList struct {
	Data               []Customer         `json:"data"`
	PaginationMetadata PaginationMetadata `json:"pagination_metadata"`
}

// Cursor returns the next page cursor, or "" when the source reported none.
func (l CustomerList) Cursor() string {
	if l.PaginationMetadata.NextCursor == nil {
		return ""
	}
	return strings.TrimSpace(*l.PaginationMetadata.NextCursor)
}

type Price struct {
	ID     string          `json:"id"`
	Amount decimal.Decimal `json:"amount"`
}

type PlanPrice struct {
	Price Price `json:"price"`
}

type Plan struct {
	ID     string      `json:"id"`
	Name   string      `json:"name"`
	Prices []PlanPrice `json:"prices"`
}

type Subscription struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Plan   Plan   `json:"plan"`
}

type subscriptionList struct {
	Data []Subscription `json:"data"`
}

// UsageEntry is one metric bucket of a daily usage response. Cost is in cents.
type UsageEntry struct {
	MetricName     string          `json:"metric_name"`
	Usage          decimal.Decimal `json:"usage"`
	Cost           decimal.Decimal `json:"cost"`
	TimeframeStart time.Time       `json:"timeframe_start"`
	TimeframeEnd   time.Time       `json:"timeframe_end"`
}

type CustomerUsage struct {
	UsageData []UsageEntry `json:"usage_data"`
}

var centsPerUnit = decimal.NewFromInt(100)

// FromCents converts a minor-unit amount into major currency units.
func FromCents(amount decimal.Decimal) decimal.Decimal {
	return amount.Div(centsPerUnit)
}

// MonthlyRecurringRevenue sums the first plan price of every active
// subscription, converted from cents.
func MonthlyRecurringRevenue(subscriptions []Subscription) (decimal.Decimal, int) {
	total := decimal.Zero
	active := 0
	for _, sub := range subscriptions {
		if sub.Status != SubscriptionStatusActive {
			continue
		}
		active++
		if len(sub.Plan.Prices) == 0 {
			continue
		}
		total = total.Add(FromCents(sub.Plan.Prices[0].Price.Amount))
	}
	return total, active
}
