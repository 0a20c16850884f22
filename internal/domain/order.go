package domain

import "time"

// Origin is the channel through which an order was placed. The values mirror
// the order_source column of the orders table.
type Origin string

const (
	OriginStorefront Origin = "storefront"
	OriginPhone      Origin = "phone"
	OriginInPerson   Origin = "in_person"
	OriginThirdParty Origin = "third_party"
)

// OrderStatus is the lifecycle status carried on an order row. The pipeline
// consumes these values but never mutates them; transitions are owned by the
// record store.
type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusInProgress OrderStatus = "in_progress"
	StatusReady      OrderStatus = "ready"
	StatusCompleted  OrderStatus = "completed"
	StatusCancelled  OrderStatus = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s OrderStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransition reports whether the record store permits moving from s to
// next. Cancellation windows are enforced store-side and not modelled here.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusInProgress || next == StatusReady || next == StatusCancelled
	case StatusInProgress:
		return next == StatusReady || next == StatusCancelled
	case StatusReady:
		return next == StatusCompleted || next == StatusCancelled
	default:
		return false
	}
}

// Customer is the resolved contact for an order, coalesced from the users and
// guests tables.
type Customer struct {
	Name          string `json:"customer_name"`
	Email         string `json:"customer_email"`
	PhoneNumber   string `json:"phone_number"`
	StreetAddress string `json:"street_address"`
	City          string `json:"city"`
	County        string `json:"county"`
	PostalCode    string `json:"postal_code"`
}

// Driver identifies the assigned delivery driver, when one exists.
type Driver struct {
	ID          int64  `json:"driver_id"`
	Name        string `json:"driver_name"`
	PhoneNumber string `json:"driver_phone"`
}

// OrderItem is one line item of an order joined with its menu item.
type OrderItem struct {
	ItemName    string  `json:"item_name"`
	ItemType    string  `json:"item_type"`
	Quantity    int     `json:"quantity"`
	Description string  `json:"item_description"`
	TotalPrice  float64 `json:"item_total_price"`
}

// OrderDetail is the denormalized projection of an order used for push
// enrichment: header fields, resolved contact, line items and the optional
// driver, all read in a single consistent snapshot.
type OrderDetail struct {
	OrderID       int64       `json:"order_id"`
	Tenant        string      `json:"-"`
	Origin        Origin      `json:"order_source"`
	Status        OrderStatus `json:"status"`
	PaymentType   string      `json:"payment_type"`
	TransactionID string      `json:"transaction_id,omitempty"`
	OrderType     string      `json:"order_type"`
	TotalPrice    float64     `json:"order_total_price"`
	ChangeDue     float64     `json:"change_due"`
	ExtraNotes    string      `json:"order_extra_notes,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	Customer      Customer    `json:"customer"`
	Driver        *Driver     `json:"driver,omitempty"`
	Items         []OrderItem `json:"items"`
}
