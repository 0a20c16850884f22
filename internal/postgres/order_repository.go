package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Zain-surge/thevillage-backend/internal/domain"
)

// orderDetailQuery joins the order header with its line items, the coalesced
// customer/guest contact and the optional driver. The inner join on
// order_items is deliberate: an order whose items are not yet visible scans
// zero rows and surfaces as ErrOrderNotFound, which the listener treats as
// not-yet-visible and drops.
const orderDetailQuery = `
SELECT
    o.order_id,
    o.brand_name,
    o.order_source,
    o.status,
    o.payment_type,
    COALESCE(o.transaction_id, ''),
    o.order_type,
    o.total_price,
    COALESCE(o.change_due, 0),
    COALESCE(o.extra_notes, ''),
    o.created_at,
    COALESCE(u.name, g.name, ''),
    COALESCE(u.email, g.email, ''),
    COALESCE(u.phone_number, g.phone_number, ''),
    COALESCE(u.street_address, g.street_address, ''),
    COALESCE(u.city, g.city, ''),
    COALESCE(u.county, g.county, ''),
    COALESCE(u.postal_code, g.postal_code, ''),
    d.id,
    d.name,
    d.phone_number,
    i.item_name,
    i.type,
    oi.quantity,
    COALESCE(oi.description, ''),
    oi.total_price
FROM orders o
LEFT JOIN users u ON o.user_id = u.user_id
LEFT JOIN guests g ON o.guest_id = g.guest_id
LEFT JOIN drivers d ON o.driver_id = d.id
JOIN order_items oi ON o.order_id = oi.order_id
JOIN items i ON oi.item_id = i.item_id
WHERE o.order_id = $1
ORDER BY oi.order_item_id`

// OrderRepo implements domain.OrderStore backed by PostgreSQL.
type OrderRepo struct {
	pool *pgxpool.Pool
}

// NewOrderRepo creates an OrderRepo from the shared pool.
func NewOrderRepo(pool *pgxpool.Pool) *OrderRepo {
	return &OrderRepo{pool: pool}
}

// FetchOrderDetail reads the denormalized order projection in one query, one
// snapshot. The row set repeats header columns per line item; grouping
// happens here.
func (r *OrderRepo) FetchOrderDetail(ctx context.Context, orderID int64) (*domain.OrderDetail, error) {
	rows, err := r.pool.Query(ctx, orderDetailQuery, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query order detail: %w", err)
	}
	defer rows.Close()

	var detail *domain.OrderDetail
	for rows.Next() {
		var (
			header      domain.OrderDetail
			item        domain.OrderItem
			driverID    *int64
			driverName  *string
			driverPhone *string
		)
		if err := rows.Scan(
			&header.OrderID,
			&header.Tenant,
			&header.Origin,
			&header.Status,
			&header.PaymentType,
			&header.TransactionID,
			&header.OrderType,
			&header.TotalPrice,
			&header.ChangeDue,
			&header.ExtraNotes,
			&header.CreatedAt,
			&header.Customer.Name,
			&header.Customer.Email,
			&header.Customer.PhoneNumber,
			&header.Customer.StreetAddress,
			&header.Customer.City,
			&header.Customer.County,
			&header.Customer.PostalCode,
			&driverID,
			&driverName,
			&driverPhone,
			&item.ItemName,
			&item.ItemType,
			&item.Quantity,
			&item.Description,
			&item.TotalPrice,
		); err != nil {
			return nil, fmt.Errorf("failed to scan order detail row: %w", err)
		}

		if detail == nil {
			if driverID != nil {
				header.Driver = &domain.Driver{ID: *driverID}
				if driverName != nil {
					header.Driver.Name = *driverName
				}
				if driverPhone != nil {
					header.Driver.PhoneNumber = *driverPhone
				}
			}
			detail = &header
		}
		detail.Items = append(detail.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read order detail rows: %w", err)
	}

	if detail == nil {
		return nil, domain.ErrOrderNotFound
	}
	return detail, nil
}
