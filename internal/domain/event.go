package domain

import "encoding/json"

// Channel names the change source emits on. The payload contract per channel
// is fixed by the store-side triggers: new_order_channel carries only the
// order id, the others carry self-contained JSON.
type Channel string

const (
	ChannelNewOrder    Channel = "new_order_channel"
	ChannelOfferUpdate Channel = "offer_update_channel"
	ChannelShopStatus  Channel = "shop_status_channel"
	ChannelOrderStatus Channel = "order_status_or_driver_change_channel"
)

// Channels lists every channel the listener subscribes to.
func Channels() []Channel {
	return []Channel{ChannelNewOrder, ChannelOfferUpdate, ChannelShopStatus, ChannelOrderStatus}
}

// EventType is the message type pushed to client sessions.
type EventType string

const (
	EventOrderCreated      EventType = "order_created"
	EventOrderStatusChange EventType = "order_status_changed"
	EventOfferUpdated      EventType = "offer_updated"
	EventShopStatusChanged EventType = "shop_status_changed"
)

// EventType maps a source channel to the type pushed to clients.
func (c Channel) EventType() EventType {
	switch c {
	case ChannelNewOrder:
		return EventOrderCreated
	case ChannelOfferUpdate:
		return EventOfferUpdated
	case ChannelShopStatus:
		return EventShopStatusChanged
	case ChannelOrderStatus:
		return EventOrderStatusChange
	}
	return ""
}

// Notification is one raw message from the change source, exactly as emitted
// by the store trigger.
type Notification struct {
	Channel Channel
	Payload string
}

// Event is the unit flowing through the pipeline after decoding. Tenant is
// stamped by the router, Seq by the listener. Events live only until fan-out
// completes; nothing is persisted.
type Event struct {
	Type   EventType       `json:"type"`
	Seq    uint64          `json:"seq"`
	Data   json.RawMessage `json:"data"`
	Tenant string          `json:"-"`
}

// OfferUpdate is the payload of offer_update_channel notifications.
type OfferUpdate struct {
	Tenant string          `json:"tenant"`
	Offers json.RawMessage `json:"offers"`
}

// ShopStatus is the payload of shop_status_channel notifications.
type ShopStatus struct {
	Tenant    string `json:"tenant"`
	ShopOpen  bool   `json:"shop_open"`
	OpenTime  string `json:"open_time"`
	CloseTime string `json:"close_time"`
}

// OrderStatusChange is the payload of order_status_or_driver_change_channel
// notifications. DriverID is set when the change includes an assignment.
type OrderStatusChange struct {
	Tenant   string      `json:"tenant"`
	OrderID  int64       `json:"order_id"`
	Status   OrderStatus `json:"status"`
	DriverID *int64      `json:"driver_id"`
}
