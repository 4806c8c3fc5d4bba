package notifications

import "time"

// Role selects which app variant the subsystem serves. The consumer and
// merchant apps share one protocol but use different category sets and
// realtime endpoints.
type Role string

const (
	RoleConsumer Role = "consumer"
	RoleMerchant Role = "merchant"
)

// Category classifies a notification. Consumer and merchant roles each use
// their own subset; wire values outside the role's subset map to the role's
// system category rather than failing.
type Category string

const (
	// Consumer categories.
	CategoryOrderUpdate    Category = "order_update"
	CategoryPromotion      Category = "promotion"
	CategorySystem         Category = "system"
	CategoryPickupReminder Category = "pickup_reminder"

	// Merchant categories.
	CategoryNewOrder        Category = "new_order"
	CategoryOrderAccepted   Category = "order_accepted"
	CategoryOrderCancelled  Category = "order_cancelled"
	CategoryPickupReady     Category = "pickup_ready"
	CategoryPaymentReceived Category = "payment_received"
	CategorySystemUpdate    Category = "system_update"
)

var roleCategories = map[Role]map[Category]struct{}{
	RoleConsumer: {
		CategoryOrderUpdate:    {},
		CategoryPromotion:      {},
		CategorySystem:         {},
		CategoryPickupReminder: {},
	},
	RoleMerchant: {
		CategoryNewOrder:        {},
		CategoryOrderAccepted:   {},
		CategoryOrderCancelled:  {},
		CategoryPickupReady:     {},
		CategoryPaymentReceived: {},
		CategorySystemUpdate:    {},
	},
}

// urgentCategories drive high notification priority and the stronger
// vibration pattern.
var urgentCategories = map[Role]map[Category]struct{}{
	RoleConsumer: {
		CategoryOrderUpdate:    {},
		CategoryPickupReminder: {},
	},
	RoleMerchant: {
		CategoryNewOrder:       {},
		CategoryOrderCancelled: {},
	},
}

// SystemCategory returns the role's catch-all category for unrecognized
// wire values.
func (r Role) SystemCategory() Category {
	if r == RoleMerchant {
		return CategorySystemUpdate
	}
	return CategorySystem
}

// OrderCategory returns the role's default category for realtime frames
// that carry no type field. Pushed frames are order events in practice.
func (r Role) OrderCategory() Category {
	if r == RoleMerchant {
		return CategoryNewOrder
	}
	return CategoryOrderUpdate
}

// Urgent reports whether the category belongs to the role's urgent subset.
func (r Role) Urgent(c Category) bool {
	_, ok := urgentCategories[r][c]
	return ok
}

// ParseCategory maps a wire type string onto the role's category set.
// Unknown or empty values map to the role's system category, never an error.
func ParseCategory(role Role, s string) Category {
	c := Category(normalizeType(s))
	if _, ok := roleCategories[role][c]; ok {
		return c
	}
	return role.SystemCategory()
}

// RecentWindow is the age under which a notification is considered unread
// by the timestamp heuristic used for realtime-sourced items.
const RecentWindow = 24 * time.Hour

// Notification is the domain record handed to the UI and the platform
// notifier.
type Notification struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Body            string    `json:"body"`
	Category        Category  `json:"category"`
	Important       bool      `json:"important"`
	Read            bool      `json:"read"`
	RelatedEntityID string    `json:"related_entity_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// MarkAsRead flips the read flag. Read state never transitions back.
func (n *Notification) MarkAsRead() {
	n.Read = true
}

// Recent reports whether the notification falls inside the unread-heuristic
// window relative to now.
func (n Notification) Recent(now time.Time) bool {
	return now.Sub(n.CreatedAt) < RecentWindow
}
