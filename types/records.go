package types

import (
	"strings"
	"time"
)

// AccountKey identifies one member of one guild. Payments, demo usage and
// poll sessions are all scoped to it.
type AccountKey struct {
	UserID  string
	GuildID string
}

func NewAccountKey(userID, guildID string) AccountKey {
	return AccountKey{UserID: strings.TrimSpace(userID), GuildID: strings.TrimSpace(guildID)}
}

// String is the persisted form, "{guildId}-{userId}".
func (k AccountKey) String() string {
	return k.GuildID + "-" + k.UserID
}

// CustomID is the form embedded in provider orders, "{userId}-{guildId}".
func (k AccountKey) CustomID() string {
	return k.UserID + "-" + k.GuildID
}

func (k AccountKey) Valid() bool {
	return k.UserID != "" && k.GuildID != ""
}

type PaymentRecord struct {
	UserID    string        `json:"userId"`
	GuildID   string        `json:"guildId"`
	Status    PaymentStatus `json:"status"`
	Amount    string        `json:"amount"`
	Currency  string        `json:"currency"`
	Reference string        `json:"reference"`
	OrderID   string        `json:"orderId"`
	Provider  string        `json:"provider,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

func (p *PaymentRecord) Key() AccountKey {
	return AccountKey{UserID: p.UserID, GuildID: p.GuildID}
}

func (p *PaymentRecord) IsCompleted() bool {
	return p != nil && p.Status == PaymentCompleted
}

type DemoUsageRecord struct {
	Used      int            `json:"used"`
	Max       int            `json:"max"`
	Commands  map[string]int `json:"commands,omitempty"`
	FirstUsed *time.Time     `json:"firstUsed,omitempty"`
	LastUsed  *time.Time     `json:"lastUsed,omitempty"`
}

func (d DemoUsageRecord) Remaining() int {
	if d.Used >= d.Max {
		return 0
	}
	return d.Max - d.Used
}

// MemberSnapshot is the part of a guild membership the entitlement checks
// look at. A nil snapshot means membership data was not available.
type MemberSnapshot struct {
	UserID       string
	GuildID      string
	Roles        []string
	PremiumSince *time.Time
}

func (m *MemberSnapshot) HasRole(roleID string) bool {
	if m == nil || roleID == "" {
		return false
	}
	for _, r := range m.Roles {
		if r == roleID {
			return true
		}
	}
	return false
}
