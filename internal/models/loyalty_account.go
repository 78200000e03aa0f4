// Package models provides data model definitions for StayOps Core.
package models

// EntityTypeLoyaltyAccount is the replay dispatch tag for loyalty accounts.
const EntityTypeLoyaltyAccount = "loyalty_account"

// LoyaltyAccount tracks a guest's loyalty tier and point balance.
// Tier math is owned by the loyalty service; the engine only syncs the row.
type LoyaltyAccount struct {
	ID           UUID       `db:"id" json:"id"`
	GuestID      UUID       `db:"guest_id" json:"guest_id"`
	Tier         string     `db:"tier" json:"tier"` // standard, silver, gold, platinum
	Points       int64      `db:"points" json:"points"`
	SyncStatus   SyncStatus `db:"sync_status" json:"sync_status"`
	LastModified int64      `db:"last_modified" json:"last_modified"`
	CreatedAt    int64      `db:"created_at" json:"created_at"`
}

// TableName returns the table name for LoyaltyAccount.
func (LoyaltyAccount) TableName() string {
	return "loyalty_accounts"
}
