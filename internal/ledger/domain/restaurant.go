package domain

import "time"

// Restaurant is the tenant every ledger row belongs to.
type Restaurant struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Timezone  *string   `db:"timezone" json:"timezone,omitempty"`
	CreatedBy string    `db:"created_by" json:"created_by"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
