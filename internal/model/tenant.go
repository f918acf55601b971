// Package model holds the entities shared across the store, compliance
// gate, delivery queue, and reconciler.
package model

import "time"

// Tenant is the isolation boundary for every scoped table.
type Tenant struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
