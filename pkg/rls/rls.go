package rls

import (
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// WithBusiness scopes row-level-security policies to businessID for the rest
// of the transaction. tx must be inside a transaction.
func WithBusiness(tx *gorm.DB, businessID snowflake.ID) error {
	return tx.Exec(
		"SELECT set_config('app.current_business_id', ?, true)",
		businessID.String(),
	).Error
}
