package repository

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/vcdist/vcd/common/db"
)

//go:embed schema.sql
var schemaSQL string

// ApplySchema creates the tables if they do not exist
func ApplySchema(ctx context.Context, database *db.DB) error {
	// No arguments, so pgx sends this over the simple protocol and the
	// multi-statement script runs in one round trip.
	if _, err := database.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
