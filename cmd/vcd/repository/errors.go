package repository

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when the addressed row does not exist
	ErrNotFound = errors.New("not found")

	// ErrDuplicateClaim means the receiver already holds a claim in this campaign
	ErrDuplicateClaim = errors.New("receiver already claimed in campaign")

	// ErrItemClaimed means the item is already bound to another claim
	ErrItemClaimed = errors.New("item already claimed")

	// ErrHasClaims is returned when deleting a campaign that has claims
	ErrHasClaims = errors.New("campaign has claims")
)

// Postgres error codes
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Constraint names from schema.sql
const (
	constraintContentReceiver = "receive_history_content_receiver_key"
	constraintItem            = "receive_history_item_key"
)

// classifyClaimError maps a unique violation on receive_history to a sentinel
func classifyClaimError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return err
	}

	switch pgErr.ConstraintName {
	case constraintContentReceiver:
		return ErrDuplicateClaim
	case constraintItem:
		return ErrItemClaimed
	default:
		return err
	}
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
