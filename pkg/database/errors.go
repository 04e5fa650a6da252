package database

import (
	"strings"

	"github.com/lib/pq"
	"github.com/tablestack/tablestack-backend/pkg/errors"
)

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not a pq.Error.
func MapPQError(err error) *errors.AppError {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return nil
	}

	switch pqErr.Code {
	case "23514":
		return mapCheckConstraint(pqErr)

	case "23505":
		return errors.Conflict(formatConstraintMessage(pqErr))

	case "23503":
		if strings.Contains(pqErr.Constraint, "category") {
			return errors.InvalidField("category_id", "category does not exist")
		}
		return errors.NotFound("referenced record")

	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.InvalidField(col, "must not be empty")

	default:
		return nil
	}
}

func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "no_nested_split"):
		return errors.Conflict("a split allocation cannot itself be split")

	case strings.Contains(constraint, "pos_system"):
		return errors.InvalidField("pos_system", "must be one of: square, clover, toast, shift4, manual, manual_upload")

	case strings.Contains(constraint, "adjustment_type"):
		return errors.InvalidField("adjustment_type", "must be one of: tax, tip, service_charge, discount, fee, void")

	case strings.Contains(constraint, "item_type"):
		return errors.InvalidField("item_type", "must be one of: sale, discount, tax, tip, service_charge, fee, refund, other")

	case strings.Contains(constraint, "amount_nonzero"):
		return errors.InvalidField("amount", "must not be zero")

	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}

func formatConstraintMessage(pqErr *pq.Error) string {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "unified_sales_identity"):
		return "a sale with this POS order and item already exists"
	case strings.Contains(constraint, "restaurants"):
		return "a restaurant with this name already exists"
	case strings.Contains(constraint, "user_restaurants"):
		return "the user is already a member of this restaurant"
	default:
		return "a record with these values already exists"
	}
}
