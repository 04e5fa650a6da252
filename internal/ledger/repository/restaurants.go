package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/tablestack/tablestack-backend/internal/ledger/domain"
	"github.com/tablestack/tablestack-backend/pkg/database"
	"github.com/tablestack/tablestack-backend/pkg/errors"
	"github.com/tablestack/tablestack-backend/pkg/permissions"
)

// RestaurantRepository handles restaurants and their POS connections.
type RestaurantRepository struct {
	db          *database.DB
	memberships *MembershipRepository
}

// NewRestaurantRepository creates a new restaurant repository
func NewRestaurantRepository(db *database.DB) *RestaurantRepository {
	return &RestaurantRepository{db: db, memberships: NewMembershipRepository(db)}
}

// Timezone returns the restaurant's configured zone name, which may be nil.
func (r *RestaurantRepository) Timezone(ctx context.Context, restaurantID string) (*string, error) {
	var tz sql.NullString
	err := r.db.Conn(ctx).GetContext(ctx, &tz, `SELECT timezone FROM restaurants WHERE id = $1`, restaurantID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("restaurant")
	}
	if err != nil {
		return nil, err
	}
	if !tz.Valid || strings.TrimSpace(tz.String) == "" {
		return nil, nil
	}
	return &tz.String, nil
}

// ListWithActiveConnection returns the ids of restaurants with an active
// connection to the vendor.
func (r *RestaurantRepository) ListWithActiveConnection(ctx context.Context, vendor domain.POSSystem) ([]string, error) {
	ids := []string{}
	err := r.db.Conn(ctx).SelectContext(ctx, &ids, `
		SELECT restaurant_id FROM pos_connections
		WHERE pos_system = $1 AND is_active = true
		ORDER BY restaurant_id`,
		vendor,
	)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// MarkSynced stamps the connection's last successful sync time.
func (r *RestaurantRepository) MarkSynced(ctx context.Context, restaurantID string, vendor domain.POSSystem) error {
	_, err := r.db.Conn(ctx).ExecContext(ctx,
		`UPDATE pos_connections SET last_sync_at = NOW() WHERE restaurant_id = $1 AND pos_system = $2`,
		restaurantID, vendor,
	)
	return err
}

// CreateDeduplicated creates a restaurant owned by createdBy. A restaurant with
// the same name created by the same user within the last five seconds is
// returned instead, so double-submitted forms do not produce twins. The second
// return value reports whether a new row was written.
func (r *RestaurantRepository) CreateDeduplicated(ctx context.Context, createdBy, name string, timezone *string) (*domain.Restaurant, bool, error) {
	var (
		restaurant domain.Restaurant
		created    bool
	)

	err := r.db.InTx(ctx, func(ctx context.Context) error {
		key := createdBy + ":" + strings.ToLower(name)
		if err := r.db.AdvisoryXactLock(ctx, key); err != nil {
			return err
		}

		conn := r.db.Conn(ctx)
		err := conn.GetContext(ctx, &restaurant, `
			SELECT id, name, timezone, created_by, created_at
			FROM restaurants
			WHERE created_by = $1 AND lower(name) = lower($2)
			  AND created_at > NOW() - INTERVAL '5 seconds'
			ORDER BY created_at DESC
			LIMIT 1`,
			createdBy, name,
		)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		err = conn.GetContext(ctx, &restaurant, `
			INSERT INTO restaurants (name, timezone, created_by)
			VALUES ($1, $2, $3)
			RETURNING id, name, timezone, created_by, created_at`,
			name, timezone, createdBy,
		)
		if err != nil {
			if appErr := database.MapPQError(err); appErr != nil {
				return appErr
			}
			return err
		}
		created = true

		return r.memberships.Add(ctx, createdBy, restaurant.ID, permissions.RoleOwner)
	})
	if err != nil {
		return nil, false, err
	}
	return &restaurant, created, nil
}
