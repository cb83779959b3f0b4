// Package pgstore reads price samples from PostgreSQL. The admission gate
// only ever reads from it; sample writes happen elsewhere.
package pgstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Store wraps a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store on an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect opens a pool against url and verifies connectivity.
func Connect(ctx context.Context, url string) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	log.Info().Msg("Price store: connected to Postgres")
	return &Store{pool: pool}, nil
}

// Pool exposes the underlying pool, mainly for shutdown.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// RecentValidated returns prices of current, validated samples for fuelType
// created at or after since. A non-empty region restricts to stations whose
// state matches it. Implements pricecheck.SampleSource.
func (s *Store) RecentValidated(ctx context.Context, fuelType, region string, since time.Time) ([]float64, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT gp.price FROM gas_prices gp`)
	args := []interface{}{strings.ToLower(fuelType), since}
	if region != "" {
		sb.WriteString(` JOIN gas_stations gs ON gs.id = gp.gas_station_id`)
	}
	sb.WriteString(` WHERE gp.fuel_type = $1 AND gp.created_at >= $2 AND gp.is_current AND gp.validation_status = 'validated'`)
	if region != "" {
		args = append(args, "%"+region+"%")
		sb.WriteString(` AND gs.state ILIKE $3`)
	}

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query validated samples: %w", err)
	}
	defer rows.Close()

	var prices []float64
	for rows.Next() {
		var price float64
		if err := rows.Scan(&price); err != nil {
			return nil, fmt.Errorf("scan sample price: %w", err)
		}
		prices = append(prices, price)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate samples: %w", err)
	}
	return prices, nil
}

// PriceFilter narrows the CurrentPrices listing.
type PriceFilter struct {
	FuelType string
	City     string
	State    string
	Limit    int
}

// PriceRow is one current price joined with its station, for the read-side
// listing endpoints.
type PriceRow struct {
	StationID      string    `json:"gas_station_id"`
	StationName    string    `json:"gas_station_name"`
	StationAddress string    `json:"gas_station_address"`
	StationBrand   string    `json:"gas_station_brand"`
	FuelType       string    `json:"fuel_type"`
	Price          float64   `json:"price"`
	City           string    `json:"city"`
	State          string    `json:"state"`
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// CurrentPrices returns current validated prices across active stations,
// cheapest first.
func (s *Store) CurrentPrices(ctx context.Context, filter PriceFilter) ([]PriceRow, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT gs.id, gs.name, gs.address, gs.brand, gp.fuel_type, gp.price, gs.city, gs.state, gs.latitude, gs.longitude, gp.created_at
		FROM gas_prices gp
		JOIN gas_stations gs ON gs.id = gp.gas_station_id
		WHERE gp.is_current AND gp.validation_status = 'validated' AND gs.is_active`)

	var args []interface{}
	if filter.FuelType != "" {
		args = append(args, strings.ToLower(filter.FuelType))
		fmt.Fprintf(&sb, " AND gp.fuel_type = $%d", len(args))
	}
	if filter.City != "" {
		args = append(args, "%"+filter.City+"%")
		fmt.Fprintf(&sb, " AND gs.city ILIKE $%d", len(args))
	}
	if filter.State != "" {
		args = append(args, "%"+filter.State+"%")
		fmt.Fprintf(&sb, " AND gs.state ILIKE $%d", len(args))
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	args = append(args, limit)
	fmt.Fprintf(&sb, " ORDER BY gp.price ASC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query current prices: %w", err)
	}
	defer rows.Close()

	var out []PriceRow
	for rows.Next() {
		var r PriceRow
		if err := rows.Scan(&r.StationID, &r.StationName, &r.StationAddress, &r.StationBrand, &r.FuelType, &r.Price, &r.City, &r.State, &r.Latitude, &r.Longitude, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan price row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price rows: %w", err)
	}
	return out, nil
}
