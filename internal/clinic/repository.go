package clinic

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository loads clinic directory data from PostgreSQL.
type Repository struct {
	db querier
}

// NewRepository creates a repository backed by pgx pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("clinic: pgx pool required")
	}
	return &Repository{db: pool}
}

// NewRepositoryWithQuerier allows injecting mocks for tests.
func NewRepositoryWithQuerier(q querier) *Repository {
	if q == nil {
		panic("clinic: querier required")
	}
	return &Repository{db: q}
}

// LoadProfile assembles the full directory entry for a clinic.
func (r *Repository) LoadProfile(ctx context.Context, clinicID string) (*Profile, error) {
	profile := &Profile{ID: clinicID}
	query := `
		SELECT name, COALESCE(address, ''), COALESCE(city, ''), COALESCE(state, ''),
		       COALESCE(phone, ''), COALESCE(timezone, 'America/Sao_Paulo'), require_deposit
		FROM clinics WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, clinicID).Scan(
		&profile.Name, &profile.Address, &profile.City, &profile.State,
		&profile.Phone, &profile.Timezone, &profile.RequireDeposit,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("clinic: load profile: %w", err)
	}

	if profile.Professionals, err = r.loadProfessionals(ctx, clinicID); err != nil {
		return nil, err
	}
	if profile.Services, err = r.loadServices(ctx, clinicID); err != nil {
		return nil, err
	}
	return profile, nil
}

// ClinicIDByWhatsAppNumber resolves which clinic owns a WhatsApp business
// phone number id. Webhook deliveries carry only the number id.
func (r *Repository) ClinicIDByWhatsAppNumber(ctx context.Context, phoneNumberID string) (string, error) {
	var clinicID string
	query := `SELECT id FROM clinics WHERE whatsapp_phone_number_id = $1`
	if err := r.db.QueryRow(ctx, query, phoneNumberID).Scan(&clinicID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("clinic: lookup by whatsapp number: %w", err)
	}
	return clinicID, nil
}

func (r *Repository) loadProfessionals(ctx context.Context, clinicID string) ([]Professional, error) {
	query := `
		SELECT id, name, COALESCE(specialty, '')
		FROM professionals WHERE clinic_id = $1 AND active
		ORDER BY name
	`
	rows, err := r.db.Query(ctx, query, clinicID)
	if err != nil {
		return nil, fmt.Errorf("clinic: list professionals: %w", err)
	}
	defer rows.Close()

	var pros []Professional
	for rows.Next() {
		var p Professional
		if err := rows.Scan(&p.ID, &p.Name, &p.Specialty); err != nil {
			return nil, fmt.Errorf("clinic: scan professional: %w", err)
		}
		pros = append(pros, p)
	}
	return pros, rows.Err()
}

func (r *Repository) loadServices(ctx context.Context, clinicID string) ([]Service, error) {
	query := `
		SELECT id, name, COALESCE(price, ''), COALESCE(professional_id, '')
		FROM services WHERE clinic_id = $1
		ORDER BY created_at
	`
	rows, err := r.db.Query(ctx, query, clinicID)
	if err != nil {
		return nil, fmt.Errorf("clinic: list services: %w", err)
	}
	defer rows.Close()

	var services []Service
	for rows.Next() {
		var s Service
		if err := rows.Scan(&s.ID, &s.Name, &s.Price, &s.ProfessionalID); err != nil {
			return nil, fmt.Errorf("clinic: scan service: %w", err)
		}
		services = append(services, s)
	}
	return services, rows.Err()
}
