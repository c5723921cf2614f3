package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"civigate/internal/domain"
	"civigate/pkg/platform/sentinel"
)

// PostgresStore persists service records in PostgreSQL. Opened through the
// pgx stdlib driver so the store itself stays on database/sql.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Init creates the schema if it does not exist yet.
func (s *PostgresStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS registered_services (
			id                TEXT PRIMARY KEY,
			name              TEXT NOT NULL UNIQUE,
			display_name      TEXT NOT NULL,
			description       TEXT NOT NULL DEFAULT '',
			version           TEXT NOT NULL DEFAULT '',
			owner             TEXT NOT NULL DEFAULT '',
			tags              JSONB NOT NULL DEFAULT '[]',
			api_docs_url      TEXT NOT NULL DEFAULT '',
			base_url          TEXT NOT NULL,
			health_endpoint   TEXT NOT NULL,
			status            TEXT NOT NULL,
			health_status     TEXT NOT NULL,
			last_health_check TIMESTAMPTZ NOT NULL,
			is_public         BOOLEAN NOT NULL,
			required_roles    JSONB NOT NULL DEFAULT '[]',
			registered_by     TEXT NOT NULL DEFAULT '',
			created_at        TIMESTAMPTZ NOT NULL,
			updated_at        TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("init registry schema: %w", err)
	}
	return nil
}

const serviceColumns = `
	id, name, display_name, description, version, owner, tags, api_docs_url,
	base_url, health_endpoint, status, health_status, last_health_check,
	is_public, required_roles, registered_by, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, svc domain.RegisteredService) error {
	tags, roles, err := marshalLists(svc)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO registered_services (`+serviceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`,
		svc.ID, svc.Name, svc.DisplayName, svc.Description, svc.Version,
		svc.Owner, tags, svc.APIDocsURL, svc.BaseURL, svc.HealthEndpoint,
		string(svc.Status), string(svc.HealthStatus), svc.LastHealthCheck,
		svc.IsPublic, roles, svc.RegisteredBy, svc.CreatedAt, svc.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert service: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByName(ctx context.Context, name string) (domain.RegisteredService, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+serviceColumns+` FROM registered_services WHERE name = $1
	`, name)
	return scanService(row)
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (domain.RegisteredService, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+serviceColumns+` FROM registered_services WHERE id = $1
	`, id)
	return scanService(row)
}

func (s *PostgresStore) List(ctx context.Context) ([]domain.RegisteredService, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+serviceColumns+` FROM registered_services ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()
	return scanServices(rows)
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status domain.ServiceStatus) ([]domain.RegisteredService, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+serviceColumns+` FROM registered_services WHERE status = $1 ORDER BY name
	`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list services by status: %w", err)
	}
	defer rows.Close()
	return scanServices(rows)
}

func (s *PostgresStore) Update(ctx context.Context, svc domain.RegisteredService) error {
	tags, roles, err := marshalLists(svc)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE registered_services SET
			display_name = $2, description = $3, version = $4, owner = $5,
			tags = $6, api_docs_url = $7, base_url = $8, health_endpoint = $9,
			status = $10, health_status = $11, last_health_check = $12,
			is_public = $13, required_roles = $14, registered_by = $15,
			updated_at = $16
		WHERE name = $1
	`,
		svc.Name, svc.DisplayName, svc.Description, svc.Version, svc.Owner,
		tags, svc.APIDocsURL, svc.BaseURL, svc.HealthEndpoint,
		string(svc.Status), string(svc.HealthStatus), svc.LastHealthCheck,
		svc.IsPublic, roles, svc.RegisteredBy, svc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update service: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update service: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM registered_services WHERE name = $1
	`, name)
	if err != nil {
		return fmt.Errorf("delete service: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete service: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanService(row rowScanner) (domain.RegisteredService, error) {
	var svc domain.RegisteredService
	var status, healthStatus string
	var tags, roles []byte
	err := row.Scan(
		&svc.ID, &svc.Name, &svc.DisplayName, &svc.Description, &svc.Version,
		&svc.Owner, &tags, &svc.APIDocsURL, &svc.BaseURL, &svc.HealthEndpoint,
		&status, &healthStatus, &svc.LastHealthCheck, &svc.IsPublic, &roles,
		&svc.RegisteredBy, &svc.CreatedAt, &svc.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RegisteredService{}, sentinel.ErrNotFound
	}
	if err != nil {
		return domain.RegisteredService{}, fmt.Errorf("scan service: %w", err)
	}
	svc.Status = domain.ServiceStatus(status)
	svc.HealthStatus = domain.HealthStatus(healthStatus)
	if err := json.Unmarshal(tags, &svc.Tags); err != nil {
		return domain.RegisteredService{}, fmt.Errorf("decode tags: %w", err)
	}
	if err := json.Unmarshal(roles, &svc.RequiredRoles); err != nil {
		return domain.RegisteredService{}, fmt.Errorf("decode required roles: %w", err)
	}
	return svc, nil
}

func scanServices(rows *sql.Rows) ([]domain.RegisteredService, error) {
	services := []domain.RegisteredService{}
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate services: %w", err)
	}
	return services, nil
}

func marshalLists(svc domain.RegisteredService) ([]byte, []byte, error) {
	tags, err := json.Marshal(svc.Tags)
	if err != nil {
		return nil, nil, fmt.Errorf("encode tags: %w", err)
	}
	roles, err := json.Marshal(svc.RequiredRoles)
	if err != nil {
		return nil, nil, fmt.Errorf("encode required roles: %w", err)
	}
	return tags, roles, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
