package claims

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/google/uuid"

	"github.com/clearclaim/driftwatch/internal/models"
)

// ClickHouseConfig holds ClickHouse connection settings for the claims store.
type ClickHouseConfig struct {
	// Addresses are the ClickHouse server addresses (host:port).
	Addresses []string `yaml:"addresses"`

	// Database is the ClickHouse database name.
	Database string `yaml:"database"`

	// Username for authentication.
	Username string `yaml:"username"`

	// Password for authentication.
	Password string `yaml:"password"`

	// MaxOpenConns is the maximum number of open connections.
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections.
	MaxIdleConns int `yaml:"max_idle_conns"`

	// DialTimeout is the connection timeout.
	DialTimeout time.Duration `yaml:"dial_timeout"`

	// Compression enables LZ4 compression.
	Compression bool `yaml:"compression"`
}

// ClickHouseStore implements Reader over a ClickHouse claims table.
type ClickHouseStore struct {
	config *ClickHouseConfig
	db     *sql.DB
}

// NewClickHouseStore creates a claims store with defaults applied.
func NewClickHouseStore(config *ClickHouseConfig) *ClickHouseStore {
	if config.MaxOpenConns == 0 {
		config.MaxOpenConns = 5
	}
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 5
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = 5 * time.Second
	}
	return &ClickHouseStore{config: config}
}

// Open initializes the ClickHouse connection.
func (s *ClickHouseStore) Open() error {
	opts := &clickhouse.Options{
		Addr: s.config.Addresses,
		Auth: clickhouse.Auth{
			Database: s.config.Database,
			Username: s.config.Username,
			Password: s.config.Password,
		},
		DialTimeout:  s.config.DialTimeout,
		MaxOpenConns: s.config.MaxOpenConns,
		MaxIdleConns: s.config.MaxIdleConns,
	}

	if s.config.Compression {
		opts.Compression = &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		}
	}

	db := clickhouse.OpenDB(opts)

	ctx, cancel := context.WithTimeout(context.Background(), s.config.DialTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping clickhouse: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *ClickHouseStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Migrate creates the claims table if it doesn't exist. The table is normally
// populated by the ingestion collaborator; driftwatch only creates it for
// local development and seeding.
func (s *ClickHouseStore) Migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	createTable := `
		CREATE TABLE IF NOT EXISTS claims (
			id UUID DEFAULT generateUUIDv4(),
			tenant_id LowCardinality(String),
			payer LowCardinality(String),
			procedure_group LowCardinality(String),
			outcome LowCardinality(String),
			submitted_date DateTime64(3, 'UTC'),
			decided_date DateTime64(3, 'UTC'),
			payment_date DateTime64(3, 'UTC'),
			allowed_amount Float64,
			paid_amount Float64,
			authorization_required UInt8,
			denial_reason String DEFAULT '',
			_date Date DEFAULT toDate(decided_date)
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(_date)
		ORDER BY (tenant_id, payer, procedure_group, decided_date, id)
		SETTINGS index_granularity = 8192
	`
	if _, err := s.db.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("create claims table: %w", err)
	}
	return nil
}

// Ping checks the connection health.
func (s *ClickHouseStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InsertBatch inserts claims using a batched transaction. Used by seeding and
// fixtures only; production claims arrive via the ingestion collaborator.
func (s *ClickHouseStore) InsertBatch(ctx context.Context, entries []*models.Claim) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO claims (
			id, tenant_id, payer, procedure_group, outcome,
			submitted_date, decided_date, payment_date,
			allowed_amount, paid_amount, authorization_required, denial_reason
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, c := range entries {
		id := c.ID
		if id == "" {
			id = uuid.New().String()
		}
		authRequired := uint8(0)
		if c.AuthRequired {
			authRequired = 1
		}
		_, err := stmt.ExecContext(ctx,
			id,
			c.TenantID,
			c.Payer,
			c.ProcedureGroup,
			string(c.Outcome),
			c.SubmittedDate,
			c.DecidedDate,
			c.PaymentDate,
			c.AllowedAmount,
			c.PaidAmount,
			authRequired,
			c.DenialReason,
		)
		if err != nil {
			return fmt.Errorf("exec: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListClaims implements Reader.
func (s *ClickHouseStore) ListClaims(ctx context.Context, tenantID string, key models.GroupingKey, start, end time.Time, basis DateBasis) ([]*models.Claim, error) {
	query, args := buildClaimQuery(tenantID, key, start, end, basis)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query claims: %w", err)
	}
	defer rows.Close()

	var claims []*models.Claim
	for rows.Next() {
		c := &models.Claim{}
		var outcome string
		var authRequired uint8

		err := rows.Scan(
			&c.ID,
			&c.TenantID,
			&c.Payer,
			&c.ProcedureGroup,
			&outcome,
			&c.SubmittedDate,
			&c.DecidedDate,
			&c.PaymentDate,
			&c.AllowedAmount,
			&c.PaidAmount,
			&authRequired,
			&c.DenialReason,
		)
		if err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}

		c.Outcome = models.ParseOutcome(outcome)
		c.AuthRequired = authRequired != 0
		claims = append(claims, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return claims, nil
}

// GroupingKeys implements Reader.
func (s *ClickHouseStore) GroupingKeys(ctx context.Context, tenantID string, start, end time.Time) ([]models.GroupingKey, error) {
	query := `
		SELECT DISTINCT payer, procedure_group
		FROM claims
		WHERE tenant_id = ? AND decided_date >= ? AND decided_date < ?
		ORDER BY payer, procedure_group
	`
	rows, err := s.db.QueryContext(ctx, query, tenantID, start, end)
	if err != nil {
		return nil, fmt.Errorf("query grouping keys: %w", err)
	}
	defer rows.Close()

	var keys []models.GroupingKey
	for rows.Next() {
		var k models.GroupingKey
		if err := rows.Scan(&k.Payer, &k.ProcedureGroup); err != nil {
			return nil, fmt.Errorf("scan grouping key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// buildClaimQuery constructs the claim listing query. The tenant filter is
// always present and never optional.
func buildClaimQuery(tenantID string, key models.GroupingKey, start, end time.Time, basis DateBasis) (string, []interface{}) {
	var sb strings.Builder
	var args []interface{}

	sb.WriteString(`
		SELECT id, tenant_id, payer, procedure_group, outcome,
		       submitted_date, decided_date, payment_date,
		       allowed_amount, paid_amount, authorization_required, denial_reason
		FROM claims
	`)

	dateCol := "decided_date"
	if basis == BasisSubmitted {
		dateCol = "submitted_date"
	}

	conditions := []string{"tenant_id = ?", "payer = ?", "procedure_group = ?"}
	args = append(args, tenantID, key.Payer, key.ProcedureGroup)

	conditions = append(conditions, dateCol+" >= ?", dateCol+" < ?")
	args = append(args, start, end)

	sb.WriteString(" WHERE ")
	sb.WriteString(strings.Join(conditions, " AND "))
	sb.WriteString(fmt.Sprintf(" ORDER BY %s", dateCol))

	return sb.String(), args
}
