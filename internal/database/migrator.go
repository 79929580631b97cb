package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/stocktrader/internal/domain"
	"github.com/rs/zerolog"
)

// SchemaState is the detected shape of the positions ledger.
type SchemaState string

const (
	// SchemaUnknown - no positions table yet
	SchemaUnknown SchemaState = "unknown"
	// SchemaLegacy - single-tenant table keyed by symbol alone
	SchemaLegacy SchemaState = "legacy"
	// SchemaCurrent - multi-tenant table keyed by (user_id, symbol)
	SchemaCurrent SchemaState = "current"
)

const (
	// PositionsTable is the ledger table in every schema version.
	PositionsTable = "positions"
	// LegacyPortfolioTable is the single-tenant table name used by the first release.
	LegacyPortfolioTable = "portfolio"

	legacyAsideTable = "positions_legacy"
	tenantColumn     = "user_id"
)

// MigrationResult describes what a Run did.
type MigrationResult struct {
	From         SchemaState
	To           SchemaState
	Source       string // table rows were copied from, empty unless From is legacy
	RowsMigrated int64
	Duration     time.Duration
}

// Migrator brings the ledger schema to SchemaCurrent. It must finish before
// any ledger operation is served; running it again after success is a no-op.
type Migrator struct {
	db            *sql.DB
	defaultUserID string
	log           zerolog.Logger
}

// NewMigrator creates a migrator. Legacy rows are assigned to defaultUserID.
func NewMigrator(db *sql.DB, defaultUserID string, log zerolog.Logger) *Migrator {
	if defaultUserID == "" {
		defaultUserID = domain.DefaultUserID
	}
	return &Migrator{
		db:            db,
		defaultUserID: defaultUserID,
		log:           log.With().Str("component", "migrator").Logger(),
	}
}

type schemaInfo struct {
	state  SchemaState
	source string
}

// DetectState reports the current schema state without changing anything.
func (m *Migrator) DetectState(ctx context.Context) (SchemaState, error) {
	info, err := m.inspect(ctx)
	if err != nil {
		return "", err
	}
	return info.state, nil
}

// Run detects the schema state and upgrades it to SchemaCurrent.
// A legacy upgrade happens in one transaction: on failure the store is left
// exactly as it was found.
func (m *Migrator) Run(ctx context.Context) (*MigrationResult, error) {
	start := time.Now()

	info, err := m.inspect(ctx)
	if err != nil {
		return nil, err
	}

	result := &MigrationResult{From: info.state, To: SchemaCurrent}

	switch info.state {
	case SchemaCurrent:
		m.log.Debug().Msg("Ledger schema is current")
		result.Duration = time.Since(start)
		return result, nil

	case SchemaUnknown:
		err = WithTransaction(ctx, m.db, func(tx *sql.Tx) error {
			return createCurrentSchema(ctx, tx)
		})
		if err != nil {
			return nil, fmt.Errorf("%w: create %s: %v", domain.ErrMigration, PositionsTable, err)
		}
		m.log.Info().Msg("Created ledger schema")

	case SchemaLegacy:
		result.Source = info.source
		err = WithTransaction(ctx, m.db, func(tx *sql.Tx) error {
			rows, err := m.upgradeLegacy(ctx, tx, info.source)
			result.RowsMigrated = rows
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("%w: upgrade %s: %v", domain.ErrMigration, info.source, err)
		}
		m.log.Info().
			Str("source", info.source).
			Str("user_id", m.defaultUserID).
			Int64("rows", result.RowsMigrated).
			Msg("Migrated single-tenant ledger")
	}

	after, err := m.inspect(ctx)
	if err != nil {
		return nil, err
	}
	if after.state != SchemaCurrent {
		return nil, fmt.Errorf("%w: schema is %s after migration", domain.ErrMigration, after.state)
	}

	result.Duration = time.Since(start)
	return result, nil
}

func (m *Migrator) upgradeLegacy(ctx context.Context, tx *sql.Tx, source string) (int64, error) {
	if source == PositionsTable {
		// Move the old table aside so the new one can take its name
		if _, err := tx.ExecContext(ctx, "ALTER TABLE "+PositionsTable+" RENAME TO "+legacyAsideTable); err != nil {
			return 0, fmt.Errorf("rename legacy table: %w", err)
		}
		source = legacyAsideTable
	}

	if err := createCurrentSchema(ctx, tx); err != nil {
		return 0, err
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO `+PositionsTable+` (user_id, symbol, quantity, avg_price)
		 SELECT ?, symbol, COALESCE(quantity, 0), COALESCE(avg_price, 0) FROM `+source,
		m.defaultUserID,
	)
	if err != nil {
		return 0, fmt.Errorf("copy legacy rows: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count migrated rows: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DROP TABLE "+source); err != nil {
		return 0, fmt.Errorf("drop legacy table: %w", err)
	}

	return rows, nil
}

func createCurrentSchema(ctx context.Context, tx *sql.Tx) error {
	content, err := schemaFS.ReadFile("schemas/ledger_schema.sql")
	if err != nil {
		return fmt.Errorf("read ledger schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, string(content)); err != nil {
		return fmt.Errorf("create ledger schema: %w", err)
	}
	return nil
}

func (m *Migrator) inspect(ctx context.Context) (schemaInfo, error) {
	exists, err := tableExists(ctx, m.db, PositionsTable)
	if err != nil {
		return schemaInfo{}, err
	}

	if exists {
		columns, err := tableColumns(ctx, m.db, PositionsTable)
		if err != nil {
			return schemaInfo{}, err
		}
		if columns[tenantColumn] {
			if legacy, _ := tableExists(ctx, m.db, LegacyPortfolioTable); legacy {
				m.log.Warn().Str("table", LegacyPortfolioTable).Msg("Legacy table present next to current ledger, leaving it untouched")
			}
			return schemaInfo{state: SchemaCurrent}, nil
		}
		if !columns["symbol"] {
			return schemaInfo{}, fmt.Errorf("%w: %s has no symbol column", domain.ErrMigration, PositionsTable)
		}
		return schemaInfo{state: SchemaLegacy, source: PositionsTable}, nil
	}

	legacy, err := tableExists(ctx, m.db, LegacyPortfolioTable)
	if err != nil {
		return schemaInfo{}, err
	}
	if legacy {
		columns, err := tableColumns(ctx, m.db, LegacyPortfolioTable)
		if err != nil {
			return schemaInfo{}, err
		}
		if columns["symbol"] && !columns[tenantColumn] {
			return schemaInfo{state: SchemaLegacy, source: LegacyPortfolioTable}, nil
		}
	}

	return schemaInfo{state: SchemaUnknown}, nil
}

func tableExists(ctx context.Context, db *sql.DB, name string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("%w: inspect table %s: %v", domain.ErrMigration, name, err)
	}
	return count > 0, nil
}

func tableColumns(ctx context.Context, db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return nil, fmt.Errorf("%w: inspect columns of %s: %v", domain.ErrMigration, table, err)
	}
	defer rows.Close()

	columns := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("%w: scan column of %s: %v", domain.ErrMigration, table, err)
		}
		columns[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate columns of %s: %v", domain.ErrMigration, table, err)
	}
	return columns, nil
}
