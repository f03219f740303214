package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/artpar/flowgate/domain/catalog"
	"github.com/artpar/flowgate/domain/datatype"
	"github.com/artpar/flowgate/domain/flow"
	"github.com/artpar/flowgate/ports"
)

// ErrNoImport is returned by LastImport when nothing was imported yet.
var ErrNoImport = errors.New("no catalog imported")

// ImportRecord describes one catalog import.
type ImportRecord struct {
	ID         int64
	Source     string
	DataTypes  int
	FlowTypes  int
	Flows      int
	ImportedAt time.Time
}

// CatalogStore implements ports.CatalogStore using SQLite.
type CatalogStore struct {
	db  *DB
	now func() time.Time
}

// NewCatalogStore creates a new SQLite catalog store.
func NewCatalogStore(db *DB) *CatalogStore {
	return &CatalogStore{db: db, now: time.Now}
}

// Name implements ports.CatalogSource.
func (s *CatalogStore) Name() string { return "sqlite:" + s.db.Path() }

// Import replaces the stored catalog with def in one transaction.
func (s *CatalogStore) Import(ctx context.Context, def catalog.Definition) error {
	return s.ImportFrom(ctx, "", def)
}

// ImportFrom is Import recording where def came from.
func (s *CatalogStore) ImportFrom(ctx context.Context, source string, def catalog.Definition) error {
	def = def.Normalize()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"data_types", "flow_types", "flows"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for i, dt := range def.DataTypes {
		data, err := json.Marshal(dt)
		if err != nil {
			return fmt.Errorf("encode data type %s: %w", dt.Identifier, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO data_types (identifier, position, definition) VALUES (?, ?, ?)",
			dt.Identifier, i, string(data)); err != nil {
			return fmt.Errorf("insert data type %s: %w", dt.Identifier, err)
		}
	}

	for i, ft := range def.FlowTypes {
		data, err := json.Marshal(ft)
		if err != nil {
			return fmt.Errorf("encode flow type %s: %w", ft.Identifier, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO flow_types (identifier, position, definition) VALUES (?, ?, ?)",
			ft.Identifier, i, string(data)); err != nil {
			return fmt.Errorf("insert flow type %s: %w", ft.Identifier, err)
		}
	}

	for i, f := range def.Flows {
		settings, err := marshalSettings(f.Settings)
		if err != nil {
			return fmt.Errorf("encode settings of %s: %w", f.ID, err)
		}
		body, err := json.Marshal(f.Body)
		if err != nil {
			return fmt.Errorf("encode body of %s: %w", f.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO flows (id, position, flow_type_identifier, pattern, settings, body)
			VALUES (?, ?, ?, ?, ?, ?)
		`, f.ID, i, f.FlowTypeIdentifier, f.Pattern, settings, string(body)); err != nil {
			return fmt.Errorf("insert flow %s: %w", f.ID, err)
		}
	}

	types, flowTypes, flows := def.Counts()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO catalog_imports (source, data_types, flow_types, flows, imported_at)
		VALUES (?, ?, ?, ?, ?)
	`, source, types, flowTypes, flows, s.now().UTC()); err != nil {
		return fmt.Errorf("record import: %w", err)
	}

	return tx.Commit()
}

// Load implements ports.CatalogSource.
func (s *CatalogStore) Load(ctx context.Context) (catalog.Definition, error) {
	var def catalog.Definition

	err := s.scanJSON(ctx, "SELECT definition FROM data_types ORDER BY position", func(data []byte) error {
		var dt datatype.DataType
		if err := json.Unmarshal(data, &dt); err != nil {
			return err
		}
		def.DataTypes = append(def.DataTypes, dt)
		return nil
	})
	if err != nil {
		return catalog.Definition{}, fmt.Errorf("load data types: %w", err)
	}

	err = s.scanJSON(ctx, "SELECT definition FROM flow_types ORDER BY position", func(data []byte) error {
		var ft flow.FlowType
		if err := json.Unmarshal(data, &ft); err != nil {
			return err
		}
		def.FlowTypes = append(def.FlowTypes, ft)
		return nil
	})
	if err != nil {
		return catalog.Definition{}, fmt.Errorf("load flow types: %w", err)
	}

	flows, err := s.loadFlows(ctx)
	if err != nil {
		return catalog.Definition{}, fmt.Errorf("load flows: %w", err)
	}
	def.Flows = flows

	return def, nil
}

// LastImport returns the most recent import record.
func (s *CatalogStore) LastImport(ctx context.Context) (ImportRecord, error) {
	var rec ImportRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT id, source, data_types, flow_types, flows, imported_at
		FROM catalog_imports
		ORDER BY id DESC
		LIMIT 1
	`).Scan(&rec.ID, &rec.Source, &rec.DataTypes, &rec.FlowTypes, &rec.Flows, &rec.ImportedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ImportRecord{}, ErrNoImport
	}
	if err != nil {
		return ImportRecord{}, err
	}
	return rec, nil
}

func (s *CatalogStore) loadFlows(ctx context.Context) ([]catalog.FlowDefinition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, flow_type_identifier, pattern, settings, body
		FROM flows
		ORDER BY position
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var flows []catalog.FlowDefinition
	for rows.Next() {
		var f catalog.FlowDefinition
		var settings, body string
		if err := rows.Scan(&f.ID, &f.FlowTypeIdentifier, &f.Pattern, &settings, &body); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(settings), &f.Settings); err != nil {
			return nil, fmt.Errorf("flow %s settings: %w", f.ID, err)
		}
		if len(f.Settings) == 0 {
			f.Settings = nil
		}
		if err := json.Unmarshal([]byte(body), &f.Body); err != nil {
			return nil, fmt.Errorf("flow %s body: %w", f.ID, err)
		}
		flows = append(flows, f)
	}
	return flows, rows.Err()
}

func (s *CatalogStore) scanJSON(ctx context.Context, query string, fn func(data []byte) error) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return err
		}
		if err := fn([]byte(data)); err != nil {
			return err
		}
	}
	return rows.Err()
}

func marshalSettings(settings map[string]any) (string, error) {
	if len(settings) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(settings)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

var _ ports.CatalogStore = (*CatalogStore)(nil)
