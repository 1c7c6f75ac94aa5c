// Package catalog persists a runtime's type hierarchy and method listings
// in a SQLite file, so a world can be inspected or its types restored
// without re-running the loader.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/funvibe/dispatch/internal/evaluator"
	"github.com/funvibe/dispatch/internal/typesystem"
)

const schema = `
CREATE TABLE IF NOT EXISTS types (
    position INTEGER NOT NULL,
    name     TEXT    NOT NULL,
    parent   TEXT,
    abstract BOOLEAN NOT NULL DEFAULT FALSE,
PRIMARY KEY (name));

CREATE TABLE IF NOT EXISTS methods (
    function  TEXT    NOT NULL,
    seq       INTEGER NOT NULL,
    handle    TEXT    NOT NULL,
    signature TEXT    NOT NULL,
    native    BOOLEAN NOT NULL DEFAULT FALSE,
PRIMARY KEY (function, seq));`

// TypeRecord is one stored type. Parent is empty for a root.
type TypeRecord struct {
	Name     string
	Parent   string
	Abstract bool
}

// MethodRecord is one stored method in insertion order.
type MethodRecord struct {
	Handle    uuid.UUID
	Signature string
	Native    bool
}

type Catalog struct {
	db   *sql.DB
	path string
}

// Open opens or creates the catalog at path and ensures the schema.
func Open(ctx context.Context, path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening catalog %s: %w", path, err)
	}
	// one writer; sqlite serialises anyway and this avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening catalog %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating catalog schema: %w", err)
	}
	return &Catalog{db: db, path: path}, nil
}

func (c *Catalog) Path() string { return c.path }

func (c *Catalog) Close() error { return c.db.Close() }

// SaveHierarchy stores every type of h, replacing earlier records of the
// same names. It returns the number of types written.
func (c *Catalog) SaveHierarchy(ctx context.Context, h *typesystem.Hierarchy) (int, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO types (position, name, parent, abstract) VALUES (?, ?, ?, ?)
ON CONFLICT (name) DO UPDATE SET position = excluded.position, parent = excluded.parent, abstract = excluded.abstract`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	types := h.Types()
	for _, t := range types {
		var parent sql.NullString
		if t.Parent != typesystem.NoType {
			parent = sql.NullString{String: h.Name(t.Parent), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, int(t.ID), t.Name, parent, t.Abstract); err != nil {
			return 0, fmt.Errorf("saving type %s: %w", t.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(types), nil
}

// Types lists stored types parents first.
func (c *Catalog) Types(ctx context.Context) ([]TypeRecord, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT name, parent, abstract FROM types ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TypeRecord
	for rows.Next() {
		var rec TypeRecord
		var parent sql.NullString
		if err := rows.Scan(&rec.Name, &parent, &rec.Abstract); err != nil {
			return nil, err
		}
		rec.Parent = parent.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ErrConflict is returned by Restore when a stored type exists in the
// target runtime with a different parent or abstract flag.
var ErrConflict = errors.New("catalog: type conflicts with existing declaration")

// Restore declares the stored types missing from rt, parents first. Types
// already declared must agree with the stored record. New types go through
// rt.DeclareType, so a stored subtype of a concrete type fails with a
// DefinitionError and a stored root other than Any is restored under Any.
// It returns the number of types added before any failure.
func (c *Catalog) Restore(ctx context.Context, rt *evaluator.Runtime) (int, error) {
	recs, err := c.Types(ctx)
	if err != nil {
		return 0, err
	}
	h := rt.Types()
	added := 0
	for _, rec := range recs {
		if id, ok := h.Lookup(rec.Name); ok {
			t, _ := h.Type(id)
			parent := ""
			if t.Parent != typesystem.NoType {
				parent = h.Name(t.Parent)
			}
			if parent != rec.Parent || t.Abstract != rec.Abstract {
				return added, fmt.Errorf("%w: %s", ErrConflict, rec.Name)
			}
			continue
		}
		if _, err := rt.DeclareType(rec.Name, rec.Parent, rec.Abstract); err != nil {
			return added, fmt.Errorf("restoring type %s: %w", rec.Name, err)
		}
		added++
	}
	return added, nil
}

// SaveMethods replaces the stored method list of function.
func (c *Catalog) SaveMethods(ctx context.Context, function string, methods []MethodRecord) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM methods WHERE function = ?`, function); err != nil {
		return err
	}
	for i, m := range methods {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO methods (function, seq, handle, signature, native) VALUES (?, ?, ?, ?, ?)`,
			function, i, m.Handle.String(), m.Signature, m.Native); err != nil {
			return fmt.Errorf("saving %s: %w", m.Signature, err)
		}
	}
	return tx.Commit()
}

// Methods returns the stored methods of function in insertion order.
func (c *Catalog) Methods(ctx context.Context, function string) ([]MethodRecord, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT handle, signature, native FROM methods WHERE function = ? ORDER BY seq`, function)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MethodRecord
	for rows.Next() {
		var rec MethodRecord
		var handle string
		if err := rows.Scan(&handle, &rec.Signature, &rec.Native); err != nil {
			return nil, err
		}
		if rec.Handle, err = uuid.Parse(handle); err != nil {
			return nil, fmt.Errorf("method %s: %w", rec.Signature, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Functions lists the stored generic function names, sorted.
func (c *Catalog) Functions(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT DISTINCT function FROM methods ORDER BY function`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// Snapshot saves the hierarchy and every generic function of rt.
func (c *Catalog) Snapshot(ctx context.Context, rt *evaluator.Runtime) error {
	if _, err := c.SaveHierarchy(ctx, rt.Types()); err != nil {
		return err
	}
	for _, name := range rt.Functions() {
		infos, err := rt.ListMethods(name)
		if err != nil {
			return err
		}
		recs := make([]MethodRecord, len(infos))
		for i, m := range infos {
			recs[i] = MethodRecord{Handle: m.ID, Signature: m.Text, Native: m.Native}
		}
		if err := c.SaveMethods(ctx, name, recs); err != nil {
			return err
		}
	}
	return nil
}
