// Package db defines the database side of a records move: engine drivers,
// bulk loaders and unloaders, and the helpers shared by every engine.
//
// A Driver couples a connection with the knowledge needed to create tables
// for a records schema (schema.TypeChooser) and to read one back
// (schema.Introspector). Engines that have a bulk path expose a Loader
// and/or Unloader that translate validated hints into native options.
// Engines without one fall back to InsertLoader and QueryIterator.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"

	"github.com/bluelabsio/records-mover-sub001/internal/records"
	"github.com/bluelabsio/records-mover-sub001/internal/records/directory"
	"github.com/bluelabsio/records-mover-sub001/internal/records/schema"
)

// Driver is one open database.
type Driver interface {
	schema.Introspector

	// DB exposes the connection for generic SELECT and INSERT. Engines
	// without a database/sql driver return nil.
	DB() *sql.DB
	// Exec runs a statement that returns no rows, such as DDL.
	Exec(ctx context.Context, stmt string, args ...any) error
	// QuoteIdent quotes one identifier.
	QuoteIdent(name string) string
	// Placeholder returns the bind marker for the n-th argument, 1-based.
	Placeholder(n int) string

	// Loader returns nil when the engine has no bulk load path.
	Loader() Loader
	// Unloader returns nil when the engine has no bulk unload path.
	Unloader() Unloader

	Close() error
}

// Truncater is implemented by engines without TRUNCATE TABLE.
type Truncater interface {
	TruncateSQL(qualifiedTable string) string
}

// Deleter is implemented by engines whose DELETE needs a WHERE clause.
type Deleter interface {
	DeleteSQL(qualifiedTable string) string
}

// SchemaAdjuster is implemented by loaders that cannot store every logical
// type in format f and need the records schema changed first.
type SchemaAdjuster interface {
	AdjustSchema(f records.Format, s *schema.Schema) *schema.Schema
}

// TableRef names a table, optionally schema-qualified.
type TableRef struct {
	Schema string
	Table  string
}

func (t TableRef) String() string {
	if t.Schema == "" {
		return t.Table
	}
	return t.Schema + "." + t.Table
}

// Qualified returns the quoted, qualified table name for d.
func (t TableRef) Qualified(d Driver) string {
	if t.Schema == "" {
		return d.QuoteIdent(t.Table)
	}
	return d.QuoteIdent(t.Schema) + "." + d.QuoteIdent(t.Table)
}

// LoadRequest describes loading a records directory into a table.
type LoadRequest struct {
	Table     TableRef
	Directory *directory.Directory
	Format    records.Format
	Schema    *schema.Schema
	PI        records.ProcessingInstructions
}

// LoadChecker is implemented by loaders that can explain why they would
// refuse format f. The error is the one Load would return, typically an
// UnsupportedHintError naming the offending hint.
type LoadChecker interface {
	CheckLoad(f records.Format, pi records.ProcessingInstructions) error
}

// UnloadRequest describes unloading a table into a records directory.
type UnloadRequest struct {
	Table     TableRef
	Directory *directory.Directory
	Format    records.Format
	PI        records.ProcessingInstructions
}

// Loader bulk-loads records directories.
type Loader interface {
	// KnownSupportedFormats lists loadable formats, most preferred first.
	KnownSupportedFormats() []records.Format
	// CanLoad reports whether f can be loaded without dropping any hint.
	CanLoad(f records.Format) bool
	// AcceptedSchemes lists the URL schemes the engine reads data files
	// from. Nil means any scheme the resolver supports.
	AcceptedSchemes() []string
	// Load returns the number of rows loaded, or records.UnknownCount.
	Load(ctx context.Context, req LoadRequest) (int64, error)
}

// Unloader bulk-unloads tables.
type Unloader interface {
	KnownSupportedFormats() []records.Format
	CanUnload(f records.Format) bool
	// AcceptedSchemes lists the URL schemes the engine can write to. Nil
	// means any scheme the resolver supports.
	AcceptedSchemes() []string
	// Unload writes data files into req.Directory. It does not finalize
	// the directory.
	Unload(ctx context.Context, req UnloadRequest) (UnloadResult, error)
}

// UnloadResult lists the data files an unload wrote, in order.
type UnloadResult struct {
	URLs []string
	// Rows is records.UnknownCount when the engine does not report it.
	Rows int64
	// Format is set when the files differ from the requested format, which
	// happens when a permissive unload could not honor a hint.
	Format records.Format
}

// Config selects and configures an engine.
type Config struct {
	// Kind must match a registered engine, e.g. "postgres".
	Kind string
	DSN  string
	// Options carries engine-specific settings such as
	// "redshift.credentials" or "bigquery.project".
	Options map[string]string
}

// Option returns cfg.Options[key] or def.
func (c Config) Option(key, def string) string {
	if v, ok := c.Options[key]; ok && v != "" {
		return v
	}
	return def
}

type factory func(ctx context.Context, cfg Config) (Driver, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register makes an engine available to Open under kind.
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered.
func Register(kind string, f func(ctx context.Context, cfg Config) (Driver, error)) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("db: Register called with empty kind")
	}
	if f == nil {
		panic("db: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("db: driver already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// Kinds lists the registered engines, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Open constructs a Driver using the registered engine factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func Open(ctx context.Context, cfg Config) (Driver, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("db: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported database kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}
