/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package gamelog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrUnknownDialect = errors.New("unknown log dialect")

// Entry is one recorded selection.
type Entry struct {
	ID    uuid.UUID `json:"id"`
	Table string    `json:"table"`
	Slot  int       `json:"slot"`
	At    time.Time `json:"at"`
}

// Meta is the persisted reset bookkeeping. A zero LastReset means the store
// has never been initialised.
type Meta struct {
	Policy    Policy
	LastReset time.Time
}

// Store is where entries and meta live.
type Store interface {
	Append(ctx context.Context, e Entry) error
	Entries(ctx context.Context, table string) ([]Entry, error)
	Clear(ctx context.Context) error
	Meta(ctx context.Context) (Meta, error)
	SaveMeta(ctx context.Context, m Meta) error
	Close() error
}

type Dialect string

const (
	DialectMemory   Dialect = "memory"
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

func ParseDialect(s string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(strings.TrimSpace(s))); d {
	case DialectMemory, DialectSQLite, DialectPostgres:
		return d, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDialect, s)
	}
}

// OpenStore returns the store for dialect. dsn is a file path for sqlite and
// a connection string for postgres; it is ignored for memory.
func OpenStore(ctx context.Context, dialect Dialect, dsn string) (Store, error) {
	if dialect == DialectMemory {
		return NewMemoryStore(), nil
	}

	return OpenSQLStore(ctx, dialect, dsn)
}
