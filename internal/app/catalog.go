package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/hylla/tavla/internal/domain"
)

// StaticCatalogVersion identifies the built-in status list.
const StaticCatalogVersion = "2024.1"

// CatalogSourceRemote and CatalogSourceStatic name where a column set came from.
const (
	CatalogSourceRemote = "remote"
	CatalogSourceStatic = "static"
)

// errEmptyCatalog reports a remote catalog with no usable rows.
var errEmptyCatalog = errors.New("empty status catalog")

// StatusCatalog loads the ordered column set for a board session.
type StatusCatalog interface {
	Load(context.Context) ([]domain.Column, error)
}

// RemoteCatalog builds columns from remote status metadata.
type RemoteCatalog struct {
	source StatusSource
}

// NewRemoteCatalog constructs a remote-backed catalog.
func NewRemoteCatalog(source StatusSource) *RemoteCatalog {
	return &RemoteCatalog{source: source}
}

// Load fetches statuses and converts them into sorted columns.
func (c *RemoteCatalog) Load(ctx context.Context) ([]domain.Column, error) {
	if c.source == nil {
		return nil, fmt.Errorf("%w: status source is not configured", ErrValidation)
	}
	rows, err := c.source.ListStatuses(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errEmptyCatalog
	}
	columns := make([]domain.Column, 0, len(rows))
	seen := map[string]struct{}{}
	for idx, row := range rows {
		column, err := domain.NewColumn(row.ID, row.Name, row.Position, row.IsClosed)
		if err != nil {
			return nil, fmt.Errorf("%w: statuses[%d]: %w", ErrMalformedResponse, idx, err)
		}
		if _, ok := seen[column.StatusID]; ok {
			return nil, fmt.Errorf("%w: statuses[%d]: %w", ErrMalformedResponse, idx, domain.ErrDuplicateColumn)
		}
		seen[column.StatusID] = struct{}{}
		columns = append(columns, column)
	}
	return domain.SortColumns(columns), nil
}

// StaticCatalog returns the built-in versioned status list.
type StaticCatalog struct {
	Version string
	rows    []StatusRecord
}

// NewStaticCatalog constructs the built-in catalog.
func NewStaticCatalog() *StaticCatalog {
	return &StaticCatalog{
		Version: StaticCatalogVersion,
		rows:    DefaultStatuses(),
	}
}

// DefaultStatuses returns the built-in status rows.
func DefaultStatuses() []StatusRecord {
	return []StatusRecord{
		{ID: "1", Name: "New", Position: 1},
		{ID: "2", Name: "In Progress", Position: 2},
		{ID: "3", Name: "Resolved", Position: 3},
		{ID: "4", Name: "Feedback", Position: 4},
		{ID: "5", Name: "Closed", Position: 5, IsClosed: true},
		{ID: "6", Name: "Rejected", Position: 6, IsClosed: true},
	}
}

// Load returns the built-in columns.
func (c *StaticCatalog) Load(context.Context) ([]domain.Column, error) {
	columns := make([]domain.Column, 0, len(c.rows))
	for _, row := range c.rows {
		column, err := domain.NewColumn(row.ID, row.Name, row.Position, row.IsClosed)
		if err != nil {
			return nil, err
		}
		columns = append(columns, column)
	}
	return domain.SortColumns(columns), nil
}

// CatalogResult describes the column set chosen by FallbackCatalog.
type CatalogResult struct {
	Columns []domain.Column
	Source  string
	Version string
	Reason  error
}

// FallbackCatalog tries the primary catalog and falls back to the static one on any failure.
type FallbackCatalog struct {
	primary  StatusCatalog
	fallback *StaticCatalog
	logger   Logger
}

// NewFallbackCatalog constructs a selector around one primary catalog.
func NewFallbackCatalog(primary StatusCatalog, logger Logger) *FallbackCatalog {
	return &FallbackCatalog{
		primary:  primary,
		fallback: NewStaticCatalog(),
		logger:   loggerOrNop(logger),
	}
}

// Load always returns a non-empty column set.
func (c *FallbackCatalog) Load(ctx context.Context) ([]domain.Column, error) {
	return c.Select(ctx).Columns, nil
}

// Select returns the chosen column set along with its source.
func (c *FallbackCatalog) Select(ctx context.Context) CatalogResult {
	var reason error
	if c.primary != nil {
		columns, err := c.primary.Load(ctx)
		if err == nil && len(columns) == 0 {
			err = errEmptyCatalog
		}
		if err == nil {
			c.logger.Info("status catalog loaded", "source", CatalogSourceRemote, "columns", len(columns))
			return CatalogResult{Columns: columns, Source: CatalogSourceRemote}
		}
		reason = err
		c.logger.Warn("status catalog fallback", "source", CatalogSourceStatic, "version", c.fallback.Version, "err", err)
	}
	columns, err := c.fallback.Load(ctx)
	if err != nil {
		// The built-in rows are constant; failing here is a programming error.
		panic(fmt.Sprintf("static status catalog: %v", err))
	}
	if reason == nil {
		c.logger.Info("status catalog loaded", "source", CatalogSourceStatic, "version", c.fallback.Version)
	}
	return CatalogResult{Columns: columns, Source: CatalogSourceStatic, Version: c.fallback.Version, Reason: reason}
}
