package audit

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

// csvHeader is the column order of an audit export.
var csvHeader = []string{"id", "session_id", "flag", "value", "source", "changed_at"}

// WriteCSV renders entries as CSV with a header row.
func WriteCSV(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("audit: write csv header: %w", err)
	}
	for _, e := range entries {
		row := []string{
			strconv.FormatInt(e.ID, 10),
			e.SessionID,
			e.Flag,
			e.Value,
			e.Source,
			e.ChangedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("audit: write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportCSV streams all entries changed at or after since to w as CSV. The
// limit caps runaway exports; 0 applies a generous default.
func (s *Store) ExportCSV(ctx context.Context, w io.Writer, since time.Time, limit int) error {
	if limit <= 0 {
		limit = 100000
	}
	entries, err := s.List(ctx, "", since, limit)
	if err != nil {
		return err
	}
	return WriteCSV(w, entries)
}
