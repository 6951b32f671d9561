package hosts

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/event/bus"
)

// Column indexes resolved from the header row. -1 means absent.
type columnMap struct {
	id      int
	name    int
	address int
	os      int
	tags    int
}

// ImportCSV loads hosts from a comma-delimited table with a header row.
// Header names are case-insensitive and accept French and English synonyms
// (name/nom, address/ip, tags/tag). Rows without an address are skipped and
// counted; existing ids are updated in place, new ids are added. A bad row
// never aborts the import.
func (r *Registry) ImportCSV(ctx context.Context, reader io.Reader) (ImportResult, error) {
	cr := csv.NewReader(reader)
	cr.TrimLeadingSpace = true
	// Rows with a wrong field count are handled per-row, not fatally.
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return ImportResult{}, fmt.Errorf("read header: %w", err)
	}

	cols, err := mapColumns(header)
	if err != nil {
		return ImportResult{}, err
	}

	var result ImportResult
	var toUpsert []Host
	seen := make(map[string]struct{})

	r.mu.Lock()
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			result.Skipped++
			continue
		}

		address := field(record, cols.address)
		if address == "" {
			result.Skipped++
			continue
		}

		id := field(record, cols.id)
		if id == "" {
			id = uuid.NewString()
		}

		h := Host{
			ID:      id,
			Name:    field(record, cols.name),
			Address: address,
			OS:      ParseOS(strings.ToLower(field(record, cols.os))),
			Tags:    splitTags(field(record, cols.tags)),
			Enabled: true,
		}

		if existing, ok := r.hosts[id]; ok {
			// Preserve manual enable/disable and group membership on update.
			h.Enabled = existing.Enabled
			h.Groups = existing.Groups
			result.Updated++
		} else if _, dup := seen[id]; dup {
			// A repeated id inside one file updates the earlier row.
			result.Updated++
		} else {
			result.Added++
		}
		seen[id] = struct{}{}
		toUpsert = append(toUpsert, h)
	}

	for _, h := range toUpsert {
		hc := h
		r.hosts[h.ID] = &hc
	}
	r.mu.Unlock()

	if len(toUpsert) > 0 {
		r.publish(ctx)
	}
	r.publishImport(ctx, result)
	return result, nil
}

// publishImport broadcasts the row outcomes of one import run.
func (r *Registry) publishImport(ctx context.Context, result ImportResult) {
	if r.bus == nil {
		return
	}

	r.bus.Publish(ctx, bus.Event{
		ID:        uuid.NewString(),
		Type:      bus.EventHostsImported,
		Source:    "hosts.registry",
		Timestamp: time.Now(),
		Data: map[string]any{
			"added":   result.Added,
			"updated": result.Updated,
			"skipped": result.Skipped,
		},
	})
}

// ExportCSV writes the registry hosts as a table round-trippable by ImportCSV.
func (r *Registry) ExportCSV(w io.Writer) error {
	snap := r.Snapshot()

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "name", "address", "os", "tags"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, h := range snap.Hosts {
		row := []string{h.ID, h.Name, h.Address, string(h.OS), strings.Join(h.Tags, ";")}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write host %s: %w", h.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// mapColumns resolves header names to column indexes.
func mapColumns(header []string) (columnMap, error) {
	cols := columnMap{id: -1, name: -1, address: -1, os: -1, tags: -1}

	for i, raw := range header {
		switch strings.ToLower(strings.TrimSpace(raw)) {
		case "id":
			cols.id = i
		case "name", "nom":
			cols.name = i
		case "address", "ip":
			cols.address = i
		case "os":
			cols.os = i
		case "tags", "tag":
			cols.tags = i
		}
	}

	if cols.address == -1 {
		return cols, fmt.Errorf("no address column found in header %v", header)
	}
	return cols, nil
}

func field(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

// splitTags splits a tag cell on ';' or '|'.
func splitTags(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ';' || r == '|'
	})
	var tags []string
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
