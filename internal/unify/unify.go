package unify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"time"

	"github.com/baechuer/eventstore/eventstore"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// legacyTimeLayouts are RFC3339Nano plus the non-RFC3339 layouts
// context.time has been observed stored as in older per-domain stores;
// normalizeTime tries each
// in turn after RFC3339 fails, mirroring the original unifier's
// to_timestamp(...) rewrite, done here in application code because the
// Postgres adapter's context column is JSONB text rather than a typed
// timestamp column.
var legacyTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999-07",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

func normalizeTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range legacyTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unify: unrecognized time layout %q", raw)
}

// normalizeContext rewrites the context blob's "time" field to RFC3339 UTC,
// leaving subject/action untouched.
func normalizeContext(raw json.RawMessage) (json.RawMessage, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("unify: malformed context: %w", err)
	}

	rawTime, ok := m["time"]
	if !ok {
		return nil, fmt.Errorf("unify: context missing time field")
	}
	var timeStr string
	if err := json.Unmarshal(rawTime, &timeStr); err != nil {
		return nil, fmt.Errorf("unify: context.time is not a string: %w", err)
	}

	t, err := normalizeTime(timeStr)
	if err != nil {
		return nil, err
	}
	normalized, err := json.Marshal(t.Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	m["time"] = normalized

	out, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// rawEvent is an (id, data, context) triple moved between databases
// without being decoded through eventstore.Codec: the unifier relocates
// bytes, it never needs variant knowledge of the payloads it carries.
type rawEvent struct {
	ID      uuid.UUID
	Data    json.RawMessage
	Context json.RawMessage
}

// dbURIForDomain rewrites base's path to /domain, used when a single
// source_db_uri names a Postgres host shared by one database per domain.
func dbURIForDomain(base, domain string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("unify: parsing source_db_uri: %w", err)
	}
	u.Path = path.Join("/", domain)
	return u.String(), nil
}

// Options are the unify command's flags (spec.md §6).
type Options struct {
	Connection   string
	TruncateDest bool
	Copy         bool
}

// Run executes one unifier pass against cfg per opts, logging progress and
// warnings through logger.
func Run(ctx context.Context, cfg Connection, opts Options, logger eventstore.Logger) error {
	var merged map[uuid.UUID]rawEvent
	var rowsRead int
	var err error

	if opts.Copy {
		merged, rowsRead, err = collectStoreEvents(ctx, cfg.SourceDBURI)
	} else {
		merged, rowsRead, err = collectDomainEvents(ctx, cfg.SourceDBURI, cfg.Domains)
	}
	if err != nil {
		return err
	}

	if rowsRead != len(merged) {
		return &eventstore.StoreError{Kind: eventstore.ErrDuplicateIDs, Op: "unify.collect", Key: fmt.Sprintf("%d rows, %d unique ids", rowsRead, len(merged))}
	}

	logger.Warn("unify: collected events", "rows", rowsRead, "sources", len(cfg.Domains), "copy_mode", opts.Copy)

	destPool, err := pgxpool.New(ctx, cfg.DestDBURI)
	if err != nil {
		return fmt.Errorf("unify: connecting to destination: %w", err)
	}
	defer destPool.Close()

	if opts.TruncateDest {
		logger.Warn("unify: --truncate-dest set; upsert's ON CONFLICT branch is dead for this run since the table is emptied first")
	}

	return writeDest(ctx, destPool, merged, opts.TruncateDest)
}

// collectDomainEvents reads every event whose data.event_namespace matches
// the configured namespace out of each domain's own database, normalizing
// context.time on the way through.
func collectDomainEvents(ctx context.Context, sourceDBURI string, domains map[string]string) (map[uuid.UUID]rawEvent, int, error) {
	merged := make(map[uuid.UUID]rawEvent)
	rowsRead := 0

	for domain, namespace := range domains {
		uri, err := dbURIForDomain(sourceDBURI, domain)
		if err != nil {
			return nil, 0, err
		}

		pool, err := pgxpool.New(ctx, uri)
		if err != nil {
			return nil, 0, fmt.Errorf("unify: connecting to domain %q: %w", domain, err)
		}

		rows, err := pool.Query(ctx, `
			SELECT id, data, context FROM events
			WHERE data->>'event_namespace' = $1
			ORDER BY (context->>'time')::timestamptz ASC, id ASC
		`, namespace)
		if err != nil {
			pool.Close()
			return nil, 0, fmt.Errorf("unify: querying domain %q: %w", domain, err)
		}

		for rows.Next() {
			var id uuid.UUID
			var data, rawContext []byte
			if err := rows.Scan(&id, &data, &rawContext); err != nil {
				rows.Close()
				pool.Close()
				return nil, 0, fmt.Errorf("unify: scanning domain %q row: %w", domain, err)
			}

			normalized, err := normalizeContext(rawContext)
			if err != nil {
				rows.Close()
				pool.Close()
				return nil, 0, fmt.Errorf("unify: domain %q id %s: %w", domain, id, err)
			}

			merged[id] = rawEvent{ID: id, Data: data, Context: normalized}
			rowsRead++
		}
		err = rows.Err()
		rows.Close()
		pool.Close()
		if err != nil {
			return nil, 0, fmt.Errorf("unify: reading domain %q: %w", domain, err)
		}
	}

	return merged, rowsRead, nil
}

// collectStoreEvents reads every event out of an already-unified
// event-store database wholesale, for --copy mode.
func collectStoreEvents(ctx context.Context, sourceDBURI string) (map[uuid.UUID]rawEvent, int, error) {
	pool, err := pgxpool.New(ctx, sourceDBURI)
	if err != nil {
		return nil, 0, fmt.Errorf("unify: connecting to source: %w", err)
	}
	defer pool.Close()

	rows, err := pool.Query(ctx, `SELECT id, data, context FROM events ORDER BY (context->>'time')::timestamptz ASC, id ASC`)
	if err != nil {
		return nil, 0, fmt.Errorf("unify: querying source: %w", err)
	}
	defer rows.Close()

	merged := make(map[uuid.UUID]rawEvent)
	rowsRead := 0
	for rows.Next() {
		var id uuid.UUID
		var data, rawContext []byte
		if err := rows.Scan(&id, &data, &rawContext); err != nil {
			return nil, 0, fmt.Errorf("unify: scanning source row: %w", err)
		}
		merged[id] = rawEvent{ID: id, Data: data, Context: rawContext}
		rowsRead++
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("unify: reading source: %w", err)
	}

	return merged, rowsRead, nil
}

// writeDest truncates (if requested) and upserts merged into the
// destination events table inside a single transaction.
func writeDest(ctx context.Context, pool *pgxpool.Pool, merged map[uuid.UUID]rawEvent, truncate bool) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("unify: beginning destination transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if truncate {
		if _, err := tx.Exec(ctx, `TRUNCATE TABLE events`); err != nil {
			return fmt.Errorf("unify: truncating destination: %w", err)
		}
	}

	for _, ev := range merged {
		_, err := tx.Exec(ctx, `
			INSERT INTO events (id, data, context) VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET data = excluded.data, context = excluded.context
		`, ev.ID, ev.Data, ev.Context)
		if err != nil {
			return fmt.Errorf("unify: upserting event %s: %w", ev.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("unify: committing destination transaction: %w", err)
	}
	return nil
}
