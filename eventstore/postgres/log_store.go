// Package postgres provides pgx/v5-backed adapters for eventstore.LogStore
// and eventstore.KVCache, grounded on join-service's
// internal/infrastructure/postgres package: pgxpool.Pool, QueryRow/Exec,
// and errors.Is(pgx.ErrNoRows) for not-found branches.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/baechuer/eventstore/eventstore"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the DDL for the events table (spec.md §6): callers run this
// (or an equivalent migration) before using LogStore. Kept as a constant
// rather than driven through a migration framework, since the teacher
// repos each hand-roll their own SQL files rather than depend on a
// migration library.
const Schema = `
CREATE TABLE IF NOT EXISTS events (
    id      uuid PRIMARY KEY,
    data    jsonb NOT NULL,
    context jsonb NOT NULL
);
CREATE INDEX IF NOT EXISTS events_kind_idx ON events ((data->>'event_namespace'), (data->>'event_type'));
CREATE INDEX IF NOT EXISTS events_time_idx ON events ((context->>'time'));
`

// LogStore is a pgx/v5-backed eventstore.LogStore over the events table.
type LogStore struct {
	pool  *pgxpool.Pool
	codec *eventstore.Codec
}

// NewLogStore wraps pool. codec encodes each event into its canonical
// data/context columns on write, and decodes rows on read, so unknown
// variants fail the same way regardless of which adapter produced the row.
func NewLogStore(pool *pgxpool.Pool, codec *eventstore.Codec) *LogStore {
	return &LogStore{pool: pool, codec: codec}
}

// Append inserts ev, translating a primary-key violation into ErrConflict
// via ON CONFLICT (id) DO NOTHING plus a RowsAffected check, avoiding a
// round-trip existence check before the insert.
func (s *LogStore) Append(ctx context.Context, ev eventstore.Event) error {
	body, err := s.codec.Encode(ev)
	if err != nil {
		return err
	}

	var wire struct {
		ID      uuid.UUID       `json:"id"`
		Data    json.RawMessage `json:"data"`
		Context json.RawMessage `json:"context"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		return &eventstore.StoreError{Kind: eventstore.ErrMalformedEnvelope, Op: "append", Key: ev.ID.String(), Err: err}
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO events (id, data, context) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING`,
		wire.ID, wire.Data, wire.Context,
	)
	if err != nil {
		return &eventstore.StoreError{Kind: eventstore.ErrIo, Op: "append", Key: ev.ID.String(), Err: err}
	}
	if tag.RowsAffected() == 0 {
		return &eventstore.StoreError{Kind: eventstore.ErrConflict, Op: "append", Key: ev.ID.String()}
	}
	return nil
}

// ReadSince streams events of (namespace, typ) with context.time >= *since
// (or all, if since is nil), ordered by context.time ASC, id ASC — the
// two-tier query the original PgStoreAdapter tests describe (a base
// predicate on namespace/type, then an inclusive time bound layered on
// top when a cache watermark exists).
func (s *LogStore) ReadSince(ctx context.Context, namespace, typ string, since *time.Time) (eventstore.EventStream, error) {
	var rows pgx.Rows
	var err error

	if since == nil {
		rows, err = s.pool.Query(ctx, `
			SELECT id, data, context FROM events
			WHERE data->>'event_namespace' = $1 AND data->>'event_type' = $2
			ORDER BY (context->>'time')::timestamptz ASC, id ASC
		`, namespace, typ)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT id, data, context FROM events
			WHERE data->>'event_namespace' = $1 AND data->>'event_type' = $2
			  AND (context->>'time')::timestamptz >= $3
			ORDER BY (context->>'time')::timestamptz ASC, id ASC
		`, namespace, typ, since.UTC())
	}
	if err != nil {
		return nil, &eventstore.StoreError{Kind: eventstore.ErrIo, Op: "read_since", Key: namespace + "." + typ, Err: err}
	}

	return &rowStream{rows: rows, codec: s.codec, key: namespace + "." + typ}, nil
}

// LastOf returns the event of (namespace, typ) with the greatest
// context.time, ties broken by id, or nil if none exist.
func (s *LogStore) LastOf(ctx context.Context, namespace, typ string) (*eventstore.Event, error) {
	var id uuid.UUID
	var data, context []byte

	err := s.pool.QueryRow(ctx, `
		SELECT id, data, context FROM events
		WHERE data->>'event_namespace' = $1 AND data->>'event_type' = $2
		ORDER BY (context->>'time')::timestamptz DESC, id DESC
		LIMIT 1
	`, namespace, typ).Scan(&id, &data, &context)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &eventstore.StoreError{Kind: eventstore.ErrIo, Op: "last_of", Key: namespace + "." + typ, Err: err}
	}

	envelope, err := reassembleEnvelope(id, data, context)
	if err != nil {
		return nil, err
	}
	ev, err := s.codec.Decode(envelope)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// rowStream adapts pgx.Rows to eventstore.EventStream.
type rowStream struct {
	rows  pgx.Rows
	codec *eventstore.Codec
	key   string
}

func (r *rowStream) Next(ctx context.Context) (eventstore.Event, bool, error) {
	if err := ctx.Err(); err != nil {
		return eventstore.Event{}, false, err
	}
	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			return eventstore.Event{}, false, &eventstore.StoreError{Kind: eventstore.ErrIo, Op: "read_since.scan", Key: r.key, Err: err}
		}
		return eventstore.Event{}, false, nil
	}

	var id uuid.UUID
	var data, context []byte
	if err := r.rows.Scan(&id, &data, &context); err != nil {
		return eventstore.Event{}, false, &eventstore.StoreError{Kind: eventstore.ErrIo, Op: "read_since.scan", Key: r.key, Err: err}
	}

	envelope, err := reassembleEnvelope(id, data, context)
	if err != nil {
		return eventstore.Event{}, false, err
	}
	ev, err := r.codec.Decode(envelope)
	if err != nil {
		return eventstore.Event{}, false, err
	}
	return ev, true, nil
}

func (r *rowStream) Close() error {
	r.rows.Close()
	return nil
}

// reassembleEnvelope rebuilds the canonical {id, data, context} JSON shape
// the codec expects from the three columns a row scan produces.
func reassembleEnvelope(id uuid.UUID, data, context []byte) ([]byte, error) {
	out, err := json.Marshal(struct {
		ID      uuid.UUID       `json:"id"`
		Data    json.RawMessage `json:"data"`
		Context json.RawMessage `json:"context"`
	}{ID: id, Data: data, Context: context})
	if err != nil {
		return nil, &eventstore.StoreError{Kind: eventstore.ErrMalformedEnvelope, Op: "reassemble", Key: id.String(), Err: err}
	}
	return out, nil
}
