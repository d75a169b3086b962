package syncx

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types written by the statistics store.
const (
	TypeStatisticUpserted = "StatisticUpserted"
	TypeStatisticDeleted  = "StatisticDeleted"
)

type Event struct {
	Seq       int64  `json:"seq"`
	SiteID    string `json:"site_id"`
	Type      string `json:"type"`
	Key       string `json:"key"`
	DataJSON  string `json:"data"`
	CreatedAt int64  `json:"created_at"`
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type EventRepo struct {
	db     *sql.DB
	siteID string
	now    func() time.Time
}

func NewEventRepo(db *sql.DB, siteID string) *EventRepo {
	if siteID == "" {
		siteID = "local"
	}
	return &EventRepo{db: db, siteID: siteID, now: time.Now}
}

// NewEvent builds an event with payload marshalled to JSON.
func NewEvent(typ, key string, payload any) (Event, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("eventlog: marshal %s: %w", typ, err)
	}
	return Event{Type: typ, Key: key, DataJSON: string(buf)}, nil
}

// AppendTx writes e through ex so it commits or rolls back with the caller's transaction.
func (r *EventRepo) AppendTx(ctx context.Context, ex execer, e Event) error {
	site := e.SiteID
	if site == "" {
		site = r.siteID
	}
	_, err := ex.ExecContext(ctx,
		`INSERT INTO event_log (site_id, typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		site, e.Type, e.Key, e.DataJSON, r.now().Unix())
	return err
}

// List returns events for key, oldest first. An empty key lists everything.
func (r *EventRepo) List(ctx context.Context, key string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT seq, site_id, typ, key, data, created_at FROM event_log`
	args := []any{}
	if key != "" {
		q += ` WHERE key=$1 ORDER BY seq LIMIT $2`
		args = append(args, key, limit)
	} else {
		q += ` ORDER BY seq LIMIT $1`
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Seq, &e.SiteID, &e.Type, &e.Key, &e.DataJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
