package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bargom/hookrelay/internal/webhook/domain"
)

// SQLiteRepository implements WebhookRepo, WebhookEventRepo and
// WebhookStateRepo on top of modernc.org/sqlite. Intended for single-node
// deployments and tests that want a durable repository without a Postgres
// instance; the schema mirrors PostgresRepository's.
type SQLiteRepository struct {
	db           *sql.DB
	pollInterval time.Duration
}

// NewSQLiteRepository wraps an open database handle. Callers should open it
// with database/sql and driver name "sqlite" (modernc.org/sqlite).
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	// SQLite serializes writers; a single connection avoids "database is locked"
	// errors under concurrent dispatch.
	db.SetMaxOpenConns(1)
	return &SQLiteRepository{db: db, pollInterval: 200 * time.Millisecond}
}

// WithPollInterval overrides how often subscriptions poll for changes.
func (r *SQLiteRepository) WithPollInterval(d time.Duration) *SQLiteRepository {
	r.pollInterval = d
	return r
}

// CreateWebhook inserts a new webhook row.
func (r *SQLiteRepository) CreateWebhook(ctx context.Context, webhook *domain.Webhook) error {
	headers, err := encodeHeaders(webhook.Headers)
	if err != nil {
		return fmt.Errorf("encoding headers: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO webhooks (id, url, label, status_kind, status_since, batching, semantics, secret, headers, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, int64(webhook.ID), webhook.URL, webhook.Label, int(webhook.Status.Kind), nullableUnixNano(webhook.Status.Since),
		int(webhook.Mode.Batching), int(webhook.Mode.Semantics), webhook.Secret, string(headers),
		webhook.CreatedAt.UnixNano(), webhook.UpdatedAt.UnixNano())
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("inserting webhook: %w", err)
	}
	return nil
}

// GetWebhook reads a single webhook row.
func (r *SQLiteRepository) GetWebhook(ctx context.Context, id domain.WebhookID) (*domain.Webhook, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, url, label, status_kind, status_since, batching, semantics, secret, headers, created_at, updated_at
		FROM webhooks WHERE id = ?
	`, int64(id))
	return scanSQLiteWebhook(row)
}

// ListWebhooks reads every webhook row.
func (r *SQLiteRepository) ListWebhooks(ctx context.Context) ([]*domain.Webhook, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, url, label, status_kind, status_since, batching, semantics, secret, headers, created_at, updated_at
		FROM webhooks ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("listing webhooks: %w", err)
	}
	defer rows.Close()

	var out []*domain.Webhook
	for rows.Next() {
		webhook, err := scanSQLiteWebhook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, webhook)
	}
	return out, rows.Err()
}

// SetWebhookStatus updates the status columns for a webhook.
func (r *SQLiteRepository) SetWebhookStatus(ctx context.Context, id domain.WebhookID, status domain.WebhookStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE webhooks SET status_kind = ?, status_since = ?, updated_at = ? WHERE id = ?
	`, int(status.Kind), nullableUnixNano(status.Since), time.Now().UnixNano(), int64(id))
	if err != nil {
		return fmt.Errorf("updating webhook status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SubscribeToWebhookUpdates polls for status changes every pollInterval.
func (r *SQLiteRepository) SubscribeToWebhookUpdates(ctx context.Context) (<-chan WebhookStatusChange, error) {
	ch := make(chan WebhookStatusChange, subscriberBuffer)
	go func() {
		defer close(ch)
		last := make(map[domain.WebhookID]domain.StatusKind)
		ticker := time.NewTicker(r.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				webhooks, err := r.ListWebhooks(ctx)
				if err != nil {
					continue
				}
				for _, w := range webhooks {
					if prev, ok := last[w.ID]; !ok || prev != w.Status.Kind {
						last[w.ID] = w.Status.Kind
						select {
						case ch <- WebhookStatusChange{WebhookID: w.ID, Status: w.Status}:
						default:
						}
					}
				}
			}
		}
	}()
	return ch, nil
}

// CreateEvent inserts a new event row in status New.
func (r *SQLiteRepository) CreateEvent(ctx context.Context, event *domain.WebhookEvent) error {
	headers, err := encodeHeaders(event.Headers)
	if err != nil {
		return fmt.Errorf("encoding headers: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO webhook_events (event_id, webhook_id, status, content, headers, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, int64(event.Key.EventID), int64(event.Key.WebhookID), int(domain.EventNew), event.Content, string(headers), time.Now().UnixNano())
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("inserting event: %w", err)
	}
	return nil
}

// GetEvent reads a single event row.
func (r *SQLiteRepository) GetEvent(ctx context.Context, key domain.EventKey) (*domain.WebhookEvent, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT event_id, webhook_id, status, content, headers FROM webhook_events
		WHERE event_id = ? AND webhook_id = ?
	`, int64(key.EventID), int64(key.WebhookID))
	return scanSQLiteEvent(row)
}

// SetEventStatus enforces the lifecycle invariant and updates the row.
func (r *SQLiteRepository) SetEventStatus(ctx context.Context, key domain.EventKey, status domain.EventStatus) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var current int
	err = tx.QueryRowContext(ctx, `
		SELECT status FROM webhook_events WHERE event_id = ? AND webhook_id = ?
	`, int64(key.EventID), int64(key.WebhookID)).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("reading event status: %w", err)
	}

	from := domain.EventStatus(current)
	if from == status {
		return tx.Commit()
	}
	if !validTransition(from, status) {
		return &domain.InvalidStateChangeError{Key: key, From: from, To: status}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE webhook_events SET status = ? WHERE event_id = ? AND webhook_id = ?
	`, int(status), int64(key.EventID), int64(key.WebhookID)); err != nil {
		return fmt.Errorf("updating event status: %w", err)
	}

	return tx.Commit()
}

// GetEventsByStatuses reads every event row matching any of the given statuses.
func (r *SQLiteRepository) GetEventsByStatuses(ctx context.Context, statuses ...domain.EventStatus) ([]*domain.WebhookEvent, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(statuses))
	args := make([]interface{}, len(statuses))
	for i, s := range statuses {
		placeholders[i] = "?"
		args[i] = int(s)
	}

	query := fmt.Sprintf(`
		SELECT event_id, webhook_id, status, content, headers FROM webhook_events
		WHERE status IN (%s)
	`, strings.Join(placeholders, ","))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events by status: %w", err)
	}
	defer rows.Close()

	var out []*domain.WebhookEvent
	for rows.Next() {
		event, err := scanSQLiteEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, event)
	}
	return out, rows.Err()
}

// SubscribeToNewEvents polls for rows in status New every pollInterval.
func (r *SQLiteRepository) SubscribeToNewEvents(ctx context.Context) (<-chan *domain.WebhookEvent, error) {
	ch := make(chan *domain.WebhookEvent, subscriberBuffer)
	go func() {
		defer close(ch)
		seen := make(map[domain.EventKey]bool)
		ticker := time.NewTicker(r.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				events, err := r.GetEventsByStatuses(ctx, domain.EventNew)
				if err != nil {
					continue
				}
				for _, e := range events {
					if seen[e.Key] {
						continue
					}
					seen[e.Key] = true
					select {
					case ch <- e:
					default:
					}
				}
			}
		}
	}()
	return ch, nil
}

// GetState reads the durable status from webhook_state.
func (r *SQLiteRepository) GetState(ctx context.Context, id domain.WebhookID) (domain.WebhookStatus, error) {
	var kind int
	var since sql.NullInt64
	err := r.db.QueryRowContext(ctx, `
		SELECT status_kind, status_since FROM webhook_state WHERE webhook_id = ?
	`, int64(id)).Scan(&kind, &since)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.WebhookStatus{}, ErrNotFound
	}
	if err != nil {
		return domain.WebhookStatus{}, fmt.Errorf("reading webhook state: %w", err)
	}
	return domain.WebhookStatus{Kind: domain.StatusKind(kind), Since: unixNanoToTime(since)}, nil
}

// SetState upserts the durable status, last-write-wins.
func (r *SQLiteRepository) SetState(ctx context.Context, id domain.WebhookID, status domain.WebhookStatus) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO webhook_state (webhook_id, status_kind, status_since)
		VALUES (?, ?, ?)
		ON CONFLICT(webhook_id) DO UPDATE SET status_kind = excluded.status_kind, status_since = excluded.status_since
	`, int64(id), int(status.Kind), nullableUnixNano(status.Since))
	if err != nil {
		return fmt.Errorf("upserting webhook state: %w", err)
	}
	return nil
}

// SaveDelivery inserts a completed delivery attempt.
func (r *SQLiteRepository) SaveDelivery(ctx context.Context, record *domain.DeliveryRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO webhook_deliveries (id, webhook_id, event_id, status_code, success, attempt, duration_ms, error, delivered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, record.ID, int64(record.WebhookID), int64(record.EventID), record.StatusCode, record.Success,
		record.Attempt, record.Duration.Milliseconds(), record.Error, record.DeliveredAt.UnixNano())
	if err != nil {
		return fmt.Errorf("inserting delivery: %w", err)
	}
	return nil
}

// ListDeliveries returns recent deliveries for a webhook, newest first.
func (r *SQLiteRepository) ListDeliveries(ctx context.Context, webhookID domain.WebhookID, filter DeliveryFilter) ([]*domain.DeliveryRecord, error) {
	query := `
		SELECT id, webhook_id, event_id, status_code, success, attempt, duration_ms, error, delivered_at
		FROM webhook_deliveries WHERE webhook_id = ?
	`
	args := []interface{}{int64(webhookID)}
	if filter.Success != nil {
		query += " AND success = ?"
		args = append(args, *filter.Success)
	}
	query += " ORDER BY delivered_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing deliveries: %w", err)
	}
	defer rows.Close()

	var out []*domain.DeliveryRecord
	for rows.Next() {
		rec, err := scanSQLiteDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanSQLiteDelivery(s scanner) (*domain.DeliveryRecord, error) {
	var id string
	var webhookID, eventID int64
	var statusCode, attempt int
	var success bool
	var durationMs int64
	var errMsg string
	var deliveredAt int64

	if err := s.Scan(&id, &webhookID, &eventID, &statusCode, &success, &attempt, &durationMs, &errMsg, &deliveredAt); err != nil {
		return nil, fmt.Errorf("scanning delivery: %w", err)
	}

	return &domain.DeliveryRecord{
		ID:          id,
		WebhookID:   domain.WebhookID(webhookID),
		EventID:     domain.EventID(eventID),
		StatusCode:  statusCode,
		Success:     success,
		Attempt:     attempt,
		Duration:    time.Duration(durationMs) * time.Millisecond,
		Error:       errMsg,
		DeliveredAt: time.Unix(0, deliveredAt),
	}, nil
}

func scanSQLiteWebhook(s scanner) (*domain.Webhook, error) {
	var id int64
	var url, label, secret, rawHeaders string
	var statusKind, batching, semantics int
	var statusSince sql.NullInt64
	var createdAt, updatedAt int64

	err := s.Scan(&id, &url, &label, &statusKind, &statusSince, &batching, &semantics, &secret, &rawHeaders, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning webhook: %w", err)
	}

	headers, err := decodeHeaders([]byte(rawHeaders))
	if err != nil {
		return nil, fmt.Errorf("decoding headers: %w", err)
	}

	return &domain.Webhook{
		ID:        domain.WebhookID(id),
		URL:       url,
		Label:     label,
		Status:    domain.WebhookStatus{Kind: domain.StatusKind(statusKind), Since: unixNanoToTime(statusSince)},
		Mode:      domain.DeliveryMode{Batching: domain.Batching(batching), Semantics: domain.Semantics(semantics)},
		Secret:    secret,
		Headers:   headers,
		CreatedAt: time.Unix(0, createdAt),
		UpdatedAt: time.Unix(0, updatedAt),
	}, nil
}

func scanSQLiteEvent(s scanner) (*domain.WebhookEvent, error) {
	var eventID, webhookID int64
	var status int
	var content, rawHeaders string

	err := s.Scan(&eventID, &webhookID, &status, &content, &rawHeaders)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning event: %w", err)
	}

	headers, err := decodeHeaders([]byte(rawHeaders))
	if err != nil {
		return nil, fmt.Errorf("decoding headers: %w", err)
	}

	return &domain.WebhookEvent{
		Key:     domain.EventKey{EventID: domain.EventID(eventID), WebhookID: domain.WebhookID(webhookID)},
		Status:  domain.EventStatus(status),
		Content: content,
		Headers: headers,
	}, nil
}

func nullableUnixNano(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UnixNano()
}

func unixNanoToTime(n sql.NullInt64) time.Time {
	if !n.Valid {
		return time.Time{}
	}
	return time.Unix(0, n.Int64)
}

func isSQLiteUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var (
	_ WebhookRepo      = (*SQLiteRepository)(nil)
	_ WebhookEventRepo = (*SQLiteRepository)(nil)
	_ WebhookStateRepo = (*SQLiteRepository)(nil)
	_ DeliveryRepo     = (*SQLiteRepository)(nil)
)
