package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/bargom/hookrelay/internal/webhook/domain"
)

// PostgresRepository implements WebhookRepo, WebhookEventRepo and
// WebhookStateRepo on top of a shared *sql.DB. Tables are created by the
// migrations under internal/database/migrations.
type PostgresRepository struct {
	db           *sql.DB
	pollInterval time.Duration
}

// NewPostgresRepository wraps an open database handle.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db, pollInterval: time.Second}
}

// WithPollInterval overrides how often subscriptions poll for changes.
func (r *PostgresRepository) WithPollInterval(d time.Duration) *PostgresRepository {
	r.pollInterval = d
	return r
}

type storedHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func encodeHeaders(h domain.Headers) ([]byte, error) {
	stored := make([]storedHeader, len(h))
	for i, e := range h {
		stored[i] = storedHeader{Name: e.Name, Value: e.Value}
	}
	return json.Marshal(stored)
}

func decodeHeaders(raw []byte) (domain.Headers, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var stored []storedHeader
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, err
	}
	headers := make(domain.Headers, len(stored))
	for i, e := range stored {
		headers[i] = domain.Header{Name: e.Name, Value: e.Value}
	}
	return headers, nil
}

// CreateWebhook inserts a new webhook row.
func (r *PostgresRepository) CreateWebhook(ctx context.Context, webhook *domain.Webhook) error {
	headers, err := encodeHeaders(webhook.Headers)
	if err != nil {
		return fmt.Errorf("encoding headers: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO webhooks (id, url, label, status_kind, status_since, batching, semantics, secret, headers, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, int64(webhook.ID), webhook.URL, webhook.Label, int(webhook.Status.Kind), nullableTime(webhook.Status.Since),
		int(webhook.Mode.Batching), int(webhook.Mode.Semantics), webhook.Secret, headers, webhook.CreatedAt, webhook.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("inserting webhook: %w", err)
	}
	return nil
}

// GetWebhook reads a single webhook row.
func (r *PostgresRepository) GetWebhook(ctx context.Context, id domain.WebhookID) (*domain.Webhook, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, url, label, status_kind, status_since, batching, semantics, secret, headers, created_at, updated_at
		FROM webhooks WHERE id = $1
	`, int64(id))
	return scanWebhook(row)
}

// ListWebhooks reads every webhook row.
func (r *PostgresRepository) ListWebhooks(ctx context.Context) ([]*domain.Webhook, error) {
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
		webhook, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, webhook)
	}
	return out, rows.Err()
}

// SetWebhookStatus updates the status columns for a webhook.
func (r *PostgresRepository) SetWebhookStatus(ctx context.Context, id domain.WebhookID, status domain.WebhookStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE webhooks SET status_kind = $1, status_since = $2, updated_at = $3 WHERE id = $4
	`, int(status.Kind), nullableTime(status.Since), time.Now(), int64(id))
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
// A dedicated listener connection using lib/pq's LISTEN/NOTIFY support would
// cut latency; polling keeps this backend simple and driver-agnostic.
func (r *PostgresRepository) SubscribeToWebhookUpdates(ctx context.Context) (<-chan WebhookStatusChange, error) {
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
func (r *PostgresRepository) CreateEvent(ctx context.Context, event *domain.WebhookEvent) error {
	headers, err := encodeHeaders(event.Headers)
	if err != nil {
		return fmt.Errorf("encoding headers: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO webhook_events (event_id, webhook_id, status, content, headers, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, int64(event.Key.EventID), int64(event.Key.WebhookID), int(domain.EventNew), event.Content, headers, time.Now())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("inserting event: %w", err)
	}
	return nil
}

// GetEvent reads a single event row.
func (r *PostgresRepository) GetEvent(ctx context.Context, key domain.EventKey) (*domain.WebhookEvent, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT event_id, webhook_id, status, content, headers FROM webhook_events
		WHERE event_id = $1 AND webhook_id = $2
	`, int64(key.EventID), int64(key.WebhookID))
	return scanEvent(row)
}

// SetEventStatus enforces the lifecycle invariant and updates the row.
func (r *PostgresRepository) SetEventStatus(ctx context.Context, key domain.EventKey, status domain.EventStatus) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var current int
	err = tx.QueryRowContext(ctx, `
		SELECT status FROM webhook_events WHERE event_id = $1 AND webhook_id = $2 FOR UPDATE
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
		UPDATE webhook_events SET status = $1 WHERE event_id = $2 AND webhook_id = $3
	`, int(status), int64(key.EventID), int64(key.WebhookID)); err != nil {
		return fmt.Errorf("updating event status: %w", err)
	}

	return tx.Commit()
}

// GetEventsByStatuses reads every event row matching any of the given statuses.
func (r *PostgresRepository) GetEventsByStatuses(ctx context.Context, statuses ...domain.EventStatus) ([]*domain.WebhookEvent, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	ints := make([]int, len(statuses))
	for i, s := range statuses {
		ints[i] = int(s)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT event_id, webhook_id, status, content, headers FROM webhook_events
		WHERE status = ANY($1)
	`, pqIntArray(ints))
	if err != nil {
		return nil, fmt.Errorf("querying events by status: %w", err)
	}
	defer rows.Close()

	var out []*domain.WebhookEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, event)
	}
	return out, rows.Err()
}

// SubscribeToNewEvents polls for rows in status New every pollInterval,
// reporting each event key at most once per poll cycle.
func (r *PostgresRepository) SubscribeToNewEvents(ctx context.Context) (<-chan *domain.WebhookEvent, error) {
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
func (r *PostgresRepository) GetState(ctx context.Context, id domain.WebhookID) (domain.WebhookStatus, error) {
	var kind int
	var since sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT status_kind, status_since FROM webhook_state WHERE webhook_id = $1
	`, int64(id)).Scan(&kind, &since)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.WebhookStatus{}, ErrNotFound
	}
	if err != nil {
		return domain.WebhookStatus{}, fmt.Errorf("reading webhook state: %w", err)
	}
	return domain.WebhookStatus{Kind: domain.StatusKind(kind), Since: since.Time}, nil
}

// SetState upserts the durable status, last-write-wins.
func (r *PostgresRepository) SetState(ctx context.Context, id domain.WebhookID, status domain.WebhookStatus) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO webhook_state (webhook_id, status_kind, status_since)
		VALUES ($1, $2, $3)
		ON CONFLICT (webhook_id) DO UPDATE SET status_kind = EXCLUDED.status_kind, status_since = EXCLUDED.status_since
	`, int64(id), int(status.Kind), nullableTime(status.Since))
	if err != nil {
		return fmt.Errorf("upserting webhook state: %w", err)
	}
	return nil
}

// SaveDelivery inserts a completed delivery attempt.
func (r *PostgresRepository) SaveDelivery(ctx context.Context, record *domain.DeliveryRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO webhook_deliveries (id, webhook_id, event_id, status_code, success, attempt, duration_ms, error, delivered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, record.ID, int64(record.WebhookID), int64(record.EventID), record.StatusCode, record.Success,
		record.Attempt, record.Duration.Milliseconds(), record.Error, record.DeliveredAt)
	if err != nil {
		return fmt.Errorf("inserting delivery: %w", err)
	}
	return nil
}

// ListDeliveries returns recent deliveries for a webhook, newest first.
func (r *PostgresRepository) ListDeliveries(ctx context.Context, webhookID domain.WebhookID, filter DeliveryFilter) ([]*domain.DeliveryRecord, error) {
	query := `
		SELECT id, webhook_id, event_id, status_code, success, attempt, duration_ms, error, delivered_at
		FROM webhook_deliveries WHERE webhook_id = $1
	`
	args := []interface{}{int64(webhookID)}
	if filter.Success != nil {
		query += fmt.Sprintf(" AND success = $%d", len(args)+1)
		args = append(args, *filter.Success)
	}
	query += " ORDER BY delivered_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", len(args)+1)
		args = append(args, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing deliveries: %w", err)
	}
	defer rows.Close()

	var out []*domain.DeliveryRecord
	for rows.Next() {
		rec, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanDelivery(s scanner) (*domain.DeliveryRecord, error) {
	var id string
	var webhookID, eventID int64
	var statusCode, attempt int
	var success bool
	var durationMs int64
	var errMsg string
	var deliveredAt time.Time

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
		DeliveredAt: deliveredAt,
	}, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanWebhook(s scanner) (*domain.Webhook, error) {
	var id int64
	var url, label, secret string
	var statusKind, batching, semantics int
	var statusSince sql.NullTime
	var rawHeaders []byte
	var createdAt, updatedAt time.Time

	err := s.Scan(&id, &url, &label, &statusKind, &statusSince, &batching, &semantics, &secret, &rawHeaders, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning webhook: %w", err)
	}

	headers, err := decodeHeaders(rawHeaders)
	if err != nil {
		return nil, fmt.Errorf("decoding headers: %w", err)
	}

	return &domain.Webhook{
		ID:        domain.WebhookID(id),
		URL:       url,
		Label:     label,
		Status:    domain.WebhookStatus{Kind: domain.StatusKind(statusKind), Since: statusSince.Time},
		Mode:      domain.DeliveryMode{Batching: domain.Batching(batching), Semantics: domain.Semantics(semantics)},
		Secret:    secret,
		Headers:   headers,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

func scanEvent(s scanner) (*domain.WebhookEvent, error) {
	var eventID, webhookID int64
	var status int
	var content string
	var rawHeaders []byte

	err := s.Scan(&eventID, &webhookID, &status, &content, &rawHeaders)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning event: %w", err)
	}

	headers, err := decodeHeaders(rawHeaders)
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

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

var (
	_ WebhookRepo      = (*PostgresRepository)(nil)
	_ WebhookEventRepo = (*PostgresRepository)(nil)
	_ WebhookStateRepo = (*PostgresRepository)(nil)
	_ DeliveryRepo     = (*PostgresRepository)(nil)
)
