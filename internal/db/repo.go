package db

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"sentinelflow/internal/models"
)

// Repository is the alert journal. Node state is never stored here.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) DB() *sql.DB { return r.db }

func (r *Repository) InsertAlertEvents(ctx context.Context, events []models.AlertEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO alert_events
		(id,ts,agent_id,hostname,risk_score,rules,message,baseline_bps,current_bps)
		VALUES (?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, e := range events {
		if _, err := stmt.ExecContext(ctx, e.ID, e.TS.UTC(), e.AgentID, e.Hostname, e.RiskScore,
			strings.Join(e.Rules, ","), e.Message, e.BaselineBPS, e.CurrentBPS); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// RecentAlerts returns the newest alert events, optionally for one agent.
func (r *Repository) RecentAlerts(ctx context.Context, agentID string, limit int) ([]models.AlertEvent, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query := `SELECT id,ts,agent_id,hostname,risk_score,rules,message,baseline_bps,current_bps FROM alert_events`
	args := []any{}
	if agentID != "" {
		query += ` WHERE agent_id = ?`
		args = append(args, agentID)
	}
	query += ` ORDER BY ts DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]models.AlertEvent, 0, limit)
	for rows.Next() {
		var e models.AlertEvent
		var rules string
		if err := rows.Scan(&e.ID, &e.TS, &e.AgentID, &e.Hostname, &e.RiskScore, &rules, &e.Message, &e.BaselineBPS, &e.CurrentBPS); err != nil {
			return nil, err
		}
		if rules != "" {
			e.Rules = strings.Split(rules, ",")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repository) InsertNotificationEvent(ctx context.Context, n models.NotificationEvent) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO notification_events (alert_id,channel,status,attempts,last_error,sent_ts_nullable)
		VALUES (?,?,?,?,?,?)`, n.AlertID, n.Channel, n.Status, n.Attempts, n.LastError, n.SentAt)
	return err
}

// DeleteOlderThan removes alert events (and their notifications) before cutoff.
func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM alert_events WHERE ts < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	_, _ = r.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`)
	_, _ = r.db.ExecContext(ctx, `PRAGMA optimize`)
	return n, nil
}

func (r *Repository) SaveTelegramSettings(ctx context.Context, token, chatID string) error {
	for k, v := range map[string]string{"telegram_token": token, "telegram_chat_id": chatID} {
		if _, err := r.db.ExecContext(ctx, `INSERT INTO settings(key,value) VALUES (?,?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`, k, v); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) LoadTelegramSettings(ctx context.Context) (string, string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key,value FROM settings WHERE key IN ('telegram_token','telegram_chat_id')`)
	if err != nil {
		return "", "", err
	}
	defer rows.Close()
	var token, chatID string
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return "", "", err
		}
		switch k {
		case "telegram_token":
			token = v
		case "telegram_chat_id":
			chatID = v
		}
	}
	return token, chatID, rows.Err()
}
