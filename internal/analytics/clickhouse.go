package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	_ "github.com/ClickHouse/clickhouse-go/v2"

	"github.com/panelworks/adserve/internal/models"
)

// ErrUnavailable is returned when the analytics DB is not configured.
var ErrUnavailable = fmt.Errorf("analytics unavailable")

// Event is one row of the append-only delivery event log. The log exists for
// offline analysis; the authoritative counters live in Postgres.
type Event struct {
	Timestamp   time.Time      `json:"timestamp"`
	Type        string         `json:"type"` // impression, click, conversion
	AdID        int            `json:"ad_id"`
	CampaignID  int            `json:"campaign_id"`
	Slot        models.SlotKey `json:"slot"`
	ViewerKey   string         `json:"viewer_key"`
	Country     string         `json:"country"`
	DeviceType  string         `json:"device_type"`
	Role        string         `json:"role"`
	VariantName string         `json:"variant_name"`
	Cost        float64        `json:"cost"`
}

// EventSink accepts delivery events. Implementations should return
// ErrUnavailable when the underlying storage is not configured.
type EventSink interface {
	RecordEvent(ctx context.Context, ev Event) error
}

// EventLog wraps a ClickHouse connection for the append-only event log.
type EventLog struct {
	DB *sql.DB
}

// InitClickHouse connects to ClickHouse and ensures the events table exists.
func InitClickHouse(dsn string) (*EventLog, error) {
	chdb, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	chdb.SetMaxOpenConns(25)
	if err := chdb.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	create := `CREATE TABLE IF NOT EXISTS ad_events (
       timestamp    DateTime,
       event_type   String,
       ad_id        Int32,
       campaign_id  Nullable(Int32),
       page         String,
       location     String,
       viewer_key   String,
       country      Nullable(String),
       device_type  Nullable(String),
       role         Nullable(String),
       variant_name Nullable(String),
       cost         Float64
   ) ENGINE=MergeTree() ORDER BY (event_type, timestamp)`
	if _, err := chdb.ExecContext(context.Background(), create); err != nil {
		return nil, fmt.Errorf("clickhouse create table: %w", err)
	}

	zap.L().Info("Connected to ClickHouse")
	return &EventLog{DB: chdb}, nil
}

// RecordEvent inserts a single event row.
func (l *EventLog) RecordEvent(ctx context.Context, ev Event) error {
	if l == nil || l.DB == nil {
		return ErrUnavailable
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	var campaign sql.NullInt32
	if ev.CampaignID > 0 {
		campaign = sql.NullInt32{Int32: int32(ev.CampaignID), Valid: true}
	}

	_, err := l.DB.ExecContext(ctx, `INSERT INTO ad_events
        (timestamp, event_type, ad_id, campaign_id, page, location, viewer_key,
         country, device_type, role, variant_name, cost)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.Timestamp, ev.Type, int32(ev.AdID), campaign,
		string(ev.Slot.Page), string(ev.Slot.Location), ev.ViewerKey,
		nullStr(ev.Country), nullStr(ev.DeviceType), nullStr(ev.Role),
		nullStr(ev.VariantName), ev.Cost)
	if err != nil {
		return fmt.Errorf("clickhouse insert event: %w", err)
	}
	return nil
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Close terminates the ClickHouse connection.
func (l *EventLog) Close() {
	if l != nil && l.DB != nil {
		if err := l.DB.Close(); err != nil {
			zap.L().Error("clickhouse close", zap.Error(err))
		}
	}
}
