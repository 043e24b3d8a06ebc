// Copyright 2025 API-Sec Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gateway

import (
	"context"
	"database/sql"
	"fmt"
)

// StatsSummary is a read-only rollup over a tenant's audit events.
type StatsSummary struct {
	Total      int64   `json:"total"`
	Blocked    int64   `json:"blocked"`
	AvgLatency float64 `json:"avg_latency"`
}

// StatsStore computes rollups and recent-event listings from the audit
// log. It never mutates state; storage failures surface as errors, not
// silent zeros.
type StatsStore struct {
	db *sql.DB
}

// NewStatsStore creates a stats store backed by db.
func NewStatsStore(db *sql.DB) *StatsStore {
	return &StatsStore{db: db}
}

// Summarize rolls up a tenant's events over the trailing window.
func (s *StatsStore) Summarize(ctx context.Context, tenantID string, windowDays int) (*StatsSummary, error) {
	var sum StatsSummary
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN action = 'blocked' THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(latency_ms), 0)
		FROM events
		WHERE user_id = $1
		AND timestamp > NOW() - $2 * INTERVAL '1 day'
	`, tenantID, windowDays).Scan(&sum.Total, &sum.Blocked, &sum.AvgLatency)

	if err != nil {
		return nil, fmt.Errorf("failed to summarize events: %w", err)
	}
	return &sum, nil
}

// RecentEvents returns the tenant's newest audit events, newest first.
func (s *StatsStore) RecentEvents(ctx context.Context, tenantID string, limit int) ([]AuditEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, type, severity, source_ip, user_id,
		       action, confidence, latency_ms, payload_hash, payload_preview,
		       COALESCE(reason, '')
		FROM events
		WHERE user_id = $1
		ORDER BY timestamp DESC
		LIMIT $2
	`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	events := make([]AuditEvent, 0, limit)
	for rows.Next() {
		var ev AuditEvent
		if err := rows.Scan(
			&ev.ID, &ev.Timestamp, &ev.Type, &ev.Severity, &ev.SourceIP, &ev.UserID,
			&ev.Action, &ev.Confidence, &ev.LatencyMS, &ev.PayloadHash, &ev.PayloadPreview,
			&ev.Reason,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}

	return events, nil
}
