package journal

import (
	"database/sql"
	"time"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const entryColumns = "id, recorded_at, correlation_id, step, session_id, output_dir, event, reason, config_hash, elapsed_ms, detail"

func scanEntry(scanner interface{ Scan(dest ...any) error }) (Entry, error) {
	var (
		id            int64
		recordedRaw   string
		correlationID sql.NullString
		step          string
		sessionID     sql.NullString
		outputDir     string
		event         string
		reason        sql.NullString
		configHash    sql.NullString
		elapsedMS     int64
		detail        sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&recordedRaw,
		&correlationID,
		&step,
		&sessionID,
		&outputDir,
		&event,
		&reason,
		&configHash,
		&elapsedMS,
		&detail,
	); err != nil {
		return Entry{}, err
	}

	entry := Entry{
		ID:            id,
		CorrelationID: correlationID.String,
		Step:          step,
		SessionID:     sessionID.String,
		OutputDir:     outputDir,
		Event:         Event(event),
		Reason:        reason.String,
		ConfigHash:    configHash.String,
		Elapsed:       time.Duration(elapsedMS) * time.Millisecond,
		Detail:        detail.String,
	}
	if ts, err := time.Parse(timeLayout, recordedRaw); err == nil {
		entry.RecordedAt = ts
	}
	return entry, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
