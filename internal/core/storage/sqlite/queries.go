package sqlite

// SQL statements for the event log, dedup metadata, and snapshot
// tables. Timestamps are stored as integer Unix milliseconds (UTC) so
// range scans and window math stay cheap.

const (
	// queryAppendEvent inserts a fresh log entry with cleared
	// bookkeeping. ON CONFLICT DO NOTHING makes duplicate-id appends a
	// silent no-op: upstream retry logic may re-submit the same id.
	queryAppendEvent = `
		INSERT INTO events (
			id, pattern, source, payload, metadata, priority,
			ts, stored_at, processed, synced, retry_count
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, 0, 0)
		ON CONFLICT(id) DO NOTHING
	`

	selectEventColumns = `
		id, pattern, source, payload, metadata,
		ts, stored_at, processed, synced, retry_count, last_error
	`

	queryGetEvent = `
		SELECT ` + selectEventColumns + `
		FROM events
		WHERE id = ?
	`

	queryCountEvents = `SELECT COUNT(*) FROM events`

	// queryDeleteOldest trims the excess after an append pushed the
	// log over its retention cap. Oldest-by-timestamp go first,
	// regardless of settlement status; id breaks ties for determinism.
	queryDeleteOldest = `
		DELETE FROM events
		WHERE id IN (
			SELECT id FROM events
			ORDER BY ts ASC, id ASC
			LIMIT ?
		)
	`

	queryMarkProcessed = `UPDATE events SET processed = 1 WHERE id = ?`
	queryMarkSynced    = `UPDATE events SET synced = 1 WHERE id = ?`
	queryMarkFailed    = `UPDATE events SET retry_count = retry_count + 1, last_error = ? WHERE id = ?`

	// queryCleanup removes settled history only: age alone never
	// deletes an event on this path.
	queryCleanup = `
		DELETE FROM events
		WHERE ts < ? AND processed = 1 AND synced = 1
	`

	queryStatsAggregate = `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN processed = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN synced = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(LENGTH(payload) + LENGTH(COALESCE(metadata, ''))), 0),
			MIN(ts),
			MAX(ts)
		FROM events
	`

	queryStatsByPattern = `
		SELECT pattern, COUNT(*)
		FROM events
		GROUP BY pattern
	`

	// querySaveDedup upserts a fingerprint record. INSERT OR REPLACE
	// (not a single-target upsert) because a row may collide on either
	// unique key: a deterministic operation id legitimately recurring
	// after its window carries a new content hash and must displace
	// the stale row rather than violate the secondary index.
	querySaveDedup = `
		INSERT OR REPLACE INTO dedup_metadata (
			content_hash, operation_id, client_id, semantic_key,
			attempts, window_ms, ts
		)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	selectDedupColumns = `
		content_hash, operation_id, client_id, semantic_key,
		attempts, window_ms, ts
	`

	queryDedupByContentHash = `
		SELECT ` + selectDedupColumns + `
		FROM dedup_metadata
		WHERE content_hash = ?
	`

	queryDedupByOperationID = `
		SELECT ` + selectDedupColumns + `
		FROM dedup_metadata
		WHERE operation_id = ?
	`

	queryDedupBySemanticKey = `
		SELECT ` + selectDedupColumns + `
		FROM dedup_metadata
		WHERE semantic_key = ? AND ts >= ?
		ORDER BY ts DESC
	`

	queryPurgeDedup = `DELETE FROM dedup_metadata WHERE ts < ?`

	querySaveSnapshot = `
		INSERT INTO snapshots (id, pattern, data, ts)
		VALUES (?, ?, ?, ?)
	`

	queryLatestSnapshot = `
		SELECT id, pattern, data, ts
		FROM snapshots
		WHERE pattern = ?
		ORDER BY ts DESC, id DESC
		LIMIT 1
	`
)
