package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	v1 "github.com/offlinekit/eventcore/internal/api/v1"
	"github.com/offlinekit/eventcore/internal/core/normalize"
)

// NoEntityID is the semantic-key tail for payloads with no recognized
// identifier field. Such events still get content and operation
// deduplication, just no useful semantic grouping.
const NoEntityID = "no-id"

// DefaultEntityIDFields is the ordered list of payload fields probed
// for an entity id. Domains can extend it via EngineConfig.
var DefaultEntityIDFields = []string{
	"id",
	"entityId",
	"orderId",
	"customerId",
	"materialId",
	"staffId",
}

// ContentHash digests the canonical serialization of
// {pattern, payload: normalized, source} to lowercase hex SHA-256.
// Identical for semantically identical payloads regardless of key
// order or volatile-field values.
func ContentHash(event *v1.Event) (string, error) {
	canonical, err := normalize.MarshalCanonical(map[string]interface{}{
		"pattern": event.Pattern,
		"payload": normalize.Normalize(event.Payload),
		"source":  event.Source,
	})
	if err != nil {
		return "", fmt.Errorf("content hash: %w", err)
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// OperationID derives the operation identity for an event.
//
// When the event metadata carries a client operation id or user id,
// the result is deterministic: retries of the same user action
// collide even if payload content drifted. Otherwise a time-prefixed
// random id is generated; such events are never operation-deduplicated.
//
// Returns an error only when the secure-random source is unavailable.
// That failure is deliberately hard: degrading to a weak id would
// silently break the operation strategy's cross-process safety.
func OperationID(meta *v1.Metadata) (string, error) {
	if meta != nil && (meta.ClientOperationID != "" || meta.UserID != "") {
		parts := make([]string, 0, 2)
		if meta.ClientOperationID != "" {
			parts = append(parts, meta.ClientOperationID)
		}
		if meta.UserID != "" {
			parts = append(parts, meta.UserID)
		}
		return strings.Join(parts, "_"), nil
	}

	random, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("secure random unavailable: %w", err)
	}
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), random.String()), nil
}

// SemanticKey builds "{pattern}:{entityId}", probing the given field
// names in order. String and numeric values are accepted; the first
// present wins.
func SemanticKey(event *v1.Event, entityIDFields []string) string {
	return event.Pattern + ":" + extractEntityID(event.Payload, entityIDFields)
}

func extractEntityID(payload map[string]interface{}, fields []string) string {
	for _, field := range fields {
		raw, ok := payload[field]
		if !ok {
			continue
		}
		switch id := raw.(type) {
		case string:
			if id != "" {
				return id
			}
		case float64:
			return strconv.FormatFloat(id, 'f', -1, 64)
		case int:
			return strconv.Itoa(id)
		case int64:
			return strconv.FormatInt(id, 10)
		}
	}
	return NoEntityID
}
