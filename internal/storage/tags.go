package storage

import (
	"database/sql"
	"encoding/json"
	"maps"
	"strings"
)

// encodeStrings stores a string list as a JSON array; empty lists become NULL
func encodeStrings(values []string) sql.NullString {
	values = normalizeTags(values)
	if len(values) == 0 {
		return sql.NullString{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(data), Valid: true}
}

// decodeStrings accepts a JSON array or, for rows written by older tools, a comma-separated list
func decodeStrings(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var values []string
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &values); err == nil {
			return normalizeTags(values)
		}
	}
	return normalizeTags(strings.Split(raw, ","))
}

// normalizeTags trims entries and drops empties and duplicates, keeping first-seen order
func normalizeTags(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func encodeMetadata(m map[string]any) sql.NullString {
	if len(m) == 0 {
		return sql.NullString{}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(data), Valid: true}
}

func decodeMetadata(raw string) map[string]any {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil
	}
	return m
}

// mergeMetadata overlays incoming keys on the stored bag
func mergeMetadata(stored, incoming map[string]any) map[string]any {
	if len(stored) == 0 && len(incoming) == 0 {
		return nil
	}
	out := make(map[string]any, len(stored)+len(incoming))
	maps.Copy(out, stored)
	maps.Copy(out, incoming)
	return out
}

// ftsTags flattens enrichment and user tags into one space-separated column
func ftsTags(f *FileRecord) string {
	all := normalizeTags(append(append([]string{}, f.Tags...), f.UserTags...))
	return strings.Join(all, " ")
}
