package jobs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	FirstSeenKey = "first_seen_at"
	IsNewKey     = "is_new"
)

// Keys under which older exports stored the first-seen time, newest first.
var legacyFirstSeenKeys = []string{"采摘时间", "highlight_time"}

// Bookkeeping keys written by older stores that are not posting attributes.
var legacyMetaKeys = []string{"job_hash", "_id", "sheet_name", "type_name", "is_viewed", "created_at", "updated_at"}

// MigrateRecord converts a stored flat record into a Posting. It accepts the
// current layout as well as the legacy first-seen column names, and drops
// store bookkeeping keys and empty values.
func MigrateRecord(record map[string]any) Posting {
	fields := make(Fields, len(record))
	for key, value := range record {
		setField(fields, key, value)
	}

	var firstSeen *time.Time
	for _, key := range append([]string{FirstSeenKey}, legacyFirstSeenKeys...) {
		if firstSeen == nil {
			firstSeen = parseRecordTime(fields[key])
		}
		delete(fields, key)
	}

	var isNew *bool
	if raw, ok := fields[IsNewKey]; ok {
		isNew = parseRecordBool(raw)
		delete(fields, IsNewKey)
	}

	for _, key := range legacyMetaKeys {
		delete(fields, key)
	}

	return Posting{Fields: fields, FirstSeenAt: firstSeen, IsNew: isNew}
}

// FlattenRecord is the inverse of MigrateRecord for the current layout.
func FlattenRecord(p Posting) map[string]any {
	record := make(map[string]any, len(p.Fields)+2)
	for key, value := range p.Fields {
		record[key] = value
	}
	if p.FirstSeenAt != nil {
		record[FirstSeenKey] = p.FirstSeenAt.In(time.Local).Format(PublishTimeLayout)
	}
	if p.IsNew != nil {
		record[IsNewKey] = *p.IsNew
	}
	return record
}

// DecodeFields decodes a JSON object keeping numbers as json.Number so that
// large identifiers survive a round trip.
func DecodeFields(data []byte) (Fields, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var fields Fields
	if err := decoder.Decode(&fields); err != nil {
		return nil, fmt.Errorf("failed to decode fields: %w", err)
	}
	if fields == nil {
		fields = Fields{}
	}
	return fields, nil
}

func parseRecordTime(v any) *time.Time {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if t, err := time.ParseInLocation(PublishTimeLayout, s, time.Local); err == nil {
		return &t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t
	}
	return nil
}

func parseRecordBool(v any) *bool {
	switch val := v.(type) {
	case bool:
		return boolPtr(val)
	case string:
		switch strings.ToLower(val) {
		case "true", "1":
			return boolPtr(true)
		case "false", "0":
			return boolPtr(false)
		}
	case json.Number:
		return boolPtr(val.String() != "0")
	case float64:
		return boolPtr(val != 0)
	}
	return nil
}
