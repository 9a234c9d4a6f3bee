package jobs

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

type extractKind int

const (
	extractScalar extractKind = iota
	extractNameOrScalar
	extractPath
	extractLocalizedName
	extractJoinedList
	extractEpochMillis
)

type fieldRule struct {
	Name   string
	Source string
	Kind   extractKind
	Path   []string
}

var postingSchema = []fieldRule{
	{Name: "title", Source: "title"},
	{Name: "sub_title", Source: "sub_title"},
	{Name: "description", Source: "description"},
	{Name: "requirement", Source: "requirement"},
	{Name: "publish_time", Source: "publish_time", Kind: extractEpochMillis},
	{Name: "code", Source: "code"},
	{Name: "job_id", Source: "id"},
	{Name: "job_type", Source: "job_type"},
	{Name: "job_category", Source: "job_category", Kind: extractNameOrScalar},
	{Name: "job_function", Source: "job_function", Kind: extractNameOrScalar},
	{Name: "department_id", Source: "department_id"},
	{Name: "job_process_id", Source: "job_process_id"},
	{Name: "recruit_type_name", Source: "recruit_type", Kind: extractPath, Path: []string{"name"}},
	{Name: "recruit_type_parent", Source: "recruit_type", Kind: extractPath, Path: []string{"parent", "name"}},
	{Name: "job_subject_name", Source: "job_subject", Kind: extractLocalizedName, Path: []string{"name", "zh_cn"}},
	{Name: "city_list", Source: "city_list", Kind: extractJoinedList, Path: []string{"name"}},
	{Name: "city_codes", Source: "city_list", Kind: extractJoinedList, Path: []string{"code"}},
	{Name: "address", Source: "address"},
	{Name: "degree", Source: "degree"},
	{Name: "experience", Source: "experience"},
	{Name: "min_salary", Source: "min_salary"},
	{Name: "max_salary", Source: "max_salary"},
	{Name: "currency", Source: "currency"},
	{Name: "head_count", Source: "head_count"},
	{Name: "job_hot_flag", Source: "job_hot_flag"},
	{Name: "is_urgent", Source: "is_urgent"},
	{Name: "job_active_status", Source: "job_active_status"},
	{Name: "recommend_id", Source: "recommend_id"},
	{Name: "team_name", Source: "team_name"},
	{Name: "brand_name", Source: "brand_name"},
	{Name: "ats_online_apply", Source: "ats_online_apply"},
	{Name: "pc_job_url", Source: "pc_job_url"},
	{Name: "wap_job_url", Source: "wap_job_url"},
	{Name: "storefront_mode", Source: "storefront_mode"},
	{Name: "process_type", Source: "process_type"},
}

// SchemaFields lists the normalized field names in display order.
func SchemaFields() []string {
	names := make([]string, len(postingSchema))
	for i, rule := range postingSchema {
		names[i] = rule.Name
	}
	return names
}

type Normalizer struct {
	location *time.Location
}

func NewNormalizer(location *time.Location) *Normalizer {
	if location == nil {
		location = time.Local
	}
	return &Normalizer{location: location}
}

// Run maps one raw source record onto the posting schema plus the
// category's extra fields. Values the source does not provide are omitted.
func (n *Normalizer) Run(raw map[string]any, category *Category) Posting {
	fields := make(Fields, len(postingSchema))

	for _, rule := range postingSchema {
		setField(fields, rule.Name, n.extract(raw, rule))
	}

	if category != nil {
		for _, name := range category.ExtraFields {
			setField(fields, name, n.extract(raw, fieldRule{Name: name, Source: name, Kind: extractNameOrScalar}))
		}
	}

	return Posting{Fields: fields}
}

// RunBatch normalizes a fetched batch in source order.
func (n *Normalizer) RunBatch(raws []map[string]any, category *Category) []Posting {
	postings := make([]Posting, 0, len(raws))
	for _, raw := range raws {
		postings = append(postings, n.Run(raw, category))
	}
	return postings
}

func (n *Normalizer) extract(raw map[string]any, rule fieldRule) any {
	value, ok := raw[rule.Source]
	if !ok || value == nil {
		return nil
	}

	switch rule.Kind {
	case extractNameOrScalar:
		if obj, ok := value.(map[string]any); ok {
			return obj["name"]
		}
		return value

	case extractPath:
		return lookupPath(value, rule.Path)

	case extractLocalizedName:
		obj, ok := value.(map[string]any)
		if !ok {
			return nil
		}
		name := obj[rule.Path[0]]
		if localized, ok := name.(map[string]any); ok {
			return localized[rule.Path[1]]
		}
		return name

	case extractJoinedList:
		list, ok := value.([]any)
		if !ok || len(list) == 0 {
			return nil
		}
		parts := make([]string, 0, len(list))
		for _, entry := range list {
			obj, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			parts = append(parts, fieldString(obj[rule.Path[0]]))
		}
		return strings.Join(parts, ", ")

	case extractEpochMillis:
		millis, ok := toFloat(value)
		if !ok {
			return nil
		}
		return time.UnixMilli(int64(millis)).In(n.location).Format(PublishTimeLayout)

	default:
		return value
	}
}

func lookupPath(value any, path []string) any {
	current := value
	for _, key := range path {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = obj[key]
	}
	return current
}

func setField(fields Fields, name string, value any) {
	if isEmptyValue(value) {
		return
	}
	fields[name] = value
}

func isEmptyValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case json.Number:
		return val == ""
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(val, 64)
		return f, err == nil
	}
	return 0, false
}
