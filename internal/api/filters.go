package api

import (
	"encoding/json"
	"errors"
	"regexp"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"seedbank/internal/models"
)

var errInvalidQuery = errors.New("invalid_query")

var validProp = regexp.MustCompile(`^[A-Za-z0-9_ -]+$`)

type filterParam struct {
	Property string `json:"property"`
	Op       string `json:"op"`
	Value    string `json:"value"`
}

type sortParam struct {
	Property  string `json:"property"`
	Direction string `json:"direction"`
}

// recordQuery narrows and orders a record listing. Properties name a
// built-in field (name, description, tag) or an attribute key.
type recordQuery struct {
	filters []filterParam
	sorts   []sortParam
}

func parseRecordQuery(c *gin.Context) (recordQuery, error) {
	var q recordQuery
	if raw := c.Query("filters"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &q.filters); err != nil {
			return q, errInvalidQuery
		}
	}
	if raw := c.Query("sort"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &q.sorts); err != nil {
			return q, errInvalidQuery
		}
	}

	filters := q.filters[:0]
	for _, f := range q.filters {
		f.Property = strings.TrimSpace(f.Property)
		f.Op = strings.ToLower(strings.TrimSpace(f.Op))
		if f.Property == "" || !validProp.MatchString(f.Property) {
			continue
		}
		if f.Op != "eq" && f.Op != "contains" {
			continue
		}
		filters = append(filters, f)
	}
	q.filters = filters

	sorts := q.sorts[:0]
	for _, s := range q.sorts {
		if !validProp.MatchString(s.Property) {
			continue
		}
		s.Direction = strings.ToLower(s.Direction)
		if s.Direction != "desc" {
			s.Direction = "asc"
		}
		sorts = append(sorts, s)
	}
	q.sorts = sorts
	return q, nil
}

func (q recordQuery) empty() bool {
	return len(q.filters) == 0 && len(q.sorts) == 0
}

func (q recordQuery) apply(records []models.Record) []models.Record {
	out := records[:0:0]
	for _, r := range records {
		if q.matches(r) {
			out = append(out, r)
		}
	}
	if len(q.sorts) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			for _, s := range q.sorts {
				a, b := fieldValue(out[i], s.Property), fieldValue(out[j], s.Property)
				if a == b {
					continue
				}
				if s.Direction == "desc" {
					return a > b
				}
				return a < b
			}
			return false
		})
	}
	return out
}

func (q recordQuery) matches(r models.Record) bool {
	for _, f := range q.filters {
		want := strings.ToLower(f.Value)
		if strings.EqualFold(f.Property, "tag") {
			if !anyTag(r.Tags, f.Op, want) {
				return false
			}
			continue
		}
		got := strings.ToLower(fieldValue(r, f.Property))
		switch f.Op {
		case "eq":
			if got != want {
				return false
			}
		case "contains":
			if !strings.Contains(got, want) {
				return false
			}
		}
	}
	return true
}

func anyTag(tags []string, op, want string) bool {
	for _, tag := range tags {
		tag = strings.ToLower(tag)
		if (op == "eq" && tag == want) || (op == "contains" && strings.Contains(tag, want)) {
			return true
		}
	}
	return false
}

func fieldValue(r models.Record, property string) string {
	switch strings.ToLower(property) {
	case "name":
		return r.Name
	case "description":
		return r.Description
	case "updated_at":
		return r.UpdatedAt.UTC().Format("2006-01-02T15:04:05.000000000Z")
	case "created_at":
		return r.CreatedAt.UTC().Format("2006-01-02T15:04:05.000000000Z")
	default:
		return r.Attributes[property]
	}
}
