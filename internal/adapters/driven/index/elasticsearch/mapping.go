package elasticsearch

import (
	"encoding/json"
	"time"

	"github.com/custodia-labs/mahuta/internal/core/domain"
)

// defaultMapping is applied to indexes created without a mapping. String
// fields are analyzed for full text and get a raw keyword for exact
// matches and a lowercased keyword for membership tests.
var defaultMapping = []byte(`{
  "settings": {
    "analysis": {
      "normalizer": {
        "lowercase": {"type": "custom", "filter": ["lowercase"]}
      }
    }
  },
  "mappings": {
    "dynamic_templates": [
      {
        "strings": {
          "match_mapping_type": "string",
          "mapping": {
            "type": "text",
            "fields": {
              "raw": {"type": "keyword", "ignore_above": 8191},
              "lower": {"type": "keyword", "normalizer": "lowercase", "ignore_above": 8191}
            }
          }
        }
      }
    ],
    "properties": {
      "__hash": {"type": "keyword", "fields": {"lower": {"type": "keyword", "normalizer": "lowercase"}}},
      "__content_type": {"type": "keyword", "fields": {"lower": {"type": "keyword", "normalizer": "lowercase"}}},
      "__pinned": {"type": "boolean"},
      "__content": {"type": "binary"}
    }
  }
}`)

// dateLayout is how dates are written so dynamic mapping detects them.
const dateLayout = "2006-01-02T15:04:05.000Z07:00"

// fieldTypes maps field names to their mapped type.
type fieldTypes map[string]string

// mappingResponse is the body of GET /<index>/_mapping.
type mappingResponse map[string]struct {
	Mappings struct {
		Properties map[string]struct {
			Type string `json:"type"`
		} `json:"properties"`
	} `json:"mappings"`
}

func parseMapping(data []byte) (map[string]fieldTypes, error) {
	var resp mappingResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	out := make(map[string]fieldTypes, len(resp))
	for index, m := range resp {
		types := make(fieldTypes, len(m.Mappings.Properties))
		for name, p := range m.Mappings.Properties {
			types[name] = p.Type
		}
		out[index] = types
	}
	return out, nil
}

// encodeValue returns the JSON form written to the index.
func encodeValue(v domain.Value) any {
	switch v.Kind() {
	case domain.KindDate:
		t, _ := v.Time()
		return t.UTC().Format(dateLayout)
	case domain.KindArray:
		items := v.Items()
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = encodeValue(item)
		}
		return out
	default:
		return v.Interface()
	}
}

// decodeDate restores a date-mapped value read back as text or millis.
func decodeDate(v domain.Value) domain.Value {
	switch v.Kind() {
	case domain.KindArray:
		items := v.Items()
		out := make([]domain.Value, len(items))
		for i, item := range items {
			out[i] = decodeDate(item)
		}
		return domain.Array(out...)
	case domain.KindString:
		s, _ := v.Str()
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return domain.Date(t)
		}
	case domain.KindNumber:
		n, _ := v.Num()
		return domain.DateMillis(int64(n))
	}
	return v
}
