package collector

import (
	"fmt"
	"time"
)

// stampLayouts are the textual timestamp encodings written by the
// supported drivers. modernc sqlite stores time.Time with the first one.
var stampLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// stamp scans a nullable archive timestamp regardless of whether the
// driver hands back time.Time, text, or bytes.
type stamp struct {
	t *time.Time
}

func (s *stamp) Scan(v any) error {
	switch x := v.(type) {
	case nil:
		s.t = nil
		return nil
	case time.Time:
		t := x.UTC()
		s.t = &t
		return nil
	case string:
		return s.parse(x)
	case []byte:
		return s.parse(string(x))
	case int64:
		t := time.Unix(x, 0).UTC()
		s.t = &t
		return nil
	default:
		return fmt.Errorf("scan archive timestamp: unsupported type %T", v)
	}
}

func (s *stamp) parse(v string) error {
	for _, layout := range stampLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			t = t.UTC()
			s.t = &t
			return nil
		}
	}
	return fmt.Errorf("scan archive timestamp: unrecognized value %q", v)
}

// ParseStamp decodes a stored archive timestamp. It is exported for the
// read-side views, which scan archive columns the same way.
func ParseStamp(v any) (*time.Time, error) {
	var s stamp
	if err := s.Scan(v); err != nil {
		return nil, err
	}
	return s.t, nil
}
