package chunk

import (
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"strings"
)

// Recognised metadata keys. Aliases map onto the same typed field.
const (
	KeyPositionLabel   = "position_label"
	KeySection         = "section"
	KeyImportance      = "importance"
	KeyImportanceScore = "importance_score"
)

// Metadata is the typed view of a chunk's free-form metadata bag.
type Metadata struct {
	positionLabel string
	importance    *float64
	extra         map[string]string
}

// NewMetadata creates Metadata from typed values. A nil importance means absent.
func NewMetadata(positionLabel string, importance *float64, extra map[string]string) Metadata {
	var imp *float64
	if importance != nil {
		v := *importance
		imp = &v
	}
	return Metadata{
		positionLabel: strings.TrimSpace(positionLabel),
		importance:    imp,
		extra:         maps.Clone(extra),
	}
}

// ParseMetadata maps a decoded JSON object onto Metadata.
// position_label/section fill the label, importance/importance_score fill the
// importance (numbers or numeric strings); everything else lands in Extra.
// Unusable values for recognised keys are kept in Extra rather than rejected.
func ParseMetadata(raw map[string]any) Metadata {
	m := Metadata{}
	for k, v := range raw {
		switch k {
		case KeyPositionLabel, KeySection:
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				if m.positionLabel == "" || k == KeyPositionLabel {
					m.positionLabel = strings.TrimSpace(s)
				}
				continue
			}
		case KeyImportance, KeyImportanceScore:
			if f, ok := toFloat(v); ok {
				if m.importance == nil || k == KeyImportance {
					m.importance = &f
				}
				continue
			}
		}
		if v == nil {
			continue
		}
		if m.extra == nil {
			m.extra = make(map[string]string)
		}
		m.extra[k] = stringify(v)
	}
	return m
}

// ParseMetadataJSON decodes a JSON object and parses it. Empty input yields empty Metadata.
func ParseMetadataJSON(data []byte) (Metadata, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return Metadata{}, nil
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Metadata{}, fmt.Errorf("decode chunk metadata: %w", err)
	}
	return ParseMetadata(raw), nil
}

// PositionLabel returns the descriptive position label, empty when absent.
func (m *Metadata) PositionLabel() string { return m.positionLabel }

// HasPositionLabel reports whether a position label is present.
func (m *Metadata) HasPositionLabel() bool { return m.positionLabel != "" }

// Importance returns the raw importance score and whether it was present.
func (m *Metadata) Importance() (float64, bool) {
	if m.importance == nil {
		return 0, false
	}
	return *m.importance, true
}

// ClampedImportance returns importance clamped to [0,1], 0 when absent.
func (m *Metadata) ClampedImportance() float64 {
	v, ok := m.Importance()
	if !ok {
		return 0
	}
	return min(max(v, 0), 1)
}

// Extra returns the unrecognised key/value pairs.
func (m *Metadata) Extra() map[string]string { return m.extra }

// IsEmpty reports whether no metadata was present at all.
func (m *Metadata) IsEmpty() bool {
	return m.positionLabel == "" && m.importance == nil && len(m.extra) == 0
}

// Map renders metadata back to a flat JSON-compatible object.
func (m *Metadata) Map() map[string]any {
	out := make(map[string]any, len(m.extra)+2)
	for k, v := range m.extra {
		out[k] = v
	}
	if m.positionLabel != "" {
		out[KeyPositionLabel] = m.positionLabel
	}
	if m.importance != nil {
		out[KeyImportance] = *m.importance
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
