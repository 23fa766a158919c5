package db

import (
	"errors"
	"fmt"
)

// DistanceMetric used by vector fields. Embeddings are compared by cosine.
type DistanceMetric string

// DistanceCosine is cosine distance (1 - cosine similarity).
const DistanceCosine DistanceMetric = "COSINE"

// IndexFieldType enumerates the FT field types chunk indexes use.
type IndexFieldType int

const (
	// IndexFieldTag is an exact-match tag field (ids, hub areas).
	IndexFieldTag IndexFieldType = iota
	// IndexFieldNumeric is a numeric field.
	IndexFieldNumeric
	// IndexFieldVector is an HNSW FLOAT32 vector field.
	IndexFieldVector
)

// HNSW tunes the vector graph. Zero values leave the engine defaults.
type HNSW struct {
	M           int // max edges per node
	EFConstruct int // build-time candidate list size
}

// IndexField describes one field of an FT index over hashes.
type IndexField struct {
	Name string
	Type IndexFieldType

	// TagSeparator splits multi-valued tags. Empty keeps the engine default ",".
	TagSeparator string

	VectorDim      int
	VectorDistance DistanceMetric
	HNSW           HNSW
}

// IndexDefinition is an FT index over the hashes under Prefixes.
type IndexDefinition struct {
	Name     string
	Prefixes []string
	Fields   []IndexField
}

// VectorField returns the index's vector field, or nil when it has none.
func (idx *IndexDefinition) VectorField() *IndexField {
	for i := range idx.Fields {
		if idx.Fields[i].Type == IndexFieldVector {
			return &idx.Fields[i]
		}
	}
	return nil
}

// Validate checks that the definition can serve KNN queries.
// An unprefixed index would also cover document and cache hashes, so a prefix is required.
func (idx *IndexDefinition) Validate() error {
	if idx.Name == "" {
		return errors.New("index name is required")
	}
	if !IsValidIdentifier(idx.Name) {
		return errors.New("index name contains invalid characters")
	}
	if len(idx.Prefixes) == 0 {
		return fmt.Errorf("index %s: at least one key prefix is required", idx.Name)
	}
	if len(idx.Fields) == 0 {
		return errors.New("at least one field is required")
	}

	seen := make(map[string]bool, len(idx.Fields))
	vectors := 0
	for i := range idx.Fields {
		f := &idx.Fields[i]
		if f.Name == "" {
			return fmt.Errorf("field name is required at index %d", i)
		}
		if seen[f.Name] {
			return errors.New("duplicate field name: " + f.Name)
		}
		seen[f.Name] = true

		if f.Type != IndexFieldVector {
			continue
		}
		vectors++
		if f.VectorDim <= 0 {
			return errors.New("vector field requires positive DIM")
		}
		if f.HNSW.M < 0 || f.HNSW.EFConstruct < 0 {
			return fmt.Errorf("vector field %s: negative HNSW parameters", f.Name)
		}
	}
	if vectors != 1 {
		return fmt.Errorf("index %s: exactly one vector field is required, got %d", idx.Name, vectors)
	}

	return nil
}

// IsValidIdentifier returns true if s matches [a-zA-Z0-9_:-]+.
func IsValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		isDigit := r >= '0' && r <= '9'
		isSpecial := r == '_' || r == ':' || r == '-'
		if !isAlpha && !isDigit && !isSpecial {
			return false
		}
	}
	return true
}
