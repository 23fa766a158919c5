package db

// DefaultVectorField is the hash field holding the FLOAT32 embedding blob.
const DefaultVectorField = "vector"

// TagFilter restricts a search to entries whose TAG field holds any of Values.
type TagFilter struct {
	Field  string
	Values []string
}

// IsEmpty reports whether the filter restricts nothing.
func (f *TagFilter) IsEmpty() bool {
	return f == nil || f.Field == "" || len(f.Values) == 0
}

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName    string
	VectorField  string // defaults to DefaultVectorField
	Vector       []float32
	K            int
	Filter       *TagFilter
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single hit. Score is cosine similarity clamped to [0,1].
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
