package db

import (
	"strings"
	"testing"
)

func TestIndexBuilder_ChunkIndex(t *testing.T) {
	idx := NewIndex("chunks").
		Prefix("hubcontext:chunk:").
		TagList("hub_areas", ",").
		Tag("document_id").
		Numeric("position").
		Vector("vector", 1536, DistanceCosine, HNSW{M: 16, EFConstruct: 200}).
		MustBuild()

	if len(idx.Fields) != 4 {
		t.Fatalf("fields count = %d, want 4", len(idx.Fields))
	}
	if f := idx.Fields[0]; f.Type != IndexFieldTag || f.TagSeparator != "," {
		t.Errorf("field[0] = %+v, want hub_areas TAG SEPARATOR ,", f)
	}
	if f := idx.Fields[2]; f.Name != "position" || f.Type != IndexFieldNumeric {
		t.Errorf("field[2] = %+v, want position NUMERIC", f)
	}
	v := idx.VectorField()
	if v == nil || v.Name != "vector" || v.VectorDim != 1536 || v.VectorDistance != DistanceCosine {
		t.Fatalf("vector field = %+v", v)
	}
	if v.HNSW.M != 16 || v.HNSW.EFConstruct != 200 {
		t.Errorf("HNSW params = %+v", v.HNSW)
	}
}

func TestIndexBuilder_ValidationErrors(t *testing.T) {
	vec := func(b *IndexBuilder) *IndexBuilder {
		return b.Vector("vector", 4, DistanceCosine, HNSW{})
	}

	tests := []struct {
		name    string
		builder *IndexBuilder
		wantErr string
	}{
		{"empty name", vec(NewIndex("").Prefix("c:")), "index name is required"},
		{"invalid characters", vec(NewIndex("idx with spaces").Prefix("c:")), "invalid characters"},
		{"no prefix", vec(NewIndex("idx")), "key prefix is required"},
		{"no fields", NewIndex("idx").Prefix("c:"), "at least one field"},
		{"no vector", NewIndex("idx").Prefix("c:").Tag("x"), "exactly one vector field"},
		{
			"two vectors",
			vec(NewIndex("idx").Prefix("c:")).Vector("other", 4, DistanceCosine, HNSW{}),
			"exactly one vector field",
		},
		{"vector without dim", NewIndex("idx").Prefix("c:").Vector("v", 0, DistanceCosine, HNSW{}), "positive DIM"},
		{
			"negative hnsw",
			NewIndex("idx").Prefix("c:").Vector("v", 4, DistanceCosine, HNSW{M: -1}),
			"negative HNSW",
		},
		{"duplicate field", vec(NewIndex("idx").Prefix("c:").Tag("x").Numeric("x")), "duplicate field"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.builder.Build()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("got error %q, want containing %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestIndexDefinition_String(t *testing.T) {
	idx := NewIndex("chunks").
		Prefix("hubcontext:chunk:").
		TagList("hub_areas", ",").
		Vector("vector", 512, DistanceCosine, HNSW{}).
		MustBuild()

	want := "chunks ON HASH PREFIX hubcontext:chunk: hub_areas:tag vector:vector(512,COSINE)"
	if s := idx.String(); s != want {
		t.Errorf("String() =\n%q\nwant\n%q", s, want)
	}
}

func TestIsValidIdentifier(t *testing.T) {
	for _, ok := range []string{"chunks", "hubcontext:chunks", "idx_1-b"} {
		if !IsValidIdentifier(ok) {
			t.Errorf("%q should be valid", ok)
		}
	}
	for _, bad := range []string{"", "a b", "idx*"} {
		if IsValidIdentifier(bad) {
			t.Errorf("%q should be invalid", bad)
		}
	}
}
