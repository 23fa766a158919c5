package chunk

import (
	"testing"

	"github.com/kailas-cloud/hubcontext/internal/domain/hub"
)

func TestNew_Valid(t *testing.T) {
	areas := []hub.Area{hub.Marketing}
	c, err := New("c-1", "doc-1", "hello", 2, Metadata{}, 0.8, "Title", areas)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.ID() != "c-1" || c.DocumentID() != "doc-1" {
		t.Errorf("ids = %q/%q", c.ID(), c.DocumentID())
	}
	if c.Position() != 2 {
		t.Errorf("Position() = %d", c.Position())
	}
	if c.Similarity() != 0.8 {
		t.Errorf("Similarity() = %v", c.Similarity())
	}

	areas[0] = hub.Legal
	if c.HubAreas()[0] != hub.Marketing {
		t.Error("hub area mutation leaked into chunk")
	}
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		id, doc  string
		position int
	}{
		{"empty id", "", "doc", 0},
		{"empty document", "c", "", 0},
		{"negative position", "c", "doc", -1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.id, tc.doc, "x", tc.position, Metadata{}, 0.5, "", nil); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestWithDocument(t *testing.T) {
	c := Reconstruct("c-1", "doc-1", "x", 0, Metadata{}, 0.9, "", nil)
	enriched := c.WithDocument("Guide", []hub.Area{hub.Sales})

	if enriched.DocumentTitle() != "Guide" {
		t.Errorf("DocumentTitle() = %q", enriched.DocumentTitle())
	}
	if c.DocumentTitle() != "" {
		t.Error("WithDocument must not mutate the receiver")
	}
	if !hub.Contains(enriched.HubAreas(), hub.Sales) {
		t.Errorf("HubAreas() = %v", enriched.HubAreas())
	}
}
