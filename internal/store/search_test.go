package store

import (
	"context"
	"testing"
	"time"

	"github.com/rcliao/brightmatter/internal/model"
)

func TestSearch_Basic(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.SaveChunk(ctx, chunk("a", 1, "wrote a caption about morning routines", testNow))
	s.SaveChunk(ctx, chunk("b", 1, "caption ideas for the launch", testNow.Add(time.Minute)))
	s.SaveChunk(ctx, chunk("c", 2, "caption for a travel reel", testNow))

	results, err := s.Search(ctx, SearchParams{UserID: 1, Query: "caption"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "b" {
		t.Errorf("expected newest first, got %s", results[0].ID)
	}

	// Across users
	results, _ = s.Search(ctx, SearchParams{Query: "caption"})
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	// No results
	results, _ = s.Search(ctx, SearchParams{UserID: 1, Query: "javascript"})
	if len(results) != 0 {
		t.Fatalf("expected 0 results, got %d", len(results))
	}
}

func TestSearch_Tags(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	c := chunk("a", 1, "untitled", testNow)
	c.Metadata.Tags = []string{"brand-deal"}
	s.SaveChunk(ctx, c)

	results, _ := s.Search(ctx, SearchParams{UserID: 1, Query: "brand-deal"})
	if len(results) != 1 {
		t.Fatalf("expected tag match, got %d", len(results))
	}
}

func TestSearch_ArchivedExcluded(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	c := chunk("a", 1, "this should not appear", testNow)
	c.Archived = true
	s.SaveChunk(ctx, c)

	results, err := s.Search(ctx, SearchParams{Query: "should not appear"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Fatalf("expected 0, got %d", len(results))
	}
}

func TestSearch_TypeAndLimit(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for i, typ := range []model.InteractionType{model.InteractionTask, model.InteractionSocial, model.InteractionSocial, model.InteractionSocial} {
		c := chunk(string(rune('a'+i)), 1, "note", testNow.Add(time.Duration(i)*time.Second))
		c.Metadata.InteractionType = typ
		s.SaveChunk(ctx, c)
	}

	results, _ := s.Search(ctx, SearchParams{UserID: 1, Query: "note", Type: model.InteractionSocial, Limit: 2})
	if len(results) != 2 {
		t.Fatalf("expected 2, got %d", len(results))
	}
	for _, r := range results {
		if r.Metadata.InteractionType != model.InteractionSocial {
			t.Errorf("unexpected type %s", r.Metadata.InteractionType)
		}
	}
}
