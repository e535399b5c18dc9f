package storage

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/dotcommander/vbook/internal/domain/story"
)

func TestLedgerUnitRoundTrip(t *testing.T) {
	for _, f := range storeFactories() {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			store := f.open(t)
			l := NewLedger(store)

			if _, ok, err := l.Unit(ctx, 1, 1); err != nil || ok {
				t.Fatalf("Unit() on empty store = ok %v, err %v", ok, err)
			}

			u := story.Unit{CollectionID: 1, UnitIndex: 1, Work: story.NewWork("Draft text.")}
			if err := l.SaveUnit(ctx, &u); err != nil {
				t.Fatal(err)
			}

			u.Apply(story.Verdict{
				OverallScore:   7,
				CriteriaScores: map[string]int{"pacing": 6},
				Weaknesses:     []string{"slow middle"},
			})
			u.Iterations = 2
			u.Status = story.StatusNeedsHumanReview
			u.ArtifactRef = "chapter_01/act_1.txt"
			if err := l.SaveUnit(ctx, &u); err != nil {
				t.Fatal(err)
			}

			recs, _ := store.Find(ctx, TableUnits, Key{CollectionID: 1, UnitIndex: 1})
			if len(recs) != 1 {
				t.Fatalf("%d records for one unit, want 1", len(recs))
			}
			if recs[0].Fields[fieldNeedsHumanReview] != "true" {
				t.Errorf("needs_human_review = %q", recs[0].Fields[fieldNeedsHumanReview])
			}

			got, ok, err := l.Unit(ctx, 1, 1)
			if err != nil || !ok {
				t.Fatalf("Unit() = ok %v, err %v", ok, err)
			}
			opt := cmpopts.IgnoreFields(story.Work{}, "UpdatedAt")
			if diff := cmp.Diff(u, got, opt); diff != "" {
				t.Errorf("unit mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLedgerUnsetScore(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(NewMemoryStore())

	u := story.Unit{CollectionID: 2, UnitIndex: 1, Work: story.NewWork("x")}
	if err := l.SaveUnit(ctx, &u); err != nil {
		t.Fatal(err)
	}
	got, _, _ := l.Unit(ctx, 2, 1)
	if got.Scored {
		t.Error("fresh draft should have no score")
	}
	if got.Status != story.StatusDraft || got.Iterations != 0 {
		t.Errorf("got status %s iterations %d", got.Status, got.Iterations)
	}
}

func TestLedgerCollection(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(NewMemoryStore())

	for _, idx := range []int{3, 1, 2} {
		u := story.Unit{CollectionID: 1, UnitIndex: idx, Work: story.NewWork("act")}
		if err := l.SaveUnit(ctx, &u); err != nil {
			t.Fatal(err)
		}
	}
	other := story.Unit{CollectionID: 2, UnitIndex: 1, Work: story.NewWork("other chapter")}
	if err := l.SaveUnit(ctx, &other); err != nil {
		t.Fatal(err)
	}

	c, err := l.Collection(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	var order []int
	for _, u := range c.Units {
		order = append(order, u.UnitIndex)
	}
	if diff := cmp.Diff([]int{1, 2, 3}, order); diff != "" {
		t.Errorf("unit order (-want +got):\n%s", diff)
	}
	if c.Aggregated {
		t.Error("collection without a combined record reported aggregated")
	}

	c.Combined = story.NewWork("act\n\nact\n\nact")
	c.Combined.Status = story.StatusApproved
	c.Combined.Score = 9
	c.Combined.Scored = true
	if err := l.SaveCollection(ctx, &c); err != nil {
		t.Fatal(err)
	}

	reloaded, err := l.Collection(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !reloaded.Aggregated || reloaded.Combined.Status != story.StatusApproved || reloaded.Combined.Score != 9 {
		t.Errorf("reloaded combined = %+v", reloaded.Combined)
	}
	if len(reloaded.Units) != 3 {
		t.Errorf("unit records changed: %d", len(reloaded.Units))
	}

	all, err := l.AllCollections(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0].ID != 1 {
		t.Errorf("AllCollections() = %+v", all)
	}
}

func TestLedgerItems(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(NewMemoryStore())

	created, err := l.EnsureItem(ctx, 1, 1, 1)
	if err != nil || !created {
		t.Fatalf("EnsureItem() = %v, %v", created, err)
	}
	created, err = l.EnsureItem(ctx, 1, 1, 1)
	if err != nil || created {
		t.Fatalf("second EnsureItem() = %v, %v; want no append", created, err)
	}
	if _, err := l.EnsureItem(ctx, 2, 1, 1); err != nil {
		t.Fatal(err)
	}

	item := story.Item{CollectionID: 1, UnitIndex: 1, ItemIndex: 1}
	if err := l.SaveItemError(ctx, item, "extract failed"); err != nil {
		t.Fatal(err)
	}
	if err := l.SaveItemField(ctx, item, story.FieldExtractedDescription, "a lighthouse"); err != nil {
		t.Fatal(err)
	}

	items, err := l.Items(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("Items(1) returned %d, want 1", len(items))
	}
	got := items[0]
	if got.Get(story.FieldExtractedDescription) != "a lighthouse" || got.Has(story.FieldRenderedPrompt) {
		t.Errorf("item fields = %v", got.Fields)
	}
	if got.LastError != "" {
		t.Errorf("successful field write should clear last_error, got %q", got.LastError)
	}

	all, _ := l.Items(ctx, 0)
	if len(all) != 2 {
		t.Errorf("Items(0) returned %d, want 2", len(all))
	}
}

func TestLedgerVotes(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	l := NewLedger(store)

	v := story.Vote{CollectionID: 2, Options: [3]string{"flee", "fight", "bargain"}}
	created, err := l.SaveVote(ctx, v)
	if err != nil || !created {
		t.Fatalf("SaveVote() = %v, %v", created, err)
	}

	// A human picks the winner directly in the store.
	if err := store.Update(ctx, TableVotes, Key{CollectionID: 2}, map[string]string{fieldWinningText: "bargain"}); err != nil {
		t.Fatal(err)
	}

	created, err = l.SaveVote(ctx, story.Vote{CollectionID: 2, Options: [3]string{"x", "y", "z"}})
	if err != nil || created {
		t.Fatalf("second SaveVote() = %v, %v; want skip", created, err)
	}

	got, ok, err := l.Vote(ctx, 2)
	if err != nil || !ok {
		t.Fatalf("Vote() = %v, %v", ok, err)
	}
	want := story.Vote{CollectionID: 2, Options: [3]string{"flee", "fight", "bargain"}, WinningText: "bargain"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("vote mismatch (-want +got):\n%s", diff)
	}

	votes, _ := l.AllVotes(ctx)
	if len(votes) != 1 {
		t.Errorf("AllVotes() = %d rows", len(votes))
	}
}

func TestLedgerIgnoresDuplicateRecords(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	key := Key{CollectionID: 1, UnitIndex: 1}
	store.Append(ctx, TableUnits, key, map[string]string{fieldContent: "original", fieldStatus: "approved", fieldScore: "9"})
	store.Append(ctx, TableUnits, key, map[string]string{fieldContent: "stray", fieldStatus: "draft"})

	units, err := NewLedger(store).Units(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(units) != 1 || units[0].Content != "original" {
		t.Errorf("Units() = %+v, want the oldest record only", units)
	}
}
