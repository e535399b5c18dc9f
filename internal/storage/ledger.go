package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/dotcommander/vbook/internal/domain/story"
)

// Record field names.
const (
	fieldContent          = "content"
	fieldCombinedContent  = "combined_content"
	fieldScore            = "score"
	fieldIterationCount   = "iteration_count"
	fieldStatus           = "status"
	fieldNeedsHumanReview = "needs_human_review"
	fieldCriteriaScores   = "criteria_scores"
	fieldWeaknesses       = "weaknesses"
	fieldArtifactRef      = "artifact_ref"
	fieldLastError        = "last_error"
	fieldUpdatedAt        = "updated_at"
	fieldWinningText      = "winning_text"
)

var voteOptionFields = [3]string{"option_a", "option_b", "option_c"}

// Ledger maps the pipeline's domain types onto a RecordStore. Every save
// searches before it appends, so a key holds at most one record as long as
// there is a single writer. If duplicates exist anyway the oldest wins,
// matching RecordStore.Update.
type Ledger struct {
	store RecordStore
}

func NewLedger(store RecordStore) *Ledger {
	return &Ledger{store: store}
}

// Unit loads one unit. The bool is false when no record exists.
func (l *Ledger) Unit(ctx context.Context, collectionID, unitIndex int) (story.Unit, bool, error) {
	recs, err := l.store.Find(ctx, TableUnits, Key{CollectionID: collectionID, UnitIndex: unitIndex})
	if err != nil {
		return story.Unit{}, false, err
	}
	if len(recs) == 0 {
		return story.Unit{}, false, nil
	}
	u, err := decodeUnit(recs[0])
	return u, err == nil, err
}

// SaveUnit writes every unit field, appending the record on first save.
func (l *Ledger) SaveUnit(ctx context.Context, u *story.Unit) error {
	u.UpdatedAt = time.Now().UTC()
	fields := encodeWork(u.Work, fieldContent)
	fields[fieldArtifactRef] = u.ArtifactRef
	key := Key{CollectionID: u.CollectionID, UnitIndex: u.UnitIndex}
	if err := l.upsert(ctx, TableUnits, key, fields); err != nil {
		return fmt.Errorf("saving %s: %w", u.Label(), err)
	}
	return nil
}

// Units returns a collection's units sorted by unit index.
func (l *Ledger) Units(ctx context.Context, collectionID int) ([]story.Unit, error) {
	all, err := l.AllUnits(ctx)
	if err != nil {
		return nil, err
	}
	var out []story.Unit
	for _, u := range all {
		if u.CollectionID == collectionID {
			out = append(out, u)
		}
	}
	return out, nil
}

// AllUnits returns every unit sorted by collection then unit index.
func (l *Ledger) AllUnits(ctx context.Context) ([]story.Unit, error) {
	recs, err := l.store.ReadAll(ctx, TableUnits)
	if err != nil {
		return nil, err
	}
	var out []story.Unit
	for _, r := range firstPerKey(recs) {
		u, err := decodeUnit(r)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CollectionID != out[j].CollectionID {
			return out[i].CollectionID < out[j].CollectionID
		}
		return out[i].UnitIndex < out[j].UnitIndex
	})
	return out, nil
}

// Collection loads a collection's units and, once aggregated, its combined
// record.
func (l *Ledger) Collection(ctx context.Context, id int) (story.Collection, error) {
	units, err := l.Units(ctx, id)
	if err != nil {
		return story.Collection{}, err
	}
	c := story.Collection{ID: id, Units: units}

	recs, err := l.store.Find(ctx, TableCollections, Key{CollectionID: id})
	if err != nil {
		return story.Collection{}, err
	}
	if len(recs) > 0 {
		w, err := decodeWork(recs[0], fieldCombinedContent)
		if err != nil {
			return story.Collection{}, err
		}
		c.Combined = w
		c.Aggregated = true
		c.ArtifactRef = recs[0].Fields[fieldArtifactRef]
	}
	return c, nil
}

// SaveCollection writes the combined record. Unit records are untouched.
func (l *Ledger) SaveCollection(ctx context.Context, c *story.Collection) error {
	c.Combined.UpdatedAt = time.Now().UTC()
	fields := encodeWork(c.Combined, fieldCombinedContent)
	fields[fieldArtifactRef] = c.ArtifactRef
	if err := l.upsert(ctx, TableCollections, Key{CollectionID: c.ID}, fields); err != nil {
		return fmt.Errorf("saving chapter %d: %w", c.ID, err)
	}
	return nil
}

// AllCollections returns every aggregated collection record, without units.
func (l *Ledger) AllCollections(ctx context.Context) ([]story.Collection, error) {
	recs, err := l.store.ReadAll(ctx, TableCollections)
	if err != nil {
		return nil, err
	}
	var out []story.Collection
	for _, r := range firstPerKey(recs) {
		w, err := decodeWork(r, fieldCombinedContent)
		if err != nil {
			return nil, err
		}
		out = append(out, story.Collection{
			ID:          r.Key.CollectionID,
			Combined:    w,
			Aggregated:  true,
			ArtifactRef: r.Fields[fieldArtifactRef],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// EnsureItem appends an empty item record unless one exists. It reports
// whether a record was created.
func (l *Ledger) EnsureItem(ctx context.Context, collectionID, unitIndex, itemIndex int) (bool, error) {
	key := Key{CollectionID: collectionID, UnitIndex: unitIndex, ItemIndex: itemIndex}
	recs, err := l.store.Find(ctx, TableItems, key)
	if err != nil {
		return false, err
	}
	if len(recs) > 0 {
		return false, nil
	}
	fields := map[string]string{fieldUpdatedAt: time.Now().UTC().Format(time.RFC3339)}
	for _, f := range story.ItemFields {
		fields[f] = ""
	}
	if _, err := l.store.Append(ctx, TableItems, key, fields); err != nil {
		return false, err
	}
	return true, nil
}

// SaveItemField persists a single completion field immediately.
func (l *Ledger) SaveItemField(ctx context.Context, item story.Item, field, value string) error {
	key := Key{CollectionID: item.CollectionID, UnitIndex: item.UnitIndex, ItemIndex: item.ItemIndex}
	return l.store.Update(ctx, TableItems, key, map[string]string{
		field:          value,
		fieldLastError: "",
		fieldUpdatedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

// SaveItemError records why a stage left an item's field unset.
func (l *Ledger) SaveItemError(ctx context.Context, item story.Item, msg string) error {
	key := Key{CollectionID: item.CollectionID, UnitIndex: item.UnitIndex, ItemIndex: item.ItemIndex}
	return l.store.Update(ctx, TableItems, key, map[string]string{
		fieldLastError: msg,
		fieldUpdatedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

// Items returns a collection's items sorted by unit then item index. A
// collectionID of 0 returns every item.
func (l *Ledger) Items(ctx context.Context, collectionID int) ([]story.Item, error) {
	recs, err := l.store.ReadAll(ctx, TableItems)
	if err != nil {
		return nil, err
	}
	var out []story.Item
	for _, r := range firstPerKey(recs) {
		if collectionID != 0 && r.Key.CollectionID != collectionID {
			continue
		}
		item := story.Item{
			CollectionID: r.Key.CollectionID,
			UnitIndex:    r.Key.UnitIndex,
			ItemIndex:    r.Key.ItemIndex,
			LastError:    r.Fields[fieldLastError],
		}
		for _, f := range story.ItemFields {
			if v := r.Fields[f]; v != "" {
				item.Set(f, v)
			}
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.CollectionID != b.CollectionID {
			return a.CollectionID < b.CollectionID
		}
		if a.UnitIndex != b.UnitIndex {
			return a.UnitIndex < b.UnitIndex
		}
		return a.ItemIndex < b.ItemIndex
	})
	return out, nil
}

// Vote loads the plot options stored for collectionID.
func (l *Ledger) Vote(ctx context.Context, collectionID int) (story.Vote, bool, error) {
	recs, err := l.store.Find(ctx, TableVotes, Key{CollectionID: collectionID})
	if err != nil {
		return story.Vote{}, false, err
	}
	if len(recs) == 0 {
		return story.Vote{}, false, nil
	}
	return decodeVote(recs[0]), true, nil
}

// SaveVote appends v unless options already exist for its collection. An
// existing row is left alone so a human's winning_text is never clobbered.
func (l *Ledger) SaveVote(ctx context.Context, v story.Vote) (bool, error) {
	key := Key{CollectionID: v.CollectionID}
	recs, err := l.store.Find(ctx, TableVotes, key)
	if err != nil {
		return false, err
	}
	if len(recs) > 0 {
		return false, nil
	}
	fields := map[string]string{fieldWinningText: v.WinningText}
	for i, name := range voteOptionFields {
		fields[name] = v.Options[i]
	}
	if _, err := l.store.Append(ctx, TableVotes, key, fields); err != nil {
		return false, fmt.Errorf("saving vote for chapter %d: %w", v.CollectionID, err)
	}
	return true, nil
}

// AllVotes returns every vote row sorted by collection.
func (l *Ledger) AllVotes(ctx context.Context) ([]story.Vote, error) {
	recs, err := l.store.ReadAll(ctx, TableVotes)
	if err != nil {
		return nil, err
	}
	var out []story.Vote
	for _, r := range firstPerKey(recs) {
		out = append(out, decodeVote(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CollectionID < out[j].CollectionID })
	return out, nil
}

func (l *Ledger) upsert(ctx context.Context, table string, key Key, fields map[string]string) error {
	recs, err := l.store.Find(ctx, table, key)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		_, err = l.store.Append(ctx, table, key, fields)
		return err
	}
	return l.store.Update(ctx, table, key, fields)
}

func firstPerKey(recs []Record) []Record {
	seen := make(map[Key]bool, len(recs))
	out := recs[:0:0]
	for _, r := range recs {
		if seen[r.Key] {
			continue
		}
		seen[r.Key] = true
		out = append(out, r)
	}
	return out
}

func encodeWork(w story.Work, contentField string) map[string]string {
	fields := map[string]string{
		contentField:          w.Content,
		fieldScore:            "",
		fieldIterationCount:   strconv.Itoa(w.Iterations),
		fieldStatus:           string(w.Status),
		fieldNeedsHumanReview: strconv.FormatBool(w.Status == story.StatusNeedsHumanReview),
		fieldCriteriaScores:   "",
		fieldWeaknesses:       "",
		fieldLastError:        w.LastError,
		fieldUpdatedAt:        w.UpdatedAt.Format(time.RFC3339),
	}
	if w.Scored {
		fields[fieldScore] = strconv.Itoa(w.Score)
	}
	if len(w.CriteriaScores) > 0 {
		raw, _ := json.Marshal(w.CriteriaScores)
		fields[fieldCriteriaScores] = string(raw)
	}
	if len(w.Weaknesses) > 0 {
		raw, _ := json.Marshal(w.Weaknesses)
		fields[fieldWeaknesses] = string(raw)
	}
	return fields
}

func decodeWork(r Record, contentField string) (story.Work, error) {
	f := r.Fields
	w := story.Work{
		Content:   f[contentField],
		Status:    story.Status(f[fieldStatus]),
		LastError: f[fieldLastError],
	}
	if w.Status == "" {
		w.Status = story.StatusDraft
	}

	var err error
	if s := f[fieldScore]; s != "" {
		if w.Score, err = strconv.Atoi(s); err != nil {
			return w, fmt.Errorf("record %d: bad score %q", r.ID, s)
		}
		w.Scored = true
	}
	if s := f[fieldIterationCount]; s != "" {
		if w.Iterations, err = strconv.Atoi(s); err != nil {
			return w, fmt.Errorf("record %d: bad iteration_count %q", r.ID, s)
		}
	}
	if s := f[fieldCriteriaScores]; s != "" {
		if err := json.Unmarshal([]byte(s), &w.CriteriaScores); err != nil {
			return w, fmt.Errorf("record %d: bad criteria_scores: %w", r.ID, err)
		}
	}
	if s := f[fieldWeaknesses]; s != "" {
		if err := json.Unmarshal([]byte(s), &w.Weaknesses); err != nil {
			return w, fmt.Errorf("record %d: bad weaknesses: %w", r.ID, err)
		}
	}
	if t, err := time.Parse(time.RFC3339, f[fieldUpdatedAt]); err == nil {
		w.UpdatedAt = t
	} else {
		w.UpdatedAt = r.UpdatedAt
	}
	return w, nil
}

func decodeUnit(r Record) (story.Unit, error) {
	w, err := decodeWork(r, fieldContent)
	if err != nil {
		return story.Unit{}, err
	}
	return story.Unit{
		CollectionID: r.Key.CollectionID,
		UnitIndex:    r.Key.UnitIndex,
		Work:         w,
		ArtifactRef:  r.Fields[fieldArtifactRef],
	}, nil
}

func decodeVote(r Record) story.Vote {
	v := story.Vote{CollectionID: r.Key.CollectionID, WinningText: r.Fields[fieldWinningText]}
	for i, name := range voteOptionFields {
		v.Options[i] = r.Fields[name]
	}
	return v
}
