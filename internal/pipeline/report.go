package pipeline

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/sync/errgroup"

	"github.com/dotcommander/vbook/internal/domain/story"
	"github.com/dotcommander/vbook/internal/storage"
)

// StateFailed marks a draft whose last attempt ended in an error.
const StateFailed = "failed"

// UnitRow is one act in the report.
type UnitRow struct {
	UnitIndex  int
	State      string
	Score      string
	Iterations int
	Escalated  bool
	Weaknesses []string
	LastError  string
}

// ChapterRow summarises one chapter.
type ChapterRow struct {
	ID       int
	Expected int
	Units    []UnitRow
	Counts   map[string]int

	Aggregated bool
	State      string
	Score      string
	Iterations int

	Scenes  int
	Prompts int
	Renders int

	// PlotOptions reports whether options exist for this chapter, and
	// PlotChosen whether a human picked one.
	PlotOptions bool
	PlotChosen  bool
}

// Report is a read-only snapshot of the ledger.
type Report struct {
	Chapters []ChapterRow
}

// BuildReport loads every table concurrently and groups rows by chapter.
func BuildReport(ctx context.Context, ledger *storage.Ledger, unitsPerCollection int) (*Report, error) {
	var (
		units       []story.Unit
		collections []story.Collection
		items       []story.Item
		votes       []story.Vote
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		units, err = ledger.AllUnits(ctx)
		return err
	})
	g.Go(func() (err error) {
		collections, err = ledger.AllCollections(ctx)
		return err
	})
	g.Go(func() (err error) {
		items, err = ledger.Items(ctx, 0)
		return err
	})
	g.Go(func() (err error) {
		votes, err = ledger.AllVotes(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("loading status: %w", err)
	}

	chapters := make(map[int]*ChapterRow)
	chapter := func(id int) *ChapterRow {
		if c, ok := chapters[id]; ok {
			return c
		}
		c := &ChapterRow{ID: id, Expected: unitsPerCollection, Counts: make(map[string]int)}
		chapters[id] = c
		return c
	}

	for _, u := range units {
		c := chapter(u.CollectionID)
		row := UnitRow{
			UnitIndex:  u.UnitIndex,
			State:      stateOf(u.Work),
			Score:      scoreOf(u.Work),
			Iterations: u.Iterations,
			Escalated:  u.Status == story.StatusNeedsHumanReview,
			Weaknesses: u.Weaknesses,
			LastError:  u.LastError,
		}
		c.Units = append(c.Units, row)
		c.Counts[row.State]++
	}
	for _, col := range collections {
		c := chapter(col.ID)
		c.Aggregated = true
		c.State = stateOf(col.Combined)
		c.Score = scoreOf(col.Combined)
		c.Iterations = col.Combined.Iterations
	}
	for _, item := range items {
		c := chapter(item.CollectionID)
		c.Scenes++
		if item.Has(story.FieldRenderedPrompt) {
			c.Prompts++
		}
		if item.Has(story.FieldArtifactReference) {
			c.Renders++
		}
	}
	for _, v := range votes {
		c := chapter(v.CollectionID)
		c.PlotOptions = true
		c.PlotChosen = v.WinningText != ""
	}

	r := &Report{}
	for _, c := range chapters {
		r.Chapters = append(r.Chapters, *c)
	}
	sort.Slice(r.Chapters, func(i, j int) bool { return r.Chapters[i].ID < r.Chapters[j].ID })
	return r, nil
}

// Failed counts acts and chapters whose last attempt errored.
func (r *Report) Failed() int {
	n := 0
	for _, c := range r.Chapters {
		n += c.Counts[StateFailed]
		if c.State == StateFailed {
			n++
		}
	}
	return n
}

// Render writes a chapter summary table followed by a per-act table.
func (r *Report) Render(w io.Writer) error {
	if len(r.Chapters) == 0 {
		_, err := fmt.Fprintln(w, "No chapters yet.")
		return err
	}

	chapters := table.NewWriter()
	chapters.SetStyle(table.StyleLight)
	chapters.SetTitle("Chapters")
	chapters.AppendHeader(table.Row{"Chapter", "Acts", "Approved", "Review", "Draft", "Failed", "Status", "Score", "Iter", "Scenes", "Prompts", "Images", "Plot vote"})
	for _, c := range r.Chapters {
		state := c.State
		if !c.Aggregated {
			state = "-"
		}
		chapters.AppendRow(table.Row{
			c.ID,
			fmt.Sprintf("%d/%d", len(c.Units), c.Expected),
			c.Counts[string(story.StatusApproved)],
			c.Counts[string(story.StatusNeedsHumanReview)],
			c.Counts[string(story.StatusDraft)],
			c.Counts[StateFailed],
			state,
			orDash(c.Score),
			c.Iterations,
			c.Scenes,
			c.Prompts,
			c.Renders,
			voteState(c),
		})
	}
	chapters.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 8, Align: text.AlignRight},
	})

	acts := table.NewWriter()
	acts.SetStyle(table.StyleLight)
	acts.SetTitle("Acts")
	acts.AppendHeader(table.Row{"Chapter", "Act", "Status", "Score", "Iter", "Escalated", "Note"})
	for _, c := range r.Chapters {
		for _, u := range c.Units {
			flag := ""
			if u.Escalated {
				flag = "yes"
			}
			acts.AppendRow(table.Row{c.ID, u.UnitIndex, u.State, orDash(u.Score), u.Iterations, flag, noteOf(u)})
		}
	}
	acts.SetColumnConfigs([]table.ColumnConfig{
		{Number: 7, WidthMax: 60},
	})

	if _, err := fmt.Fprintln(w, chapters.Render()); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, acts.Render())
	return err
}

func stateOf(w story.Work) string {
	if w.Status == story.StatusDraft && w.LastError != "" {
		return StateFailed
	}
	return string(w.Status)
}

func scoreOf(w story.Work) string {
	if !w.Scored {
		return ""
	}
	return strconv.Itoa(w.Score)
}

func noteOf(u UnitRow) string {
	switch {
	case u.LastError != "":
		return u.LastError
	case u.Escalated && len(u.Weaknesses) > 0:
		return u.Weaknesses[0]
	}
	return ""
}

func voteState(c ChapterRow) string {
	switch {
	case c.PlotChosen:
		return "chosen"
	case c.PlotOptions:
		return "awaiting choice"
	}
	return "-"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
