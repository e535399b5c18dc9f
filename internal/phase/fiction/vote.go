package fiction

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dotcommander/vbook/internal/agent"
	"github.com/dotcommander/vbook/internal/core"
	"github.com/dotcommander/vbook/internal/domain/story"
	"github.com/dotcommander/vbook/internal/phase"
)

// summaryInputLimit caps how much chapter text is sent for summarising.
const summaryInputLimit = 6000

// Voter proposes three plot directions for the collection after the one
// just finished.
type Voter struct {
	client  agent.AIClient
	prompts *phase.Prompts
	logger  *slog.Logger
}

func NewVoter(client agent.AIClient, prompts *phase.Prompts) *Voter {
	return &Voter{
		client:  client,
		prompts: prompts,
		logger:  slog.Default().With("component", "voter"),
	}
}

// Propose summarises combined and returns options keyed to collectionID+1.
func (v *Voter) Propose(ctx context.Context, collectionID int, combined string) (story.Vote, error) {
	if strings.TrimSpace(combined) == "" {
		return story.Vote{}, core.NewPreconditionError("vote", "chapter %d has no combined content", collectionID)
	}

	excerpt := core.Truncate(combined, summaryInputLimit)

	user, err := v.prompts.Render("summary", summaryUser, struct {
		CollectionID int
		Content      string
	}{collectionID, excerpt})
	if err != nil {
		return story.Vote{}, err
	}
	summary, err := v.client.Generate(ctx, agent.Request{
		Operation: OpSummarize,
		System:    summarySystem,
		User:      user,
		MaxTokens: 400,
	})
	if err != nil {
		return story.Vote{}, fmt.Errorf("summarising chapter %d: %w", collectionID, err)
	}

	user, err = v.prompts.Render("vote", voteUser, struct {
		CollectionID int
		NextID       int
		Summary      string
	}{collectionID, collectionID + 1, strings.TrimSpace(summary)})
	if err != nil {
		return story.Vote{}, err
	}

	var options struct {
		OptionA string `json:"option_a"`
		OptionB string `json:"option_b"`
		OptionC string `json:"option_c"`
	}
	if err := agent.GenerateStructured(ctx, v.client, agent.Request{
		Operation: OpVoteOptions,
		System:    voteSystem,
		User:      user,
		MaxTokens: 800,
	}, &options); err != nil {
		return story.Vote{}, fmt.Errorf("generating plot options for chapter %d: %w", collectionID+1, err)
	}

	vote := story.Vote{
		CollectionID: collectionID + 1,
		Options:      [3]string{options.OptionA, options.OptionB, options.OptionC},
	}
	for i, o := range vote.Options {
		if strings.TrimSpace(o) == "" {
			return story.Vote{}, fmt.Errorf("%w: option %c is empty", agent.ErrMalformedResponse, 'a'+i)
		}
	}

	v.logger.Info("plot options proposed", "for_chapter", vote.CollectionID)
	return vote, nil
}
