package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lessonforge/server/internal/agent/graph/conversations"
	"github.com/lessonforge/server/internal/agent/interaction"
	"github.com/lessonforge/server/internal/agent/providers"
)

const summarizeSystemPrompt = `You maintain the rolling summary of a course authoring conversation.
Merge the previous summary, if any, with the recent messages. Keep decisions about
tone, audience, terminology and lesson structure. Answer with the summary only,
at most 200 words.`

const summarizeInstruction = "Update the conversation summary."

var (
	sumConversationID string
	sumProvider       string
)

func GetSummarizeCommand() *cobra.Command {
	summarizeCmd := &cobra.Command{
		Use:   "summarize",
		Short: "Refresh the rolling summary of a conversation",
		Long: `Condenses the recent history of a conversation, together with its previous
summary, into a new summary that later generations receive as context.`,
		RunE: runSummarize,
	}
	summarizeCmd.Flags().StringVarP(&sumConversationID, "conversation-id", "c", "", "Conversation to summarize (required)")
	summarizeCmd.Flags().StringVar(&sumProvider, "provider", "", "Text completion provider (defaults to PIPELINE_AGENT_PROVIDER)")
	_ = summarizeCmd.MarkFlagRequired("conversation-id")
	return summarizeCmd
}

func runSummarize(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg := appConfig

	repo, closeRepo, err := openConversations(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeRepo()
	if repo == nil {
		return errors.New("summarize requires REDIS_URL")
	}

	registry, err := buildRegistry(ctx, cfg)
	if err != nil {
		return err
	}
	completer, err := providers.ResolveOrDefault[providers.TextCompleter](registry, providers.CapabilityTextCompletion, sumProvider)
	if err != nil {
		return err
	}

	wm := conversations.NewWindowManager(repo, cfg.Conversation)
	ictx, err := conversations.BuildContext(ctx, wm, sumConversationID, summarizeInstruction)
	if err != nil {
		return err
	}
	if len(ictx.RecentHistory()) == 0 {
		return fmt.Errorf("conversation %q has no history", sumConversationID)
	}

	res, err := interaction.Complete(ctx, completer, ictx, summarizeSystemPrompt,
		interaction.WithTimeout(cfg.Pipeline.CallTimeout),
		interaction.WithLabel("summary"),
	)
	if err != nil {
		return err
	}
	if err := wm.SaveSummary(ctx, sumConversationID, res.Content); err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), res.Content)
	return err
}
