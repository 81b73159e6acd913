package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/scribelab/scribed/internal/dispatch"
	"github.com/scribelab/scribed/internal/fault"
	"github.com/scribelab/scribed/internal/repository"
)

// DiscordNotifyTarget posts artifacts to a Discord channel. Summaries are
// posted in full; tasks as a short notification line.
type DiscordNotifyTarget struct {
	session   *discordgo.Session
	channelID string
}

func NewDiscordNotifyTarget(token, channelID string) (*DiscordNotifyTarget, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	return &DiscordNotifyTarget{session: s, channelID: channelID}, nil
}

func (t *DiscordNotifyTarget) Name() string { return "discord" }

func (t *DiscordNotifyTarget) Accepts(repository.ArtifactKind) bool { return true }

func (t *DiscordNotifyTarget) Create(ctx context.Context, artifact repository.Artifact) (dispatch.ExternalRef, error) {
	const op = "discord.notify"

	msg, err := t.session.ChannelMessageSend(t.channelID, formatMessage(artifact), discordgo.WithContext(ctx))
	if err != nil {
		var restErr *discordgo.RESTError
		if errors.As(err, &restErr) && restErr.Response != nil {
			return dispatch.ExternalRef{}, fault.FromHTTPStatus(op, restErr.Response.StatusCode, string(restErr.ResponseBody))
		}
		return dispatch.ExternalRef{}, fault.New(fault.ExternalTransient, op, err)
	}
	return dispatch.ExternalRef{ID: msg.ID}, nil
}

func formatMessage(artifact repository.Artifact) string {
	switch artifact.Kind {
	case repository.ArtifactKindSummary:
		return fmt.Sprintf("**Meeting summary** (%s)\n%s", artifact.MeetingID, truncateMessage(artifact.Body, 1800))
	default:
		var b strings.Builder
		fmt.Fprintf(&b, "**New task**: %s", artifact.Title)
		if artifact.Assignee != "" {
			fmt.Fprintf(&b, " (assignee: %s)", artifact.Assignee)
		}
		return b.String()
	}
}

// Discord caps messages at 2000 characters.
func truncateMessage(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ dispatch.Target = (*DiscordNotifyTarget)(nil)
