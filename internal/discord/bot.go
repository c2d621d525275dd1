package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/sentinelgg/sentinel/internal/command"
)

// responder is the subset of discordgo calls used to answer an interaction.
type responder interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Bot registers Sentinel's slash commands and routes interactions to the dispatcher.
type Bot struct {
	session         *discordgo.Session
	dispatcher      *command.Dispatcher
	followupTimeout time.Duration
}

// NewBot creates a Bot over an open session.
func NewBot(s *discordgo.Session, dispatcher *command.Dispatcher, followupTimeout time.Duration) *Bot {
	return &Bot{
		session:         s,
		dispatcher:      dispatcher,
		followupTimeout: followupTimeout,
	}
}

// Start registers the commands and serves interactions until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	if b.session.State == nil || b.session.State.User == nil {
		return errors.New("discord session is not ready")
	}

	cmds := make([]*discordgo.ApplicationCommand, 0)
	for _, def := range b.dispatcher.Definitions() {
		cmds = append(cmds, applicationCommand(def))
	}
	if _, err := b.session.ApplicationCommandBulkOverwrite(b.session.State.User.ID, "", cmds, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("registering commands: %w", err)
	}

	remove := b.session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		b.handleInteraction(ctx, s, i)
	})
	defer remove()

	slog.Info("discord bot started", "commands", len(cmds))
	<-ctx.Done()
	slog.Info("discord bot stopped")
	return nil
}

// handleInteraction acknowledges within command.AckDeadline, then delivers the follow-up.
func (b *Bot) handleInteraction(ctx context.Context, r responder, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	inv := invocationFrom(i)

	ackCtx, cancel := context.WithTimeout(ctx, command.AckDeadline)
	defer cancel()

	resp, err := b.dispatcher.Dispatch(ackCtx, inv)
	if errors.Is(err, command.ErrUnknownCommand) {
		slog.Warn("ignoring unknown command", "command", inv.Command)
		return
	}
	if err != nil {
		slog.Error("command failed", "command", inv.Command, "error", err)
	}

	if err := r.InteractionRespond(i.Interaction, interactionResponse(resp.Ack), discordgo.WithContext(ackCtx)); err != nil {
		slog.Error("failed to acknowledge interaction", "command", inv.Command, "invoker", inv.Invoker.ID, "error", err)
		return
	}

	reply, ok := command.RunFollowup(ctx, resp, b.followupTimeout)
	if !ok {
		return
	}
	if _, err := r.FollowupMessageCreate(i.Interaction, true, webhookParams(reply), discordgo.WithContext(ctx)); err != nil {
		slog.Error("failed to send follow-up", "command", inv.Command, "invoker", inv.Invoker.ID, "error", err)
	}
}

func invocationFrom(i *discordgo.InteractionCreate) command.Invocation {
	data := i.ApplicationCommandData()
	inv := command.Invocation{Command: data.Name, GuildID: i.GuildID}
	if len(data.Options) > 0 && data.Options[0].Type == discordgo.ApplicationCommandOptionString {
		inv.Option = data.Options[0].StringValue()
	}

	switch {
	case i.Member != nil && i.Member.User != nil:
		inv.Invoker = command.Invoker{ID: i.Member.User.ID, Username: i.Member.User.Username, Roles: i.Member.Roles}
	case i.User != nil:
		inv.Invoker = command.Invoker{ID: i.User.ID, Username: i.User.Username}
	}
	return inv
}

func applicationCommand(def command.Definition) *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        def.Name,
		Description: def.Description,
		Options: []*discordgo.ApplicationCommandOption{{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        def.Option.Name,
			Description: def.Option.Description,
			Required:    def.Option.Required,
		}},
	}
}

func interactionResponse(ack command.Ack) *discordgo.InteractionResponse {
	data := &discordgo.InteractionResponseData{}
	if ack.Ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	if ack.Deferred || ack.Reply == nil {
		return &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
			Data: data,
		}
	}
	data.Content = ack.Reply.Content
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	}
}

func webhookParams(reply command.Reply) *discordgo.WebhookParams {
	p := &discordgo.WebhookParams{Content: reply.Content}
	if reply.Ephemeral {
		p.Flags = discordgo.MessageFlagsEphemeral
	}
	return p
}
