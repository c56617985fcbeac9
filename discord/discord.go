// Package discord wraps the Discord session behind the two delivery
// capabilities the pipeline uses: direct messages and channel posts.
package discord

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

// Client sends clip notifications over Discord.
type Client struct {
	session *discordgo.Session
}

// New opens a Discord gateway session with the bot token.
func New(token string) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("discord bot token empty")
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsDirectMessages
	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("open discord session: %w", err)
	}
	slog.Info("discord session opened", slog.String("component", "discord"))
	return &Client{session: session}, nil
}

// Close shuts the gateway session down.
func (c *Client) Close() error {
	return c.session.Close()
}

// SendDirectMessage opens (or reuses) the DM channel with a user and sends
// the content there.
func (c *Client) SendDirectMessage(ctx context.Context, userID, content string) error {
	ch, err := c.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("open dm channel for %s: %w", userID, err)
	}
	if _, err := c.session.ChannelMessageSend(ch.ID, content, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send dm to %s: %w", userID, err)
	}
	return nil
}

// PostToChannel sends the content to a guild channel.
func (c *Client) PostToChannel(ctx context.Context, channelID, content string) error {
	if _, err := c.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("post to channel %s: %w", channelID, err)
	}
	return nil
}
