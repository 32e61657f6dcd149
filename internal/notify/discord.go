// Package notify is a best-effort out-of-band delivery bridge: the gateway's
// membership and role handlers call Notify to DM the affected user on
// Discord, whether or not that user has an open socket, and family deletion
// raises an operator alert. Adapted from the teacher's Discord session bootstrap; the
// presence-mirroring handlers it used for the old stalking dashboard are
// gone, replaced by a single DM-by-external-ID path.
package notify

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"

	"familytether/internal/logging"
)

// DiscordBridge implements gateway.Notifier. A nil *DiscordBridge (or one
// built with an empty token) is a safe no-op, matching the teacher's
// "disabled when DISCORD_TOKEN unset" posture.
type DiscordBridge struct {
	session *discordgo.Session
	guildID string

	operatorLimiter *rate.Limiter
}

// operatorAlertsPerMinute bounds how often family-wide events (family
// deletions) update the operator-facing bot status, so a noisy family
// doesn't flood it.
const operatorAlertsPerMinute = 5

// Launch opens a Discord session when token is non-empty; otherwise it
// returns a nil bridge and a nil error, leaving notifications disabled.
func Launch(token, guildID string) (*DiscordBridge, error) {
	if token == "" {
		logging.Log.Warn("notify: discord bridge disabled, DISCORD_TOKEN not set")
		return nil, nil
	}

	sess, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("notify: create session: %w", err)
	}
	sess.Identify.Intents = discordgo.IntentsGuilds

	sess.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		logging.Log.WithField("bot", r.User.Username).Info("notify: discord bridge ready")
	})

	if err := sess.Open(); err != nil {
		return nil, fmt.Errorf("notify: open session: %w", err)
	}

	return &DiscordBridge{
		session:         sess,
		guildID:         guildID,
		operatorLimiter: rate.NewLimiter(rate.Limit(operatorAlertsPerMinute)/60, operatorAlertsPerMinute),
	}, nil
}

// Notify opens (or reuses) a DM channel with userID and sends message. It
// never returns an error to the caller: failures are logged and swallowed,
// matching the rest of the system's log-and-swallow posture for best-effort
// delivery paths (spec §7).
func (d *DiscordBridge) Notify(ctx context.Context, userID, message string) {
	if d == nil || d.session == nil {
		return
	}
	channel, err := d.session.UserChannelCreate(userID)
	if err != nil {
		logging.Log.WithError(err).WithField("user_id", userID).Warn("notify: dm channel create failed")
		return
	}
	if _, err := d.session.ChannelMessageSend(channel.ID, message); err != nil {
		logging.Log.WithError(err).WithField("user_id", userID).Warn("notify: dm send failed")
	}
}

// AlertOperator surfaces a family-wide event (the gateway calls it on family
// deletion) as the bot's status text, mirroring the teacher's
// updateBotStatus/UpdateStatusComplex pattern rather than requiring a
// configured operator channel ID. Rate-limited so a single noisy family
// cannot spam the status every second.
func (d *DiscordBridge) AlertOperator(ctx context.Context, message string) {
	if d == nil || d.session == nil {
		return
	}
	if !d.operatorLimiter.Allow() {
		return
	}
	_ = d.session.UpdateStatusComplex(discordgo.UpdateStatusData{
		Status: "online",
		Activities: []*discordgo.Activity{{
			Name: message,
			Type: discordgo.ActivityTypeWatching,
		}},
	})
}

// Close shuts down the underlying session, if any.
func (d *DiscordBridge) Close() error {
	if d == nil || d.session == nil {
		return nil
	}
	return d.session.Close()
}
