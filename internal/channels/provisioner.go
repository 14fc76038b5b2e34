package channels

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"bigbrother/internal/eventbus"
	"bigbrother/internal/transport"
	"bigbrother/pkg/logx"
)

// OnboardingMessage is posted once into a freshly created logging channel.
const OnboardingMessage = "Welcome to your new logs channel! I have saved the channel ID to the database for you so feel free to rename it if you want. " +
	"I have also locked the channel down so that only myself and admins can see it. If you want to change that, you can do so by editing the channel permissions. " +
	"If you want to stop logging, delete this channel and I will forget about it."

const createReason = "Logging bot needs a channel to log stuff"

// Provisioner creates the private logging channel of a tenant the first time
// it is asked, and returns the existing one afterwards.
//
// Callers must already have checked that the invoking member may manage channels.
type Provisioner struct {
	Resolver  *Resolver
	Directory transport.ChannelDirectory
	Sender    transport.Sender
	// Identity supplies the ids granted view access on the new channel.
	Identity func() transport.Identity
	Bus      eventbus.Bus
	Log      logx.Logger

	Name  string
	Topic string

	mu    sync.RWMutex
	group singleflight.Group
}

// SetNaming changes the name and topic used for channels created from now on.
func (p *Provisioner) SetNaming(name, topic string) {
	p.mu.Lock()
	p.Name, p.Topic = name, topic
	p.mu.Unlock()
}

// Ensure returns the tenant's logging channel, creating it when no mapping resolves.
// created reports whether this call (or a concurrent one it joined) created it.
func (p *Provisioner) Ensure(ctx context.Context, guild transport.Guild) (ch transport.Channel, created bool, err error) {
	type result struct {
		ch      transport.Channel
		created bool
	}
	v, err, _ := p.group.Do(guild.ID, func() (any, error) {
		ch, ok, err := p.Resolver.Resolve(ctx, guild.ID)
		if err != nil {
			return nil, err
		}
		if ok {
			return result{ch: ch}, nil
		}
		ch, err = p.create(ctx, guild)
		if err != nil {
			return nil, err
		}
		return result{ch: ch, created: true}, nil
	})
	if err != nil {
		return transport.Channel{}, false, err
	}
	r := v.(result)
	return r.ch, r.created, nil
}

// Adopt maps an existing channel as the tenant's logging channel.
func (p *Provisioner) Adopt(ctx context.Context, guildID string, ch transport.Channel) error {
	if err := p.Resolver.Repo.Set(ctx, guildID, ch.ID); err != nil {
		return err
	}
	p.Resolver.Remember(guildID, ch)
	return nil
}

func (p *Provisioner) create(ctx context.Context, guild transport.Guild) (transport.Channel, error) {
	p.mu.RLock()
	name, topic := p.Name, p.Topic
	p.mu.RUnlock()
	spec := transport.ChannelSpec{
		Name:      name,
		Topic:     topic,
		Reason:    createReason,
		ViewerIDs: p.viewers(),
	}
	ch, err := p.Directory.CreatePrivateChannel(ctx, guild.ID, spec)
	if err != nil {
		return transport.Channel{}, fmt.Errorf("channels: create logging channel: %w", err)
	}
	if err := p.Adopt(ctx, guild.ID, ch); err != nil {
		return transport.Channel{}, err
	}

	log := p.Log.With(logx.String("guild_id", guild.ID), logx.String("channel_id", ch.ID))
	log.Info("logging channel created", logx.String("guild_name", guild.Name))
	if p.Bus != nil {
		p.Bus.Publish(eventbus.Event{Type: eventbus.TypeChannelCreated, Data: eventbus.Channel{GuildID: guild.ID, ChannelID: ch.ID}})
	}

	if _, err := p.Sender.Send(ctx, ch.ID, transport.OutboundMessage{Text: OnboardingMessage}); err != nil {
		log.Warn("onboarding message failed", logx.Err(err))
	}
	return ch, nil
}

func (p *Provisioner) viewers() []string {
	if p.Identity == nil {
		return nil
	}
	id := p.Identity()
	var out []string
	for _, s := range []string{id.UserID, id.ApplicationID} {
		if s == "" || (len(out) > 0 && out[0] == s) {
			continue
		}
		out = append(out, s)
	}
	return out
}
