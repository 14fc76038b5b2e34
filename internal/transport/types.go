package transport

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Error taxonomy shared by every adapter. Use errors.Is.
var (
	// ErrChannelNotFound means the channel is deleted, unknown, or not visible to the bot.
	ErrChannelNotFound = errors.New("channel not found")
	// ErrPermission means the platform refused the call for lack of permissions.
	ErrPermission = errors.New("permission denied")
	// ErrTransport covers network failures and unexpected platform errors.
	ErrTransport = errors.New("transport failure")
)

// SendError tags an adapter error with one of the sentinel kinds.
type SendError struct {
	Kind error
	Err  error
}

func (e *SendError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

func (e *SendError) Unwrap() []error { return []error{e.Kind, e.Err} }

// Guild is a tenant scope.
type Guild struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MemberCount int    `json:"memberCount,omitempty"`
}

type Channel struct {
	ID      string `json:"id"`
	GuildID string `json:"guildId"`
	Name    string `json:"name"`
}

// Mention renders the channel as a clickable reference.
func (c Channel) Mention() string { return "<#" + c.ID + ">" }

type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// OutboundMessage is either plain text or text plus one file.
type OutboundMessage struct {
	Text       string
	Attachment *Attachment
}

type MessageRef struct {
	ChannelID string
	MessageID string
}

// PermissionBits is a platform permission bitfield.
type PermissionBits int64

func (p PermissionBits) Has(bit PermissionBits) bool { return p&bit == bit }

// ChannelSpec describes a private text channel: hidden from everyone except ViewerIDs.
type ChannelSpec struct {
	Name      string
	Topic     string
	Reason    string
	ViewerIDs []string
}

// ChannelDirectory reads and creates channels of a guild.
type ChannelDirectory interface {
	// Channel materializes a channel of guildID. Returns ErrChannelNotFound when it no longer exists.
	Channel(ctx context.Context, guildID, channelID string) (Channel, error)
	// FindChannelByName returns the first text channel named name.
	FindChannelByName(ctx context.Context, guildID, name string) (Channel, bool, error)
	CreatePrivateChannel(ctx context.Context, guildID string, spec ChannelSpec) (Channel, error)
}

// Sender is the outbound messaging sink. Failures wrap ErrPermission,
// ErrChannelNotFound or ErrTransport.
type Sender interface {
	Send(ctx context.Context, channelID string, msg OutboundMessage) (MessageRef, error)
}

// PermissionSource reports the bot's effective permissions.
type PermissionSource interface {
	ChannelPermissions(ctx context.Context, guildID, channelID string) (PermissionBits, error)
	GuildPermissions(ctx context.Context, guildID string) (PermissionBits, error)
}

// Fetchable is a payload member that may be incomplete. When Partial reports
// true the member must be materialized with Fetch before its fields are read;
// Stub is what is known without fetching.
type Fetchable interface {
	Partial() bool
	Fetch(ctx context.Context) (any, error)
	Stub() any
}

// Identity is the bot's own identity on the platform.
type Identity struct {
	UserID        string
	ApplicationID string
}

// GatewayStats are cache-level counters of the live session.
type GatewayStats struct {
	Guilds   int
	Channels int
	Users    int
}

// Gateway is the live session seen by commands and the HTTP API.
type Gateway interface {
	Identity() Identity
	Stats() GatewayStats
	HeartbeatLatency() time.Duration
}

// Interaction is a slash-command invocation.
type Interaction struct {
	ID        string
	Command   string
	GuildID   string
	GuildName string
	ChannelID string
	UserID    string
	// MemberPermissions are the invoker's permissions in the guild.
	MemberPermissions PermissionBits
	// Options holds string, channel (id) and number options by name.
	Options   map[string]string
	CreatedAt time.Time
}

type Reply struct {
	Content   string
	Ephemeral bool
}

// CommandSpec is a slash command declaration used for registration.
type CommandSpec struct {
	Name        string
	Description string
	// DefaultMemberPermissions restricts visibility; 0 means everyone.
	DefaultMemberPermissions PermissionBits
	Options                  []CommandOption
}

type CommandOptionKind string

const (
	OptionString  CommandOptionKind = "string"
	OptionChannel CommandOptionKind = "channel"
)

type CommandOption struct {
	Kind        CommandOptionKind
	Name        string
	Description string
	Required    bool
}
