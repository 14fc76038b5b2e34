// Package perms maps bot capabilities to platform permission bits and checks
// them before delivery.
package perms

import "bigbrother/internal/transport"

type Capability string

const (
	View           Capability = "view"
	SendMessages   Capability = "send-message"
	AttachFiles    Capability = "attach-file"
	ManageGuild    Capability = "manage-tenant"
	ManageChannels Capability = "manage-channels"
)

// Scope says where a capability is evaluated.
type Scope int

const (
	ScopeChannel Scope = iota
	ScopeGuild
)

// Discord permission bits.
const (
	BitManageChannels transport.PermissionBits = 1 << 4
	BitManageGuild    transport.PermissionBits = 1 << 5
	BitAdministrator  transport.PermissionBits = 1 << 3
	BitViewChannel    transport.PermissionBits = 1 << 10
	BitSendMessages   transport.PermissionBits = 1 << 11
	BitAttachFiles    transport.PermissionBits = 1 << 15
)

// Info describes one capability for both checks and help output.
type Info struct {
	Capability Capability
	Bit        transport.PermissionBits
	Scope      Scope
	Label      string
	Rationale  string
	// EventPrefixes lists the event labels that need this capability (optional ones only).
	EventPrefixes []string
}

var table = []Info{
	{Capability: View, Bit: BitViewChannel, Scope: ScopeChannel, Label: "View Channel",
		Rationale: "needed to see the logs channel"},
	{Capability: SendMessages, Bit: BitSendMessages, Scope: ScopeChannel, Label: "Send Messages",
		Rationale: "needed to post event logs"},
	{Capability: AttachFiles, Bit: BitAttachFiles, Scope: ScopeChannel, Label: "Attach Files",
		Rationale: "needed to post events too long for one message"},
	{Capability: ManageGuild, Bit: BitManageGuild, Scope: ScopeGuild, Label: "Manage Server",
		Rationale: "needed to receive auto moderation events", EventPrefixes: []string{"autoModeration"}},
	{Capability: ManageChannels, Bit: BitManageChannels, Scope: ScopeGuild, Label: "Manage Channels",
		Rationale: "needed to receive invite events and to create the logs channel", EventPrefixes: []string{"invite"}},
}

// Required are the channel capabilities without which nothing is delivered.
var Required = []Capability{View, SendMessages, AttachFiles}

// Optional are guild capabilities some event categories depend on.
var Optional = []Capability{ManageGuild, ManageChannels}

// Lookup returns the table entry for c.
func Lookup(c Capability) (Info, bool) {
	for _, in := range table {
		if in.Capability == c {
			return in, true
		}
	}
	return Info{}, false
}

// Label is the human label of c, or c itself when unknown.
func Label(c Capability) string {
	if in, ok := Lookup(c); ok {
		return in.Label
	}
	return string(c)
}

// Labels maps capabilities to their human labels.
func Labels(cs []Capability) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = Label(c)
	}
	return out
}

// Names renders capabilities as machine names.
func Names(cs []Capability) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = string(c)
	}
	return out
}

// AffectedEvents returns the event label patterns ("invite*") that are not
// received without c. It is nil for capabilities no event category depends on.
func AffectedEvents(c Capability) []string {
	in, ok := Lookup(c)
	if !ok || len(in.EventPrefixes) == 0 {
		return nil
	}
	out := make([]string, len(in.EventPrefixes))
	for i, p := range in.EventPrefixes {
		out[i] = p + "*"
	}
	return out
}

// Granted reports whether bits include c. Administrator grants everything.
func Granted(bits transport.PermissionBits, c Capability) bool {
	if bits.Has(BitAdministrator) {
		return true
	}
	in, ok := Lookup(c)
	if !ok {
		return false
	}
	return bits.Has(in.Bit)
}
