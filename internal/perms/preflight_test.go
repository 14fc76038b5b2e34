package perms

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"bigbrother/internal/transport"
)

type fakeSource struct {
	channel, guild transport.PermissionBits
	err            error
	channelCalls   int
}

func (f *fakeSource) ChannelPermissions(ctx context.Context, guildID, channelID string) (transport.PermissionBits, error) {
	f.channelCalls++
	return f.channel, f.err
}

func (f *fakeSource) GuildPermissions(ctx context.Context, guildID string) (transport.PermissionBits, error) {
	return f.guild, f.err
}

func TestPreflightCheck(t *testing.T) {
	all := BitViewChannel | BitSendMessages | BitAttachFiles
	tests := []struct {
		name    string
		channel transport.PermissionBits
		want    []Capability
	}{
		{"all granted", all, nil},
		{"missing attach", BitViewChannel | BitSendMessages, []Capability{AttachFiles}},
		{"missing everything", 0, []Capability{View, SendMessages, AttachFiles}},
		{"administrator", BitAdministrator, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{channel: tt.channel}
			res, err := Preflight{Source: src}.Check(context.Background(), "g", "c", Required)
			if err != nil {
				t.Fatalf("Check: %v", err)
			}
			if res.OK != (len(tt.want) == 0) {
				t.Fatalf("OK = %v, want %v", res.OK, len(tt.want) == 0)
			}
			if !reflect.DeepEqual(res.Missing, tt.want) {
				t.Fatalf("Missing = %v, want %v", res.Missing, tt.want)
			}
			if src.channelCalls != 1 {
				t.Fatalf("channel permissions fetched %d times, want 1", src.channelCalls)
			}
		})
	}
}

func TestPreflightPropagatesSourceError(t *testing.T) {
	src := &fakeSource{err: transport.ErrTransport}
	if _, err := (Preflight{Source: src}).Check(context.Background(), "g", "c", Required); !errors.Is(err, transport.ErrTransport) {
		t.Fatalf("err = %v, want ErrTransport", err)
	}
}

func TestDiagnoseSplitsRequiredAndOptional(t *testing.T) {
	src := &fakeSource{
		channel: BitViewChannel | BitSendMessages | BitAttachFiles,
		guild:   BitManageChannels,
	}
	req, opt, err := Preflight{Source: src}.Diagnose(context.Background(), "g", "c")
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if !req.OK {
		t.Fatalf("required Missing = %v", req.Missing)
	}
	if want := []Capability{ManageGuild}; !reflect.DeepEqual(opt.Missing, want) {
		t.Fatalf("optional Missing = %v, want %v", opt.Missing, want)
	}
}

func TestTableHelpers(t *testing.T) {
	if got := Labels([]Capability{AttachFiles, "bogus"}); !reflect.DeepEqual(got, []string{"Attach Files", "bogus"}) {
		t.Fatalf("Labels = %v", got)
	}
	if got := AffectedEvents(ManageChannels); !reflect.DeepEqual(got, []string{"invite*"}) {
		t.Fatalf("AffectedEvents(ManageChannels) = %v", got)
	}
	if got := AffectedEvents(ManageGuild); !reflect.DeepEqual(got, []string{"autoModeration*"}) {
		t.Fatalf("AffectedEvents(ManageGuild) = %v", got)
	}
	if got := AffectedEvents(View); got != nil {
		t.Fatalf("AffectedEvents(View) = %v, want nil", got)
	}
}
