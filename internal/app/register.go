package app

import (
	"context"

	"bigbrother/internal/commands"
	"bigbrother/internal/config"
	"bigbrother/internal/transport"
	"bigbrother/internal/transport/discord"
	logx "bigbrother/pkg/logx"
)

// RegisterResult reports where commands were registered.
type RegisterResult struct {
	GuildID string
	Count   int
}

// RegisterCommands overwrites the slash commands. With a development guild
// configured they are registered there under the dev- prefix, otherwise
// globally.
func RegisterCommands(ctx context.Context, cfgPath string, log logx.Logger) (RegisterResult, error) {
	cfg, err := config.NewConfigManager(cfgPath).Load()
	if err != nil {
		return RegisterResult{}, err
	}
	ad, err := discord.New(discord.Config{
		Token:         cfg.Discord.Token,
		ApplicationID: cfg.Discord.ApplicationID,
	}, log)
	if err != nil {
		return RegisterResult{}, err
	}

	specs := commandSpecs()
	guildID := cfg.Discord.DevelopmentGuildID
	if guildID != "" {
		specs = commands.DevSpecs(specs)
	}
	n, err := ad.RegisterCommands(ctx, guildID, specs)
	if err != nil {
		return RegisterResult{}, err
	}
	return RegisterResult{GuildID: guildID, Count: n}, nil
}

func commandSpecs() []transport.CommandSpec {
	h := &commands.Handlers{}
	return commands.NewRouter(logx.Nop(), nil, false, h.Commands()...).Specs()
}
