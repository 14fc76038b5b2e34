package app

import (
	"context"
	"strings"

	"bigbrother/internal/commands"
	"bigbrother/internal/config"
	logx "bigbrother/pkg/logx"
)

func (a *App) reloadLoop(c context.Context, sub chan *config.Config) {
	defer a.cfgm.Unsubscribe(sub)
	// Track last applied config to generate a safe diff summary.
	last := a.cfgm.Get()
	for {
		select {
		case <-c.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(c, last, next)
			last = next
		}
	}
}

// applyConfig hot-applies logging, relay and scheduler changes. Sections that
// need a restart are only reported.
func (a *App) applyConfig(c context.Context, prev, next *config.Config) {
	sum := config.SummarizeConfigChange(prev, next)
	if len(sum.Changed) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	changed := map[string]bool{}
	for _, s := range sum.Changed {
		changed[s] = true
	}
	if len(sum.RestartRequired) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.Strings("sections", sum.RestartRequired))
	}

	if changed["logging"] {
		if next.Logging.Telegram.Token != a.operatorToken {
			sender, err := operatorSender(next)
			if err != nil {
				a.log.Warn("operator sender rebuild failed; keeping previous", logx.Err(err))
			} else {
				a.logs.SetSender(sender)
				a.operatorToken = next.Logging.Telegram.Token
			}
		}
		a.logs.Apply(mapLogging(next))
	}

	if changed["relay"] {
		if rs, err := mapRelaySettings(next); err != nil {
			a.log.Warn("relay settings rejected; keeping previous", logx.Err(err))
		} else {
			a.pipeline.SetSettings(rs)
		}
		a.resolver.SetTTL(mapResolverTTL(next))
		a.provisioner.SetNaming(next.Relay.ChannelName, next.Relay.ChannelTopic)
		a.handlers.SetPolicy(commands.Policy{Provisioning: next.Relay.Provisioning, ChannelName: next.Relay.ChannelName})
		if prev.Relay.MaxInFlight != next.Relay.MaxInFlight {
			a.log.Warn("relay.max_in_flight changed; restart required for changes to take effect")
		}
	}

	if changed["scheduler"] {
		if err := a.sched.Apply(mapSchedulerConfig(next), a.jobs(next)...); err != nil {
			a.log.Warn("scheduler reconfigure failed", logx.Err(err))
		}
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sum.Changed, ","))}, sum.Attrs...)
	a.log.Info("config reloaded", fields...)
}
