package app

import (
	"context"
	"strings"
	"time"

	"todoreminder/internal/config"
	logx "todoreminder/pkg/logx"
)

// reloadLoop applies every published config to the running components.
func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: only the latest config matters.
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					drained = true
				}
			}
			a.applyConfig(ctx, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	ch := config.SummarizeConfigChange(oldCfg, newCfg)
	if ch.Empty() {
		a.log.Info("config reloaded (no changes)")
		return
	}

	if ch.Has("logging") {
		a.logs.Apply(mapLoggingConfig(newCfg))
	}
	if ch.Has("storage") {
		a.log.Warn("storage config changed; restart required for changes to take effect")
	}
	if ch.Has("scheduler") {
		a.sched.Apply(mapSchedulerConfig(newCfg))
	}
	if ch.Has("reminders") {
		if err := a.applyReminders(newCfg); err != nil {
			a.log.Warn("reminder schedule not applied; keeping previous", logx.Any("err", err))
		}
	}
	if ch.Has("notifier") {
		a.notif.Apply(mapNotifierConfig(newCfg))
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		// Restart so worker and queue sizes take effect.
		a.notif.Stop(stopCtx)
		cancel()
		if newCfg.Notifier.Enabled {
			a.notif.Start(ctx)
		}
	}
	if ch.Has("http") {
		a.http.Reconfigure(ctx, mapHTTPConfig(newCfg))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(ch.Sections, ","))}, ch.Fields...)
	a.log.Info("config reloaded", fields...)
}
