// Package app assembles the services from a loaded configuration. The HTTP
// server and the CLI build the same graph through it.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"prefect-attendance/internal/attendance"
	"prefect-attendance/internal/backup"
	"prefect-attendance/internal/platform/config"
	"prefect-attendance/internal/platform/kv"
	"prefect-attendance/internal/qrpass"
	"prefect-attendance/internal/remotesync"
	"prefect-attendance/internal/report"
)

const (
	AppName = "prefect-attendance"
	Version = "2.0.0"
)

type App struct {
	Config *config.Config
	Log    *zap.Logger

	Store      *attendance.Store
	Attendance *attendance.Service
	Backup     *backup.Service
	Sync       *remotesync.Adapter
	QR         *qrpass.Service
	Report     *report.Service

	closers []io.Closer
}

// New opens local storage and, when configured, the remote store. A remote
// that cannot be reached at startup is logged and opened again on the next
// sync call; local operation never depends on it.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	lateAfter, err := cfg.LateAfter()
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Log: log}

	storage, err := a.openStorage(ctx)
	if err != nil {
		return nil, err
	}

	a.Store = attendance.NewStore(storage, attendance.Options{
		Location:   loc,
		DateLayout: cfg.Attendance.DateLayout,
		Logger:     log.Named("store"),
	})
	policy := attendance.Policy{Location: loc, LateAfter: lateAfter}
	a.Attendance = attendance.NewService(a.Store, policy, cfg.Attendance.RetentionDays, log.Named("attendance"))

	info := backup.SystemInfo{App: AppName, Version: Version, Timezone: loc.String()}
	a.Backup = backup.NewService(a.Store, backup.Config{
		Dir:        cfg.Backup.Dir,
		Keep:       cfg.Backup.Keep,
		Passphrase: cfg.Backup.Passphrase,
		Info:       info,
	}, log.Named("backup"))

	remote := a.openRemote(ctx)
	a.Sync = remotesync.NewAdapter(remote, cfg.Remote.Driver, a.Store, info, log.Named("sync"))
	a.closers = append(a.closers, a.Sync)

	a.QR = qrpass.NewService(qrpass.NewIssuer(cfg.QR.Secret), a.Store, policy, log.Named("qr"))
	a.Report = report.NewService(a.Store, policy, log.Named("report"))
	return a, nil
}

func (a *App) openStorage(ctx context.Context) (kv.Storage, error) {
	switch a.Config.Storage.Driver {
	case "redis":
		r := kv.NewRedisStorage(a.Config.Storage.Redis)
		if err := r.Ping(ctx); err != nil {
			r.Close()
			return nil, fmt.Errorf("redis %s: %w", a.Config.Storage.Redis.Addr, err)
		}
		a.closers = append(a.closers, r)
		a.Log.Info("local storage ready", zap.String("driver", "redis"), zap.String("addr", a.Config.Storage.Redis.Addr))
		return r, nil
	default:
		f, err := kv.NewFileStorage(a.Config.Storage.Dir)
		if err != nil {
			return nil, err
		}
		a.Log.Info("local storage ready", zap.String("driver", "file"), zap.String("dir", a.Config.Storage.Dir))
		return f, nil
	}
}

func (a *App) openRemote(ctx context.Context) remotesync.Remote {
	rc := a.Config.Remote
	switch rc.Driver {
	case "":
		a.Log.Info("remote sync disabled")
		return nil
	case "rest":
		return remotesync.NewRESTRemote(rc.URL, rc.APIKey, a.Log.Named("rest"))
	default:
		r := remotesync.NewReconnecting(remotesync.SQLDialer(rc.Driver, rc.DSN))
		if err := r.Ping(ctx); err != nil {
			a.Log.Warn("remote store unavailable, retrying on next sync", zap.String("driver", rc.Driver), zap.Error(err))
		}
		return r
	}
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
