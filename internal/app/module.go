package app

import (
	"context"
	"time"

	"github.com/ssahak93/autochat/internal/bus"
	"github.com/ssahak93/autochat/internal/cache"
	"github.com/ssahak93/autochat/internal/channel"
	"github.com/ssahak93/autochat/internal/chat"
	"github.com/ssahak93/autochat/internal/config"
	"github.com/ssahak93/autochat/internal/lock"
	"github.com/ssahak93/autochat/internal/logging"
	"github.com/ssahak93/autochat/internal/outbox"
	"github.com/ssahak93/autochat/internal/rest"
	"github.com/ssahak93/autochat/internal/session"
	"github.com/ssahak93/autochat/internal/status"
	"github.com/ssahak93/autochat/internal/store"
	intsync "github.com/ssahak93/autochat/internal/sync"
	"github.com/ssahak93/autochat/internal/tui"
	"github.com/ssahak93/autochat/internal/tui/model"
	"github.com/ssahak93/autochat/internal/typing"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	ProfileName string
	Config      *config.Config
}

// Module returns the fx module for the client, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("autochat",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideCounters,
			provideTypingSet,
			provideRESTClient,
			provideIdentity,
			provideChannel,
			provideSyncEngine,
			provideSender,
			provideViewModel,
			provideTUI,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.ProfileName), p.ProfileName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(session.Dir(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.DBPath(p.ProfileName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("archive initialized", zap.String("path", dbPath))
	return db, nil
}

func provideCounters() *cache.Counters {
	return cache.NewCounters()
}

func provideTypingSet() *typing.Set {
	return typing.NewSet()
}

func provideRESTClient(p Params, logger *zap.Logger) (*rest.Client, error) {
	return rest.New(p.Config.BaseURL, p.Config.Token, logger)
}

func provideIdentity(rc *rest.Client, logger *zap.Logger) (chat.User, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	me, err := rc.Me(ctx)
	if err != nil {
		return chat.User{}, err
	}
	logger.Info("authenticated", zap.String("user_id", me.ID))
	return me, nil
}

func provideChannel(p Params, b *bus.Bus, logger *zap.Logger) *channel.Channel {
	return channel.New(p.Config.SocketURL, p.Config.Token, b, logger)
}

func provideSyncEngine(db *store.DB, b *bus.Bus, counters *cache.Counters, typ *typing.Set, me chat.User, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(db, b, counters, typ, me.ID, logger)
}

func provideSender(db *store.DB, rc *rest.Client, engine *intsync.Engine, b *bus.Bus, me chat.User, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(db, rc, engine, b, me.ID, logger)
}

func provideViewModel(p Params, rc *rest.Client, engine *intsync.Engine, ch *channel.Channel, db *store.DB, counters *cache.Counters, typ *typing.Set, me chat.User, logger *zap.Logger) *model.ViewModel {
	opts := model.Options{
		PageSize:       p.Config.PageSize,
		ReadDebounce:   time.Duration(p.Config.ReadDebounceMs) * time.Millisecond,
		ReadCooldown:   time.Duration(p.Config.ReadCooldownMs) * time.Millisecond,
		NearBottomRows: p.Config.NearBottomRows,
	}
	return model.NewViewModel(rc, engine, ch, db, counters, typ, me.ID, opts, logger)
}

func provideTUI(p Params, vm *model.ViewModel, b *bus.Bus, logger *zap.Logger) *tui.App {
	return tui.NewApp(vm, b, p.ProfileName, logger)
}

func registerLifecycle(lc fx.Lifecycle, lk *lock.Lock, ch *channel.Channel, engine *intsync.Engine, sender *outbox.Sender, machine *status.Machine, db *store.DB, b *bus.Bus, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			engine.Start(context.Background())
			sender.Start(context.Background())

			_ = machine.Transition(status.Connecting)
			go trackChannelState(machine, b, logger)
			ch.Start(context.Background())

			return nil
		},
		OnStop: func(_ context.Context) error {
			sender.Stop()
			engine.Stop()
			ch.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing archive", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("client stopped")
			return nil
		},
	})
}

// trackChannelState mirrors realtime channel lifecycle into the status
// machine.
func trackChannelState(machine *status.Machine, b *bus.Bus, logger *zap.Logger) {
	events, unsub := b.Subscribe("channel.", 16)
	defer unsub()

	for evt := range events {
		var err error
		switch evt.Kind {
		case bus.KindChannelConnected:
			err = machine.Transition(status.Ready)
		case bus.KindChannelDisconnected:
			err = machine.Transition(status.Reconnecting)
		}
		if err != nil {
			logger.Debug("ignored status transition", zap.Error(err))
		}
	}
}
