package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/iliyamo/bean-counter/internal/config"
	"github.com/iliyamo/bean-counter/internal/handler"
	"github.com/iliyamo/bean-counter/internal/logging"
	"github.com/iliyamo/bean-counter/internal/metrics"
	"github.com/iliyamo/bean-counter/internal/middleware"
	"github.com/iliyamo/bean-counter/internal/queue"
	"github.com/iliyamo/bean-counter/internal/rbac"
	"github.com/iliyamo/bean-counter/internal/realtime"
	"github.com/iliyamo/bean-counter/internal/repository"
	"github.com/iliyamo/bean-counter/internal/router"
	"github.com/iliyamo/bean-counter/internal/service"
	"github.com/iliyamo/bean-counter/internal/session"
	"github.com/iliyamo/bean-counter/internal/utils"
)

func serveCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before serving")
	return cmd
}

func serve(ctx context.Context, migrate bool) error {
	cfg, db, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()
	log := logging.With("server")

	if migrate {
		if err := runMigrations(ctx, db); err != nil {
			return err
		}
	}

	metrics.Init()
	rdb := config.NewRedisClient(cfg.Redis)
	if rdb != nil {
		defer rdb.Close()
	}

	codec, err := utils.NewTokenCodec(utils.CodecConfig{
		AccessSecret:  cfg.AccessSecret,
		RefreshSecret: cfg.RefreshSecret,
		Issuer:        cfg.Issuer,
		Audience:      cfg.Audience,
		AccessTTL:     time.Duration(cfg.AccessTTLMin) * time.Minute,
		RefreshTTL:    time.Duration(cfg.RefreshTTLDays) * 24 * time.Hour,
	})
	if err != nil {
		return err
	}
	hasher := utils.BcryptHasher{Cost: cfg.BcryptCost}

	users := repository.NewUserRepo(db)
	roles := repository.NewRoleRepo(db)
	resolver := rbac.NewResolver(roles)
	scope, _ := session.ParseLogoutScope(cfg.LogoutScope)
	mgr := session.NewManager(users, repository.NewSessionRepo(db, hasher), resolver, codec, hasher, session.Options{
		ReloadPermissionsOnRefresh: cfg.RefreshReloadsPermissions,
		LogoutScope:                scope,
		Cookies:                    session.CookiePolicy{Secure: cfg.CookieSecure},
	})

	var mail queue.Publisher = queue.LogPublisher{}
	if cfg.RabbitURL != "" {
		mail = queue.NewAMQPPublisher(cfg.RabbitURL, cfg.MailQueue)
	}
	var activity realtime.Emitter = realtime.NopEmitter{}
	act := &handler.ActivityHandler{}
	if rdb != nil {
		activity = realtime.NewRedisEmitter(rdb, cfg.ActivityChannel)
		act.Subscribe = func(ctx context.Context) <-chan realtime.ActivityEvent {
			return realtime.Subscribe(ctx, rdb, cfg.ActivityChannel)
		}
	}

	accessSvc := &service.AccessService{
		Users: users, Invites: repository.NewInviteRepo(db), Roles: roles, Hasher: hasher,
		Mail: mail, Activity: activity, AppURL: cfg.AppURL,
		InviteTTL: time.Duration(cfg.InviteTTLHours) * time.Hour,
	}
	roleSvc := &service.RoleService{Roles: roles, Permissions: repository.NewPermissionRepo(db), Activity: activity}
	passwordSvc := &service.PasswordService{
		Users: users, Resets: repository.NewPasswordResetRepo(db), Hasher: hasher,
		Mail: mail, AppURL: cfg.AppURL, TTL: time.Duration(cfg.ResetTTLMin) * time.Minute,
	}
	catalogSvc := &service.CatalogService{
		Categories: repository.NewCategoryRepo(db), Items: repository.NewInventoryRepo(db), Activity: activity,
	}

	e := newEcho(codec)
	router.RegisterRoutes(e, db)
	router.RegisterAuth(e, handler.NewAuthHandler(mgr, accessSvc, passwordSvc), cfg.RateLimit, rdb)
	router.RegisterDashboard(e,
		handler.NewDashboardHandler(users, accessSvc, roleSvc, catalogSvc), act,
		session.NewGate(codec, resolver), cfg.Cache, rdb)

	return run(ctx, e, ":"+cfg.Port, log, rdb)
}

func newEcho(codec *utils.TokenCodec) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.ErrorHandler
	e.Use(
		echomw.Recover(),
		echomw.RequestID(),
		middleware.RequestLogger(),
		metrics.Middleware(),
		middleware.Gatekeeper(session.NewEdge(codec)),
	)
	return e
}

func run(ctx context.Context, e *echo.Echo, addr string, log zerolog.Logger, rdb *redis.Client) error {
	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Bool("redis", rdb != nil).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
