package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	goredis "github.com/redis/go-redis/v9"

	"github.com/lulajax/streamer-hub/internal/auth"
	"github.com/lulajax/streamer-hub/internal/config"
	"github.com/lulajax/streamer-hub/internal/domain"
	"github.com/lulajax/streamer-hub/internal/room"
	"github.com/lulajax/streamer-hub/internal/widget"
)

// Deps bundles everything the HTTP surface needs.
type Deps struct {
	RoomHub   *room.Hub
	WidgetHub *widget.Hub
	Presets   domain.PresetRepository
	Sessions  domain.SessionRepository
	Gifts     domain.GiftRepository
	Publisher domain.ChangePublisher
	Tokens    *auth.Service
	Pool      *pgxpool.Pool
	Redis     *goredis.Client
	Clock     clockwork.Clock
}

type Server struct {
	echo      *echo.Echo
	config    *config.Config
	roomHub   *room.Hub
	widgetHub *widget.Hub
	presets   domain.PresetRepository
	sessions  domain.SessionRepository
	gifts     domain.GiftRepository
	publisher domain.ChangePublisher
	tokens    *auth.Service
	pool      *pgxpool.Pool
	redis     *goredis.Client
	clock     clockwork.Clock
	limits    *ConnectionLimits
	upgrader  websocket.Upgrader
	startTime time.Time
}

// requestValidator adapts go-playground/validator to echo's Validator hook.
type requestValidator struct {
	validate *validator.Validate
}

func (v *requestValidator) Validate(i any) error {
	if err := v.validate.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func NewServer(cfg *config.Config, deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Validator = &requestValidator{validate: validator.New()}

	srv := &Server{
		echo:      e,
		config:    cfg,
		roomHub:   deps.RoomHub,
		widgetHub: deps.WidgetHub,
		presets:   deps.Presets,
		sessions:  deps.Sessions,
		gifts:     deps.Gifts,
		publisher: deps.Publisher,
		tokens:    deps.Tokens,
		pool:      deps.Pool,
		redis:     deps.Redis,
		clock:     deps.Clock,
		limits: NewConnectionLimits(int64(cfg.MaxConnections), cfg.MaxConnectionsPerIP,
			cfg.ConnectionRate, cfg.ConnectionBurst),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Widgets load inside OBS browser sources with arbitrary origins.
				return true
			},
		},
		startTime: deps.Clock.Now(),
	}

	srv.registerRoutes()
	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
