package webui

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"romrando/engine"
	"romrando/store"
	"romrando/util"
	"romrando/webui/dist"
)

// DefaultMaxUpload bounds an uploaded ROM; the largest NDS carts are 512 MiB.
const DefaultMaxUpload = 512 << 20

type Config struct {
	// MaxUpload bounds request bodies carrying ROM images.
	MaxUpload int64
	// CORSOrigins enables CORS for the listed origins when non-empty.
	CORSOrigins []string
	// Metrics is served on /metrics when non-nil.
	Metrics http.Handler
}

// Server is the HTTP and websocket face of the store and randomizer controller.
type Server struct {
	cfg    Config
	store  *store.Store
	ctl    *engine.Controller
	logger *log.Logger
	router *gin.Engine
}

func NewServer(cfg Config, st *store.Store, ctl *engine.Controller, logger *log.Logger) *Server {
	if cfg.MaxUpload <= 0 {
		cfg.MaxUpload = DefaultMaxUpload
	}

	s := &Server{
		cfg:    cfg,
		store:  st,
		ctl:    ctl,
		logger: util.Named(logger, "webui"),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.MaxMultipartMemory = 32 << 20
	r.Use(
		gin.CustomRecovery(func(c *gin.Context, err any) {
			util.LogPanic(err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
		}),
		requestID(),
		accessLog(s.logger),
	)

	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:  s.cfg.CORSOrigins,
			AllowMethods:  []string{http.MethodGet, http.MethodPost},
			AllowHeaders:  []string{"Content-Type", requestIDHeader},
			ExposeHeaders: []string{"Content-Disposition", requestIDHeader},
			MaxAge:        12 * time.Hour,
		}))
	}

	static := gin.WrapH(MaxAge(http.FileServer(http.FS(dist.Content))))
	r.GET("/", static)
	r.GET("/static/*filepath", static)

	r.POST("/check_rom", s.handleCheckROM)
	r.POST("/upload_rom", s.handleUploadROM)
	r.POST("/get_presets", s.handleGetPresets)
	r.POST("/randomize", s.handleRandomize)
	r.GET("/download/:filename", s.handleDownload)

	r.GET("/ws/", gin.WrapF(s.handleWebsocket))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.cfg.Metrics))
	}

	return r
}

func (s *Server) Handler() http.Handler { return s.router }

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
