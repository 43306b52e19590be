package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/iot-monitor/dashboard/internal/api"
	"github.com/iot-monitor/dashboard/internal/config"
	"github.com/iot-monitor/dashboard/internal/history"
	"github.com/iot-monitor/dashboard/internal/i18n"
	"github.com/iot-monitor/dashboard/internal/models"
	"github.com/iot-monitor/dashboard/internal/realtime"
	"github.com/iot-monitor/dashboard/internal/snapshot"
	"github.com/iot-monitor/dashboard/internal/token"
	"github.com/iot-monitor/dashboard/internal/upstream"
	"github.com/iot-monitor/dashboard/internal/watch"
	"github.com/iot-monitor/dashboard/internal/web"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Get the executable's directory for config resolution
	exePath, err := os.Executable()
	if err != nil {
		fmt.Printf("Failed to get executable path: %v\n", err)
		os.Exit(1)
	}
	exeDir := filepath.Dir(exePath)

	// Load XML configuration
	configPath := filepath.Join(exeDir, "IoTDashboard.exe.config")
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Ensure all data directories exist
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Printf("Failed to create directories: %v\n", err)
		os.Exit(1)
	}

	// Check if running in embedded mode (frontend built into binary)
	embeddedMode := web.HasEmbeddedFiles()

	// Token/preference store (the localStorage analogue)
	tokens, err := token.NewStore(cfg.Storage.PreferenceFile)
	if err != nil {
		fmt.Printf("Failed to open preference store: %v\n", err)
		os.Exit(1)
	}

	// Upstream REST clients share one transport
	client := upstream.NewClient(cfg.Upstream.BaseURL, time.Duration(cfg.Upstream.RequestTimeout)*time.Second, tokens)
	authClient := upstream.NewAuthClient(client)
	deviceClient := upstream.NewDeviceClient(client)
	categoryClient := upstream.NewCategoryClient(client)
	alertClient := upstream.NewAlertClient(client)

	// Optional local persistence: measurement history + offline snapshot
	var archive *history.Store
	var snapshots *snapshot.Store
	if cfg.Storage.EnablePersistence {
		archive, err = history.NewStore(cfg.Storage.HistoryDatabase, history.Options{
			Threads:     cfg.Advanced.DuckDBThreads,
			MemoryLimit: cfg.Advanced.DuckDBMemoryLimit,
		})
		if err != nil {
			fmt.Printf("Warning: history store disabled: %v\n", err)
			archive = nil
		}
		snapshots = snapshot.NewStore(cfg.Storage.SnapshotFile)
	}

	// Label bundles; missing locale files degrade to the builtin set
	labels, err := i18n.Load(cfg.Storage.LocaleDirectory)
	if err != nil {
		fmt.Printf("Warning: locale load failed, using builtin labels: %v\n", err)
		labels = i18n.Builtin()
	}

	// Watch session manager
	var recorder watch.Recorder
	if archive != nil {
		recorder = archive
	}
	watches := watch.NewManager(watch.Config{
		SocketURL: cfg.Upstream.SocketURL,
		Realtime: realtime.Config{
			MaxReconnectAttempts: cfg.Realtime.MaxReconnectAttempts,
			ReconnectDelay:       time.Duration(cfg.Realtime.ReconnectDelayMs) * time.Millisecond,
		},
		MaxChartPoints: cfg.Realtime.MaxChartPoints,
		RecentLimit:    cfg.Realtime.RecentMeasurements,
	}, recorder)

	// Start background idle-watch cleanup
	cleanupDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(cfg.CleanupInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				watches.CleanupIdleSessions(cfg.WatchTimeout())
			case <-cleanupDone:
				return
			}
		}
	}()

	// Initialize API handler
	h := api.NewHandler(authClient, deviceClient, categoryClient, alertClient, watches, archive, snapshots, tokens, labels)

	// Initialize WebSocket bridge
	wsHandler := api.NewWebSocketHandler(h)

	// Route guards
	guards := api.NewGuards(tokens, cfg.Security.EnforceRoleChecks)

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = api.ErrorHandler

	// Configure middleware
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			// Skip logging if disabled in config
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return path == "/api/health" || strings.HasPrefix(path, "/ws/")
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize:         1024 * 4,
		DisablePrintStack: false,
		LogLevel:          0,
	}))

	e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Timeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
		Skipper: func(c echo.Context) bool {
			// Long-lived streams must not be cut by the request timeout
			return strings.HasPrefix(c.Request().URL.Path, "/ws/")
		},
		ErrorMessage: "Request timeout - upstream took too long",
	}))

	// Compression middleware
	if cfg.Advanced.EnableCompression {
		e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
			Level: cfg.Advanced.CompressionLevel,
			Skipper: func(c echo.Context) bool {
				return strings.HasPrefix(c.Request().URL.Path, "/ws/")
			},
		}))
	}

	// Body limit middleware
	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	// CORS configuration
	if cfg.Server.EnableCORS {
		origins := strings.Split(cfg.Server.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		}))
	}

	// API Routes
	apiGroup := e.Group("/api")

	// Health check
	apiGroup.GET("/health", h.HandleHealth)

	// Auth area: login/register are blocked for authenticated clients
	apiGroup.POST("/auth/login", h.HandleLogin, guards.RedirectIfAuthenticated)
	apiGroup.POST("/auth/register", h.HandleRegister, guards.RedirectIfAuthenticated)
	apiGroup.POST("/auth/logout", h.HandleLogout)
	apiGroup.GET("/auth/session", h.HandleSession)
	apiGroup.POST("/auth/verify", h.HandleVerifyToken)

	// Language preference is reachable without authentication
	apiGroup.GET("/language", h.HandleGetLanguage)
	apiGroup.PUT("/language", h.HandleSetLanguage)

	// Protected area
	protected := apiGroup.Group("", guards.RequireAuth)
	protected.GET("/me", h.HandleCurrentUser)

	protected.GET("/dashboard", h.HandleDashboard)
	protected.GET("/dashboard/status-counts", h.HandleStatusCounts)

	protected.GET("/devices", h.HandleListDevices)
	protected.POST("/devices", h.HandleCreateDevice)
	protected.GET("/devices/:id", h.HandleGetDevice)
	protected.PUT("/devices/:id", h.HandleUpdateDevice)
	protected.PATCH("/devices/:id", h.HandlePatchDevice)
	protected.DELETE("/devices/:id", h.HandleDeleteDevice, guards.RequireRole(models.RoleAdmin))
	protected.GET("/devices/:id/chart", h.HandleDeviceChart)
	protected.GET("/devices/:id/metrics", h.HandleDeviceMetrics)

	// Thresholds are addressed by device public id, which shares the :id slot
	protected.GET("/devices/:id/thresholds", h.HandleListThresholds)
	protected.POST("/devices/:id/thresholds", h.HandleCreateThreshold)
	protected.PATCH("/devices/:id/thresholds/:thresholdId", h.HandleUpdateThreshold)
	protected.DELETE("/devices/:id/thresholds/:thresholdId", h.HandleDeleteThreshold)

	protected.GET("/categories", h.HandleListCategories)
	protected.POST("/categories", h.HandleCreateCategory)
	protected.GET("/categories/:id", h.HandleGetCategory)
	protected.PUT("/categories/:id", h.HandleUpdateCategory)
	protected.PATCH("/categories/:id", h.HandlePatchCategory)
	protected.DELETE("/categories/:id", h.HandleDeleteCategory, guards.RequireRole(models.RoleAdmin))

	protected.GET("/alerts", h.HandleListAlerts)

	protected.GET("/watch", h.HandleListWatches)
	protected.POST("/watch/:publicId", h.HandleStartWatch)
	protected.GET("/watch/:publicId", h.HandleGetWatch)
	protected.DELETE("/watch/:publicId", h.HandleStopWatch)

	// Browser-facing device stream
	e.GET("/ws/device/:publicId", wsHandler.HandleDeviceStream, guards.RequireAuth)

	// Register embedded frontend if available
	if embeddedMode {
		if err := web.RegisterStaticRoutes(e); err != nil {
			fmt.Printf("Warning: failed to register static routes: %v\n", err)
		} else {
			fmt.Println("Serving embedded frontend from binary")
		}
	}

	// Configure server with settings from XML config
	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	// Print startup banner
	mode := "Development"
	if embeddedMode {
		mode = "Standalone (Embedded)"
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           IoT Monitor Dashboard Server                    ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("║  Mode:       %-45s║\n", mode)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Upstream:  %-46s║\n", cfg.Upstream.BaseURL)
	fmt.Printf("║  Data Dir:  %-46s║\n", cfg.GetDataDir())
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	if embeddedMode {
		fmt.Printf("Open http://localhost:%d in your browser\n\n", cfg.Server.Port)
	}

	// Shut down cleanly on SIGINT/SIGTERM: no orphaned device sockets
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		fmt.Println("\nShutting down...")
		close(cleanupDone)
		watches.StopAll()
		if archive != nil {
			archive.Close()
		}
		s.Close()
	}()

	if err := e.StartServer(s); err != nil && err != http.ErrServerClosed {
		e.Logger.Fatal(err)
	}
}
