package server

import (
	"log"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"

	"collabspace-backend/internal/auth"
	"collabspace-backend/internal/config"
	"collabspace-backend/internal/handler"
	"collabspace-backend/internal/model"
	"collabspace-backend/internal/presence"
)

// Server wraps the fiber app and its dependencies
type Server struct {
	app *fiber.App
	cfg *config.Config
}

// New builds the fiber app, mounts the REST routes and the realtime
// WebSocket endpoint, and returns the server ready to listen.
func New(cfg *config.Config, db *gorm.DB, jwtManager *auth.JWTManager,
	realtime *handler.RealtimeHandler, status *presence.StatusManager) *Server {

	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowOrigins,
		AllowHeaders:     cfg.CORS.AllowHeaders,
		AllowCredentials: cfg.CORS.AllowOrigins != "*",
	}))

	authHandler := handler.NewAuthHandler(db, jwtManager, cfg.Auth.SecureCookie)
	workspaceHandler := handler.NewWorkspaceHandler(db, status)
	boardHandler := handler.NewBoardHandler(db)
	chatHandler := handler.NewChatHandler(db)
	invitationHandler := handler.NewInvitationHandler(db)
	notificationHandler := handler.NewNotificationHandler(db)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	// Brute-force protection on the credential endpoints only
	authLimiter := limiter.New(limiter.Config{
		Max:        20,
		Expiration: time.Minute,
	})
	authGroup := api.Group("/auth")
	authGroup.Post("/register", authLimiter, authHandler.Register)
	authGroup.Post("/login", authLimiter, authHandler.Login)
	authGroup.Post("/refresh", authHandler.RefreshToken)
	authGroup.Post("/logout", authHandler.Logout)
	authGroup.Get("/me", auth.AuthMiddleware(jwtManager), authHandler.GetMe)

	protected := api.Group("", auth.AuthMiddleware(jwtManager))

	protected.Post("/workspaces", workspaceHandler.Create)
	protected.Get("/workspaces", workspaceHandler.List)
	protected.Get("/workspaces/:id", workspaceHandler.Get)
	protected.Get("/workspaces/:id/members", workspaceHandler.Members)
	protected.Delete("/workspaces/:id/members/me", workspaceHandler.Leave)
	protected.Get("/workspaces/:workspaceId/boards", boardHandler.ListByWorkspace)
	protected.Get("/workspaces/:workspaceId/messages", chatHandler.History)

	protected.Post("/boards", boardHandler.Create)
	protected.Get("/boards/:id", boardHandler.Get)
	protected.Patch("/boards/:id", boardHandler.Rename)
	protected.Delete("/boards/:id", boardHandler.Delete)

	protected.Post("/invitations", invitationHandler.Invite)
	protected.Get("/invitations", invitationHandler.ListPending)
	protected.Post("/invitations/:id/accept", invitationHandler.Accept)
	protected.Post("/invitations/:id/decline", invitationHandler.Decline)

	protected.Get("/notifications", notificationHandler.List)
	protected.Patch("/notifications/:id/read", notificationHandler.MarkRead)
	protected.Patch("/notifications/read-all", notificationHandler.MarkAllRead)

	app.Use("/ws", wsUpgradeMiddleware(jwtManager, db))
	app.Get("/ws", websocket.New(realtime.HandleWebSocket, websocket.Config{
		ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: cfg.WebSocket.WriteBufferSize,
	}))

	return &Server{app: app, cfg: cfg}
}

// wsUpgradeMiddleware authenticates the upgrade request. The token
// comes from the "token" query parameter or the access_token cookie.
// The display name is loaded once here and stays fixed for the life of
// the connection.
func wsUpgradeMiddleware(jwtManager *auth.JWTManager, db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		token := c.Query("token")
		if token == "" {
			token = c.Cookies("access_token")
		}
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing token"})
		}

		claims, err := jwtManager.ValidateAccessToken(token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
		}

		var user model.User
		if err := db.First(&user, claims.UserID).Error; err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "user not found"})
		}

		c.Locals("userId", claims.UserID)
		c.Locals("userName", user.Name)
		return c.Next()
	}
}

// Listen starts serving on the configured port
func (s *Server) Listen() error {
	log.Printf("[server] listening on %s", s.cfg.Server.Port)
	return s.app.Listen(s.cfg.Server.Port)
}

// Shutdown gracefully drains connections
func (s *Server) Shutdown() error {
	return s.app.ShutdownWithTimeout(10 * time.Second)
}
