package mockserver

import (
	"strings"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
)

// WebSocketPath is where clients connect.
const WebSocketPath = "/ws"

// RegisterRoutes registers the info route via Fiber. The WebSocket upgrade
// uses FastHTTPHandler since Fiber v3 does not expose *fasthttp.RequestCtx.
func (s *Server) RegisterRoutes(group fiber.Router) {
	group.Get("/ws/info", s.handleInfo)
}

func (s *Server) handleInfo(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"websocket": true,
		"endpoint":  WebSocketPath,
		"clients":   s.ClientCount(),
		"channels":  s.Channels(),
		"features": fiber.Map{
			"images":    s.cfg.ImagesSupported,
			"texting":   s.cfg.TextingSupported,
			"locations": s.cfg.LocationsSupported,
		},
	})
}

// FastHTTPHandler returns a raw fasthttp handler for WebSocket upgrades.
func (s *Server) FastHTTPHandler() fasthttp.RequestHandler {
	upgrader := websocket.FastHTTPUpgrader{
		ReadBufferSize:  s.cfg.ReadBufferSize,
		WriteBufferSize: s.cfg.WriteBufferSize,
	}

	return func(ctx *fasthttp.RequestCtx) {
		upgrade := string(ctx.Request.Header.Peek("Upgrade"))
		if !strings.EqualFold(upgrade, "websocket") {
			ctx.SetStatusCode(fasthttp.StatusUpgradeRequired)
			ctx.SetBodyString(`{"error":"upgrade_required","message":"WebSocket upgrade required"}`)
			return
		}
		if s.cfg.MaxConnections > 0 && s.ClientCount() >= s.cfg.MaxConnections {
			ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
			ctx.SetBodyString(`{"error":"too_many_connections"}`)
			return
		}

		clientID := uuid.New().String()
		err := upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
			client := NewClient(clientID, conn, s)
			s.Register(client)
			client.Serve()
		})
		if err != nil {
			s.logger.Error().Err(err).Msg("websocket upgrade failed")
		}
	}
}

// Handler serves WebSocketPath with FastHTTPHandler and everything else
// with a Fiber app carrying RegisterRoutes.
func (s *Server) Handler() fasthttp.RequestHandler {
	app := fiber.New()
	s.RegisterRoutes(app)
	httpHandler := app.Handler()
	wsHandler := s.FastHTTPHandler()

	return func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) == WebSocketPath {
			wsHandler(ctx)
			return
		}
		httpHandler(ctx)
	}
}
