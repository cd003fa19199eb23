package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"chaos-stories/internal/domain"
	"chaos-stories/internal/game"
	"chaos-stories/internal/service"
	"chaos-stories/internal/transition"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

var errBadRequest = errors.New("bad request")

// EventStreamer attaches a websocket client to a session's event stream.
type EventStreamer interface {
	ServeSession(w http.ResponseWriter, r *http.Request, sessionID uuid.UUID) error
}

// SessionHandler обрабатывает HTTP запросы игровых сессий.
type SessionHandler struct {
	service service.SessionService
	events  EventStreamer
	metrics http.Handler
	logger  *zap.Logger
}

// NewSessionHandler создает новый SessionHandler. events и metrics могут быть nil.
func NewSessionHandler(s service.SessionService, events EventStreamer, metrics http.Handler, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		service: s,
		events:  events,
		metrics: metrics,
		logger:  logger.Named("SessionHandler"),
	}
}

// Configure installs the request validator and the JSON error handler on e.
func Configure(e *echo.Echo) {
	e.Validator = newRequestValidator()
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		var he *echo.HTTPError
		if errors.As(err, &he) {
			_ = c.JSON(he.Code, APIError{Message: fmt.Sprint(he.Message)})
			return
		}
		_ = c.JSON(http.StatusInternalServerError, APIError{Message: "Internal server error"})
	}
}

// RegisterRoutes регистрирует маршруты сервиса.
func (h *SessionHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.health)
	e.GET("/story", h.getStory)
	if h.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(h.metrics))
	}

	sessions := e.Group("/sessions")
	{
		sessions.POST("", h.createSession)
		sessions.GET("/:id", h.getSession)
		sessions.DELETE("/:id", h.deleteSession)
		sessions.POST("/:id/character-select", h.enterCharacterSelect)
		sessions.POST("/:id/character", h.selectCharacter)
		sessions.POST("/:id/start", h.startGame)
		sessions.POST("/:id/choices", h.choose)
		sessions.POST("/:id/outcome/complete", h.completeOutcome)
		sessions.POST("/:id/restart", h.restart)
		sessions.GET("/:id/events", h.streamEvents)
	}
}

func (h *SessionHandler) health(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{Status: "ok", Sessions: h.service.Count()})
}

func (h *SessionHandler) getStory(c echo.Context) error {
	return c.JSON(http.StatusOK, newStoryResponse(h.service.Story()))
}

func (h *SessionHandler) createSession(c echo.Context) error {
	view, err := h.service.Create(c.Request().Context())
	if err != nil {
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, view)
}

func (h *SessionHandler) getSession(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return handleServiceError(c, err)
	}
	view, err := h.service.Get(c.Request().Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *SessionHandler) deleteSession(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return handleServiceError(c, err)
	}
	if err := h.service.Delete(c.Request().Context(), id); err != nil {
		return handleServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *SessionHandler) enterCharacterSelect(c echo.Context) error {
	return h.command(c, h.service.EnterCharacterSelect)
}

func (h *SessionHandler) selectCharacter(c echo.Context) error {
	var req selectCharacterRequest
	if err := h.bind(c, &req); err != nil {
		return handleServiceError(c, err)
	}
	return h.command(c, func(ctx context.Context, id uuid.UUID) (service.View, error) {
		return h.service.SelectCharacter(ctx, id, domain.CharacterID(req.CharacterID))
	})
}

func (h *SessionHandler) startGame(c echo.Context) error {
	return h.command(c, h.service.StartGame)
}

func (h *SessionHandler) choose(c echo.Context) error {
	var req chooseRequest
	if err := h.bind(c, &req); err != nil {
		return handleServiceError(c, err)
	}
	return h.command(c, func(ctx context.Context, id uuid.UUID) (service.View, error) {
		return h.service.Choose(ctx, id, req.ChoiceID)
	})
}

func (h *SessionHandler) completeOutcome(c echo.Context) error {
	return h.command(c, h.service.CompleteOutcome)
}

func (h *SessionHandler) restart(c echo.Context) error {
	return h.command(c, h.service.Restart)
}

func (h *SessionHandler) streamEvents(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return handleServiceError(c, err)
	}
	if h.events == nil {
		return c.JSON(http.StatusNotFound, APIError{Message: "event stream is disabled"})
	}
	if _, err := h.service.Get(c.Request().Context(), id); err != nil {
		return handleServiceError(c, err)
	}
	// Upgrader сам пишет ответ при ошибке
	if err := h.events.ServeSession(c.Response(), c.Request(), id); err != nil {
		h.logger.Warn("Event stream not established", zap.String("session_id", id.String()), zap.Error(err))
	}
	return nil
}

// --- Вспомогательные функции --- //

func (h *SessionHandler) command(c echo.Context, fn func(ctx context.Context, id uuid.UUID) (service.View, error)) error {
	id, err := sessionID(c)
	if err != nil {
		return handleServiceError(c, err)
	}
	view, err := fn(c.Request().Context(), id)
	if err != nil {
		h.logger.Debug("Command failed", zap.String("path", c.Path()), zap.String("session_id", id.String()), zap.Error(err))
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *SessionHandler) bind(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return fmt.Errorf("%w: invalid request body", errBadRequest)
	}
	if err := c.Validate(req); err != nil {
		return fmt.Errorf("%w: %s", errBadRequest, err.Error())
	}
	return nil
}

func sessionID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid session id format", errBadRequest)
	}
	return id, nil
}

func handleServiceError(c echo.Context, err error) error {
	var statusCode int
	var apiErr APIError

	switch {
	case errors.Is(err, errBadRequest):
		statusCode = http.StatusBadRequest
		apiErr = APIError{Message: err.Error()}
	case errors.Is(err, service.ErrSessionNotFound) || errors.Is(err, service.ErrSessionClosed):
		statusCode = http.StatusNotFound
		apiErr = APIError{Message: "Session not found"}
	case errors.Is(err, service.ErrCharacterNotFound) || errors.Is(err, service.ErrChoiceNotFound):
		statusCode = http.StatusBadRequest
		apiErr = APIError{Message: err.Error()}
	case errors.Is(err, game.ErrInvalidTransition),
		errors.Is(err, game.ErrNoCharacter),
		errors.Is(err, game.ErrInputLocked),
		errors.Is(err, service.ErrInputLocked),
		errors.Is(err, service.ErrChoicesNotAccepted),
		errors.Is(err, transition.ErrTransitionInProgress):
		statusCode = http.StatusConflict
		apiErr = APIError{Message: err.Error()}
	case errors.Is(err, service.ErrTooManySessions):
		statusCode = http.StatusServiceUnavailable
		apiErr = APIError{Message: err.Error()}
	default:
		statusCode = http.StatusInternalServerError
		apiErr = APIError{Message: "Internal server error"}
	}
	return c.JSON(statusCode, apiErr)
}
