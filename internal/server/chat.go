package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// handleChat runs one turn through the agent. A missing session id starts a
// fresh session and its id comes back in the response.
func (s *Server) handleChat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if strings.TrimSpace(req.Message) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}
	if req.SessionID == "" {
		req.SessionID = uuid.New().String()
	}

	reply, err := s.orch.HandleTurn(c.Request().Context(), req.SessionID, req.Message)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "turn failed")
	}

	return c.JSON(http.StatusOK, chatResponse{
		SessionID: reply.SessionID,
		Mode:      reply.Mode,
		Reply:     reply.Reply,
		Plan:      reply.Plan,
		Results:   reply.Results,
		FollowUps: reply.FollowUps,
	})
}

// handleListTurns returns a session's archived research turns, newest first.
func (s *Server) handleListTurns(c echo.Context) error {
	sessionID := c.Param("id")
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = n
	}
	turns, err := s.store.ListResearchTurns(c.Request().Context(), sessionID, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "list turns")
	}
	return c.JSON(http.StatusOK, turns)
}
