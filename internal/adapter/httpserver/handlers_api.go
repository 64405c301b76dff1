package httpserver

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/darthbatman/TypeSense/internal/domain"
	apperrors "github.com/darthbatman/TypeSense/internal/platform/errors"
)

const apiPrefix = "/TypeSense/api"

type createUserRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
	FbID     string `json:"fb_id" validate:"required"`
}

type validateUserRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// messagePayload uses pointers so a present-but-empty text is accepted while
// a missing key is rejected.
type messagePayload struct {
	Author  *string `json:"author" validate:"required"`
	Message *string `json:"message" validate:"required"`
}

type changeConversationRequest struct {
	Email    string           `json:"email" validate:"required"`
	FbID     string           `json:"fb_id" validate:"required"`
	Messages []messagePayload `json:"messages" validate:"required,dive"`
}

type conversationQuery struct {
	Email string `query:"email" validate:"required"`
	FbID  string `query:"fb_id" validate:"required"`
}

type impactRecordResponse struct {
	ContentID      string  `json:"content_id"`
	SentimentDelta float64 `json:"sentiment_delta"`
	Author         string  `json:"author"`
}

type conversationResponse struct {
	Messages []impactRecordResponse `json:"messages"`
}

func (s *Server) registerAPIRoutes() {
	api := s.echo.Group(apiPrefix, newRateLimiter(s.config.RateLimitPerSecond, s.config.RateLimitBurst))
	api.POST("/create_user", s.handleCreateUser)
	api.POST("/validate_user", s.handleValidateUser)
	api.POST("/change_conversation", s.handleChangeConversation)
	api.GET("/conversation", s.handleGetConversation)
}

func (s *Server) handleCreateUser(c echo.Context) error {
	var req createUserRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	registered, err := s.app.RegisterAccount(c.Request().Context(), req.Email, req.Password, req.FbID)
	if err != nil {
		return err
	}

	if err := c.JSON(http.StatusOK, map[string]bool{"registered": registered}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleValidateUser(c echo.Context) error {
	var req validateUserRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	loggedIn, err := s.app.ValidateAccount(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}

	if err := c.JSON(http.StatusOK, map[string]bool{"logged_in": loggedIn}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleChangeConversation(c echo.Context) error {
	var req changeConversationRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	messages := make([]domain.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, domain.Message{Author: *m.Author, Text: *m.Message})
	}

	state, err := s.app.ChangeConversation(c.Request().Context(), domain.ChangeConversationRequest{
		Email:    req.Email,
		PeerID:   req.FbID,
		Messages: messages,
	})
	if err != nil {
		return err
	}

	return writeConversation(c, state)
}

func (s *Server) handleGetConversation(c echo.Context) error {
	var q conversationQuery
	if err := bindAndValidate(c, &q); err != nil {
		return err
	}

	state, err := s.app.GetConversation(c.Request().Context(), q.Email, q.FbID)
	if err != nil {
		return err
	}

	return writeConversation(c, state)
}

func bindAndValidate(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return apperrors.ValidationError("malformed request body")
	}
	return c.Validate(dst)
}

func writeConversation(c echo.Context, state domain.ConversationState) error {
	resp := conversationResponse{Messages: make([]impactRecordResponse, 0, len(state.Records))}
	for _, r := range state.Records {
		resp.Messages = append(resp.Messages, impactRecordResponse{
			ContentID:      string(r.ContentID),
			SentimentDelta: r.SentimentDelta,
			Author:         r.Author,
		})
	}

	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
