package httpserver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/darthbatman/TypeSense/internal/domain"
	"github.com/darthbatman/TypeSense/internal/platform/config"
)

// --- Mock implementations ---

type mockAppService struct {
	registerAccountFn    func(ctx context.Context, email, password, externalID string) (bool, error)
	validateAccountFn    func(ctx context.Context, email, password string) (bool, error)
	changeConversationFn func(ctx context.Context, req domain.ChangeConversationRequest) (domain.ConversationState, error)
	getConversationFn    func(ctx context.Context, email, peerID string) (domain.ConversationState, error)
}

func (m *mockAppService) RegisterAccount(ctx context.Context, email, password, externalID string) (bool, error) {
	if m.registerAccountFn != nil {
		return m.registerAccountFn(ctx, email, password, externalID)
	}
	return false, errors.New("not implemented")
}

func (m *mockAppService) ValidateAccount(ctx context.Context, email, password string) (bool, error) {
	if m.validateAccountFn != nil {
		return m.validateAccountFn(ctx, email, password)
	}
	return false, errors.New("not implemented")
}

func (m *mockAppService) ChangeConversation(ctx context.Context, req domain.ChangeConversationRequest) (domain.ConversationState, error) {
	if m.changeConversationFn != nil {
		return m.changeConversationFn(ctx, req)
	}
	return domain.ConversationState{}, errors.New("not implemented")
}

func (m *mockAppService) GetConversation(ctx context.Context, email, peerID string) (domain.ConversationState, error) {
	if m.getConversationFn != nil {
		return m.getConversationFn(ctx, email, peerID)
	}
	return domain.ConversationState{}, errors.New("not implemented")
}

// --- Test helpers ---

func testConfig() *config.Config {
	return &config.Config{
		Port:               "0",
		RateLimitPerSecond: 1000,
		RateLimitBurst:     1000,
	}
}

func newTestServer(t *testing.T, app domain.AppService, opts ...Option) *Server {
	t.Helper()
	return NewServer(testConfig(), app, opts...)
}

// serve runs a request through the full middleware stack and router.
func serve(srv *Server, method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

// callHandler wraps a handler with error middleware, matching production behavior
func callHandler(handler echo.HandlerFunc, c echo.Context) error {
	return ErrorHandlingMiddleware()(handler)(c)
}

func newContext(srv *Server, req *http.Request) (echo.Context, *httptest.ResponseRecorder) {
	rec := httptest.NewRecorder()
	return srv.echo.NewContext(req, rec), rec
}
