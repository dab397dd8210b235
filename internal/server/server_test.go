package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenbank/onboarding/internal/config"
	"github.com/lumenbank/onboarding/internal/routes"
)

func TestServerServesPing(t *testing.T) {
	srv, err := New(routes.Deps{Cfg: config.Config{
		AppName:       "test",
		AppEnv:        "development",
		Port:          "0",
		JWTSecret:     "a",
		RefreshSecret: "b",
		Mail:          config.MailConfig{Driver: config.MailDriverLog},
	}})
	require.NoError(t, err)
	require.NotNil(t, srv.Services().Signup)

	resp, err := srv.App().Test(httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}
