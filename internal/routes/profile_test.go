package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenbank/onboarding/internal/auth"
	"github.com/lumenbank/onboarding/internal/customer"
	"github.com/lumenbank/onboarding/internal/ledger"
	"github.com/lumenbank/onboarding/internal/provisioning"
)

type profileMap map[string]customer.Profile

func (m profileMap) Get(_ context.Context, id string) (customer.Profile, error) {
	p, ok := m[id]
	if !ok {
		return customer.Profile{}, provisioning.ErrNotFound
	}
	return p, nil
}

func TestProfileFormatsBalance(t *testing.T) {
	l := ledger.NewInMemory()
	ledger.SeedBalance(l, ledger.AccountCode("400000000001"), 12345)
	profiles := profileMap{"known": {IdentityID: "known", AccountNumber: "400000000001", Role: customer.RoleCustomer}}

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(auth.LocalIdentityID, c.Get("X-Test-Identity"))
		return c.Next()
	})
	RegisterProfileRoutes(app, profiles, l)

	cases := []struct {
		identity string
		status   int
		balance  string
	}{
		{"known", http.StatusOK, "123.45"},
		{"stranger", http.StatusNotFound, ""},
		{"", http.StatusUnauthorized, ""},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("X-Test-Identity", tc.identity)
		resp, err := app.Test(req)
		require.NoError(t, err)
		body := map[string]any{}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()

		assert.Equal(t, tc.status, resp.StatusCode, tc.identity)
		if tc.balance != "" {
			assert.Equal(t, tc.balance, body["balance"])
		}
	}
}
