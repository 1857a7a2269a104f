package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/lockgate/internal/handlers/testutil"
)

type userBody struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	IsActive bool   `json:"is_active"`
}

func TestAdminDeactivatesUser(t *testing.T) {
	env := testutil.NewEnv(t)
	root := env.CreateUser("root", "Password123!", true)
	rootTokens := env.Login("root", "Password123!")
	alice := env.CreateUser("alice", "Password123!", false)
	aliceTokens := env.Login("alice", "Password123!")

	w := env.Request(http.MethodPatch, "/api/admin/users/"+root.ID, map[string]bool{"is_active": false}, aliceTokens.AccessToken)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = env.Request(http.MethodPatch, "/api/admin/users/"+alice.ID, map[string]bool{"is_active": false}, rootTokens.AccessToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body userBody
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &body)
	require.Equal(t, alice.ID, body.ID)
	require.False(t, body.IsActive)

	// refresh sessions die with the account
	w = env.Request(http.MethodPost, "/api/token/refresh", map[string]string{"refresh_token": aliceTokens.RefreshToken}, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.Request(http.MethodPost, "/api/token/2fa-challenge", map[string]string{
		"username": "alice",
		"password": "Password123!",
	}, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.Request(http.MethodPatch, "/api/admin/users/"+alice.ID, map[string]bool{"is_active": true}, rootTokens.AccessToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	env.Login("alice", "Password123!")
}

func TestAdminUpdateUserValidation(t *testing.T) {
	env := testutil.NewEnv(t)
	root := env.CreateUser("root", "Password123!", true)
	tokens := env.Login("root", "Password123!")

	w := env.Request(http.MethodPatch, "/api/admin/users/"+root.ID, map[string]any{}, tokens.AccessToken)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = env.Request(http.MethodPatch, "/api/admin/users/"+root.ID, map[string]bool{"is_active": false}, tokens.AccessToken)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = env.Request(http.MethodPatch, "/api/admin/users/00000000-0000-0000-0000-000000000000", map[string]bool{"is_active": false}, tokens.AccessToken)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = env.Request(http.MethodPatch, "/api/admin/users/"+root.ID, map[string]bool{"is_active": false}, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestVerifyRejectsAccountDisabledMidLogin(t *testing.T) {
	env := testutil.NewEnv(t)
	env.CreateUser("root", "Password123!", true)
	rootTokens := env.Login("root", "Password123!")
	bob := env.CreateUser("bob", "Password123!", false)

	challenge := env.Challenge("bob", "Password123!")

	w := env.Request(http.MethodPatch, "/api/admin/users/"+bob.ID, map[string]bool{"is_active": false}, rootTokens.AccessToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.Request(http.MethodPost, "/api/token/2fa-verify", map[string]string{
		"challenge": challenge.Challenge,
		"code":      env.Code("bob"),
	}, "")
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	require.Equal(t, "auth.challenge_invalid", testutil.DecodeResponse(t, w).Error.Code)
}
