package auth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/feedclip/feedclip/internal/models"
)

func apiRecipe(serverURL string) *models.LoginRecipe {
	return &models.LoginRecipe{
		SiteID:   "site-b",
		Strategy: models.LoginStrategyDeclarativeAPI,
		API: &models.APILoginSpec{
			Steps: []models.APIStep{
				{Name: "csrf", Method: "GET", URL: serverURL + "/csrf"},
				{
					Name:    "login",
					Method:  "POST",
					URL:     serverURL + "/api/login",
					Headers: map[string]string{"Content-Type": "application/json"},
					Body:    `{"username":"{{ username }}","password":"{{ password }}"}`,
				},
			},
			Extract: map[string]string{
				"api_token": "json:auth.token",
			},
		},
		RequiredCookies: []string{"sid", "api_token"},
	}
}

var testCredentials = map[string]string{
	"username": "reader@example.com",
	"password": "hunter2",
}

func TestAPILoginCapturesJarAndJSONCookies(t *testing.T) {
	var loginRequest map[string]string

	mux := http.NewServeMux()
	mux.HandleFunc("/csrf", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "csrf", Value: "token-1", Path: "/"})
		w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/api/login", func(w http.ResponseWriter, r *http.Request) {
		// The pre-login cookie must ride along on the login step.
		csrf, err := r.Cookie("csrf")
		require.NoError(t, err)
		assert.Equal(t, "token-1", csrf.Value)

		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &loginRequest))

		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "session-9", Path: "/"})
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"auth":{"token":"jwt-abc"}}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	strategy := NewAPIStrategy(arbor.NewLogger(), 0, "feedclip-test")
	cookies, err := strategy.Login(context.Background(), apiRecipe(server.URL), testCredentials)
	require.NoError(t, err)

	// Credential fields were substituted into the templated body.
	assert.Equal(t, "reader@example.com", loginRequest["username"])
	assert.Equal(t, "hunter2", loginRequest["password"])

	sid := models.FindCookie(cookies, "sid")
	require.NotNil(t, sid, "jar cookie captured")
	assert.Equal(t, "session-9", sid.Value)

	token := models.FindCookie(cookies, "api_token")
	require.NotNil(t, token, "json extraction rule captured")
	assert.Equal(t, "jwt-abc", token.Value)
}

func TestAPILoginNonSuccessStatusIsHardFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
	}))
	defer server.Close()

	recipe := &models.LoginRecipe{
		SiteID:   "site-b",
		Strategy: models.LoginStrategyDeclarativeAPI,
		API: &models.APILoginSpec{
			Steps: []models.APIStep{{Name: "login", Method: "POST", URL: server.URL + "/api/login"}},
		},
	}

	strategy := NewAPIStrategy(arbor.NewLogger(), 0, "")
	_, err := strategy.Login(context.Background(), recipe, testCredentials)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestAPILoginMissingExtractionPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"auth":{}}`))
	}))
	defer server.Close()

	recipe := apiRecipe(server.URL)
	recipe.API.Steps = recipe.API.Steps[1:] // login step only

	strategy := NewAPIStrategy(arbor.NewLogger(), 0, "")
	_, err := strategy.Login(context.Background(), recipe, testCredentials)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.token")
}

func TestAPILoginUnresolvedTemplateField(t *testing.T) {
	recipe := apiRecipe("http://unreachable.invalid")
	recipe.API.Steps = recipe.API.Steps[1:] // templated login step only
	strategy := NewAPIStrategy(arbor.NewLogger(), 0, "")

	_, err := strategy.Login(context.Background(), recipe, map[string]string{"username": "only"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password")
}

func TestAPILoginThroughDispatcherEnforcesRequiredCookies(t *testing.T) {
	// The server sets no cookies at all; the dispatcher post-condition
	// rejects the login even though every step returned 200.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"auth":{"token":"jwt-abc"}}`))
	}))
	defer server.Close()

	recipe := apiRecipe(server.URL)
	recipe.API.Steps = recipe.API.Steps[1:]

	dispatcher := NewDispatcher(arbor.NewLogger(), nil, NewAPIStrategy(arbor.NewLogger(), 0, ""))
	_, err := dispatcher.Login(context.Background(), recipe, testCredentials)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sid")
}
