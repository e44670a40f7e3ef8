package middleware

import (
	"errors"
	"testing"

	"io"
	"net/http"
	"net/http/httptest"

	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/courier/internal/handlers/actorctx"
	"github.com/nkiryanov/courier/internal/models"
)

// Allow to use a function as token parser
type parseFunc func(access string) (models.Actor, error)

func (f parseFunc) Parse(access string) (models.Actor, error) {
	return f(access)
}

func get(t *testing.T, url string, header string) (int, string) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if header != "" {
		req.Header.Set("Authorization", header)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err, "should make request to test server")
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "should read response body")
	defer resp.Body.Close() // nolint:errcheck

	return resp.StatusCode, string(body)
}

func TestAuthMiddleware_Auth(t *testing.T) {
	// Simple handler that try to get actor from context
	// If ok write its ref to response
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Must always be true cause middleware has to set actor to request or write error to response
		actor, ok := actorctx.FromContext(r.Context())
		require.True(t, ok)

		w.WriteHeader(http.StatusOK)
		_, err := w.Write([]byte(actor.Ref + ":" + actor.Role))
		require.NoError(t, err, "should write actor to response")
	})

	parser := parseFunc(func(access string) (models.Actor, error) {
		if access != "good-token" {
			return models.Actor{}, errors.New("fuck off!")
		}
		return models.Actor{Ref: "driver-1", Role: models.RoleDriver}, nil
	})

	srv := httptest.NewServer(AuthMiddleware(parser)(handler))
	defer srv.Close()

	t.Run("auth ok", func(t *testing.T) {
		code, body := get(t, srv.URL+"/test", "Bearer good-token")

		require.Equalf(t, http.StatusOK, code, "should return status OK. Resp: %s", body)
		require.Equal(t, "driver-1:driver", body, "should return actor in response")
	})

	tests := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"not bearer", "Basic Zm9vOmJhcg=="},
		{"bad token", "Bearer bad-token"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			code, body := get(t, srv.URL+"/test", tc.header)

			require.Equalf(t, http.StatusUnauthorized, code, "should return status Unauthorized. Resp: %s", body)
			require.JSONEq(t,
				`{
					"error": "service_error",
					"message": "Unauthorized"
				}`,
				body,
			)
		})
	}
}

func TestAuthMiddleware_RequireRole(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	withActor := func(actor models.Actor) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			RequireRole(models.RoleOperator)(handler).ServeHTTP(w, r.WithContext(actorctx.New(r.Context(), actor)))
		})
	}

	t.Run("operator passes", func(t *testing.T) {
		srv := httptest.NewServer(withActor(models.Actor{Ref: "op", Role: models.RoleOperator}))
		defer srv.Close()

		code, _ := get(t, srv.URL, "")
		require.Equal(t, http.StatusNoContent, code)
	})

	t.Run("driver forbidden", func(t *testing.T) {
		srv := httptest.NewServer(withActor(models.Actor{Ref: "driver-1", Role: models.RoleDriver}))
		defer srv.Close()

		code, body := get(t, srv.URL, "")
		require.Equal(t, http.StatusForbidden, code)
		require.JSONEq(t, `{"error": "service_error", "message": "Forbidden"}`, body)
	})

	t.Run("no actor", func(t *testing.T) {
		srv := httptest.NewServer(RequireRole(models.RoleOperator)(handler))
		defer srv.Close()

		code, _ := get(t, srv.URL, "")
		require.Equal(t, http.StatusUnauthorized, code)
	})
}
