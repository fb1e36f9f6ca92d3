package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoRoutes func(e *echo.Echo)

func (f echoRoutes) RegisterRoutes(e *echo.Echo) { f(e) }

type bindReq struct {
	Name  string `json:"name" validate:"required_without=Code"`
	Code  string `json:"code" validate:"omitempty,upper3"`
	Limit int    `json:"limit" default:"10" validate:"gte=1,lte=100"`
}

func init() {
	RegisterValidation("upper3", func(s string) bool {
		return len(s) == 3 && strings.ToUpper(s) == s
	})
}

func serve(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func TestReadAndValidateRequest(t *testing.T) {
	var got bindReq
	s := NewServer([]Handler{echoRoutes(func(e *echo.Echo) {
		e.POST("/bind", func(c echo.Context) error {
			got = bindReq{}
			if verr := ReadAndValidateRequest(c, &got); verr != nil {
				return BadRequestResponse(c, verr)
			}
			return SuccessResponse(c, got)
		})
	})}, WithMetricsPath(""))

	rec := serve(t, s, http.MethodPost, "/bind", `{"name":"x"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, got.Limit)

	rec = serve(t, s, http.MethodPost, "/bind", `{"code":"abc","limit":500}`)
	assert.Contains(t, rec.Body.String(), `"status":400`)
	assert.Contains(t, rec.Body.String(), "ERR_UPPER3")
	assert.Contains(t, rec.Body.String(), `"field":"limit"`)

	rec = serve(t, s, http.MethodPost, "/bind", `{}`)
	assert.Contains(t, rec.Body.String(), "name is required when code is empty")

	rec = serve(t, s, http.MethodPost, "/bind", `{not json`)
	assert.Contains(t, rec.Body.String(), "ERR_BIND")
}

func TestAppErrorResponse(t *testing.T) {
	s := NewServer([]Handler{echoRoutes(func(e *echo.Echo) {
		e.GET("/missing", func(c echo.Context) error {
			return AppErrorResponse(c, NotFoundError("no match").WithError(errors.New("x")))
		})
		e.GET("/boom", func(c echo.Context) error {
			return AppErrorResponse(c, errors.New("db down"))
		})
		e.GET("/panic", func(c echo.Context) error {
			panic("bad")
		})
		e.GET("/field", func(c echo.Context) error {
			return AppErrorResponse(c, FieldError("isin", "isin", "isin must be a valid ISIN").WithParam("value", "XX"))
		})
		e.GET("/doc", func(c echo.Context) error {
			return MarkdownResponse(c, "# report\n")
		})
	})})

	rec := serve(t, s, http.MethodGet, "/missing", "")
	assert.Contains(t, rec.Body.String(), `"status":404`)
	assert.Contains(t, rec.Body.String(), "ERR_NOT_FOUND")

	rec = serve(t, s, http.MethodGet, "/boom", "")
	assert.Contains(t, rec.Body.String(), `"status":500`)

	rec = serve(t, s, http.MethodGet, "/panic", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = serve(t, s, http.MethodGet, "/field", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":400`)
	assert.Contains(t, rec.Body.String(), `"code":"ERR_ISIN"`)
	assert.Contains(t, rec.Body.String(), `"field":"isin"`)
	assert.Contains(t, rec.Body.String(), `"value":"XX"`)

	rec = serve(t, s, http.MethodGet, "/doc", "")
	assert.Equal(t, "text/markdown; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "# report\n", rec.Body.String())

	rec = serve(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "finresolve_http_requests_total")
}

func TestClientStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "finresolve/1.0", r.Header.Get("User-Agent"))
		assert.Equal(t, "1", r.URL.Query().Get("page"))
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	var out map[string]any
	err := NewClient().SendAndParse(context.Background(), &RequestOptions{
		Method:      MethodGet,
		URL:         srv.URL,
		QueryParams: map[string][]string{"page": {"1"}},
	}, &out)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusGone, se.Code)
	assert.Equal(t, "gone", se.Body)
}

func TestClientPostsJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	var out struct {
		OK bool `json:"ok"`
	}
	err := NewClient().SendAndParse(context.Background(), &RequestOptions{
		Method: MethodPost,
		URL:    srv.URL,
		Body:   map[string]string{"q": "x"},
	}, &out)
	require.NoError(t, err)
	assert.True(t, out.OK)
}

func TestCORSPreflight(t *testing.T) {
	s := NewServer(nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/instruments/resolve", nil)
	req.Header.Set(echo.HeaderOrigin, "https://app.example")
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Contains(t, rec.Header().Get(echo.HeaderAccessControlAllowMethods), http.MethodPost)
	assert.Equal(t, "600", rec.Header().Get(echo.HeaderAccessControlMaxAge))
}
