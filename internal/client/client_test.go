package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/config"
)

func newTestClient(t *testing.T, baseURL string, mutate ...func(*config.TargetConfig)) *Client {
	t.Helper()
	cfg := config.TargetConfig{BaseURL: baseURL, Timeout: 5 * time.Second, UserAgent: "test-agent"}
	for _, m := range mutate {
		m(&cfg)
	}
	c, err := NewClient(cfg, nil)
	require.NoError(t, err)
	return c
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(config.TargetConfig{}, nil)
	assert.ErrorIs(t, err, ErrNoBaseURL)

	_, err = NewClient(config.TargetConfig{BaseURL: "not a url"}, nil)
	assert.Error(t, err)

	c, err := NewClient(config.TargetConfig{BaseURL: "http://localhost:8080/"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", c.BaseURL())
}

func TestClient_DoQueryParams(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/web/index.php/api/v2/pim/employees", r.URL.Path)
		assert.Equal(t, "42", r.URL.Query().Get("employeeId"))
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		assert.Empty(t, r.Header.Get("Content-Type"))
		w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	resp, err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/web/index.php/api/v2/pim/employees", QueryParams: map[string]string{"employeeId": "42"}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"data":[]}`, string(resp.Body))
}

func TestClient_DoForm(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "Admin", r.PostForm.Get("username"))
		assert.Equal(t, "tok", r.PostForm.Get("_token"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	resp, err := c.Do(context.Background(), Request{Method: http.MethodPost, Path: "/auth/validate", Form: url.Values{"username": {"Admin"}, "_token": {"tok"}}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestClient_DoJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "K6", body["firstName"])
		v, ok := body["empPicture"]
		assert.True(t, ok)
		assert.Nil(t, v)
		w.Write([]byte(`{"data":{"empNumber":7}}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	resp, err := c.Do(context.Background(), Request{Method: http.MethodPost, Path: "/api", Body: map[string]any{"firstName": "K6", "empPicture": nil}})
	require.NoError(t, err)

	var out struct {
		Data struct {
			EmpNumber int `json:"empNumber"`
		} `json:"data"`
	}
	require.NoError(t, resp.JSON(&out))
	assert.Equal(t, 7, out.Data.EmpNumber)
}

func TestClient_Redirects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/validate":
			http.SetCookie(w, &http.Cookie{Name: "orangehrm", Value: "sess-1", Path: "/"})
			http.Redirect(w, r, "/dashboard", http.StatusFound)
		case "/dashboard":
			ck, err := r.Cookie("orangehrm")
			if assert.NoError(t, err) {
				assert.Equal(t, "sess-1", ck.Value)
			}
			w.Write([]byte("dashboard"))
		}
	}))
	defer server.Close()

	t.Run("followed", func(t *testing.T) {
		c := newTestClient(t, server.URL)
		resp, err := c.Do(context.Background(), Request{Method: http.MethodPost, Path: "/auth/validate", Form: url.Values{}})
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, server.URL+"/dashboard", resp.URL)

		v, ok := c.Cookie("/", "orangehrm")
		assert.True(t, ok)
		assert.Equal(t, "sess-1", v)
	})

	t.Run("not followed", func(t *testing.T) {
		c := newTestClient(t, server.URL, func(cfg *config.TargetConfig) {
			f := false
			cfg.FollowRedirects = &f
		})
		resp, err := c.Do(context.Background(), Request{Method: http.MethodPost, Path: "/auth/validate", Form: url.Values{}})
		require.NoError(t, err)
		assert.Equal(t, http.StatusFound, resp.StatusCode)

		v, ok := resp.Cookie("orangehrm")
		assert.True(t, ok)
		assert.Equal(t, "sess-1", v)
	})
}

func TestClient_SetCookie(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ck, err := r.Cookie("orangehrm"); assert.NoError(t, err) {
			w.Write([]byte(ck.Value))
		}
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	c.SetCookie("orangehrm", "abc")
	resp, err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/web/index.php/pim"})
	require.NoError(t, err)
	assert.Equal(t, "abc", string(resp.Body))
}

func TestClient_RetryResendsBody(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "v", body["k"])
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	rc := DefaultRetryConfig()
	rc.RetryDelay = 10 * time.Millisecond
	c, err := NewClient(config.TargetConfig{BaseURL: server.URL}, &rc)
	require.NoError(t, err)

	var observed []int
	var mu sync.Mutex
	c.SetObserver(func(o Observation) {
		mu.Lock()
		defer mu.Unlock()
		observed = append(observed, o.StatusCode)
	})

	resp, err := c.Do(context.Background(), Request{Method: http.MethodPost, Path: "/x", Body: map[string]string{"k": "v"}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), attempts.Load())
	assert.Equal(t, []int{503, 503, 200}, observed)
}

func TestClient_NoRetryByDefault(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	resp, err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestClient_ObserverSeesTransportErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	baseURL := server.URL
	server.Close()

	c := newTestClient(t, baseURL)
	var got Observation
	c.SetObserver(func(o Observation) { got = o })

	_, err := c.Do(context.Background(), Request{Name: "login", Method: http.MethodPost, Path: "/auth/validate"})
	require.Error(t, err)
	assert.Equal(t, "login", got.Name)
	assert.Equal(t, 0, got.StatusCode)
	assert.Error(t, got.Err)
}

func TestClient_DefaultName(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	var got Observation
	c.SetObserver(func(o Observation) { got = o })
	_, err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/web/index.php/auth/login"})
	require.NoError(t, err)
	assert.Equal(t, "GET /web/index.php/auth/login", got.Name)
}

func TestRetryFromConfig(t *testing.T) {
	assert.Equal(t, 0, RetryFromConfig(config.RetryConfig{}).MaxRetries)

	rc := RetryFromConfig(config.RetryConfig{MaxRetries: 2, RetryDelay: time.Second})
	assert.Equal(t, 2, rc.MaxRetries)
	assert.Equal(t, time.Second, rc.RetryDelay)
	assert.NotNil(t, rc.ShouldRetry)
}

type countingLimiter struct {
	calls atomic.Int32
	err   error
}

func (l *countingLimiter) Acquire(context.Context) error {
	l.calls.Add(1)
	return l.err
}

func TestClient_Limiter(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	l := &countingLimiter{}
	c.SetLimiter(l)

	_, err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), l.calls.Load())

	l.err = context.Canceled
	_, err = c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), hits.Load())
}
