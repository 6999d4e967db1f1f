package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaginationFollowsNextAndStopsAtCap(t *testing.T) {
	var calls int32
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			assert.Equal(t, "/v23.0/act_1/insights", r.URL.Path)
			assert.Equal(t, "age,gender", r.URL.Query().Get("breakdowns"))
			assert.Equal(t, `{"since":"2024-03-01","until":"2024-03-30"}`, r.URL.Query().Get("time_range"))
		} else {
			assert.Empty(t, r.URL.Query().Get("breakdowns"))
			assert.Equal(t, fmt.Sprint(n-1), r.URL.Query().Get("after"))
		}
		fmt.Fprintf(w, `{"data":[{"age":"25-34","page":%d}],"paging":{"next":"%s/v23.0/act_1/insights?access_token=token&after=%d"}}`, n, srv.URL, n)
	}))
	defer srv.Close()

	env := newTestClient(t, srv)
	rows, err := env.client.GetDemographics(context.Background(), "act_1", "token", "2024-03-01", "2024-03-30")
	require.NoError(t, err)
	assert.Equal(t, int32(MaxDemographicsPages), atomic.LoadInt32(&calls))
	assert.Len(t, rows, MaxDemographicsPages)
}

func TestInsightsDailyQueryAndPages(t *testing.T) {
	var calls int32
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			q := r.URL.Query()
			assert.Equal(t, "ad", q.Get("level"))
			assert.Equal(t, "1", q.Get("time_increment"))
			assert.Equal(t, "500", q.Get("limit"))
			assert.Equal(t, "conversion", q.Get("action_report_time"))
			assert.Equal(t, "true", q.Get("use_unified_attribution_setting"))
			assert.Contains(t, q.Get("fields"), "ad_id")
			fmt.Fprintf(w, `{"data":[{"ad_id":"a1","date_start":"2024-03-01"}],"paging":{"next":"%s/v23.0/act_1/insights?after=x"}}`, srv.URL)
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"ad_id":"a2","date_start":"2024-03-01"}],"paging":{}}`))
	}))
	defer srv.Close()

	env := newTestClient(t, srv)
	rows, err := env.client.GetInsightsDaily(context.Background(), "act_1", "token", "2024-03-01", "2024-03-01", 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "a2", rows[1]["ad_id"])
}

func TestExchangeCodeForToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v23.0/oauth/access_token", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "app", q.Get("client_id"))
		switch {
		case q.Get("code") == "the-code":
			assert.Equal(t, "https://app.example/callback", q.Get("redirect_uri"))
			_, _ = w.Write([]byte(`{"access_token":"short","token_type":"bearer","expires_in":3600}`))
		case q.Get("grant_type") == "fb_exchange_token":
			assert.Equal(t, "short", q.Get("fb_exchange_token"))
			_, _ = w.Write([]byte(`{"access_token":"long","expires_in":5184000}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	env := newTestClient(t, srv)
	token, err := env.client.ExchangeCodeForToken(context.Background(), "the-code", "https://app.example/callback")
	require.NoError(t, err)
	assert.Equal(t, "long", token.AccessToken)
	assert.Equal(t, "bearer", token.TokenType)
	assert.Equal(t, int64(5184000), token.ExpiresIn)
	assert.False(t, token.Expiry.IsZero())
}

func TestDebugTokenAndUserInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v23.0/debug_token":
			assert.Equal(t, "app|secret", r.URL.Query().Get("access_token"))
			_, _ = w.Write([]byte(`{"data":{"app_id":"app","user_id":"u1","is_valid":true,"scopes":["ads_read"],"expires_at":1700000000}}`))
		case "/v23.0/me":
			assert.Equal(t, "id,name,email", r.URL.Query().Get("fields"))
			_, _ = w.Write([]byte(`{"id":"u1","name":"Ada","email":"ada@example.com"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	env := newTestClient(t, srv)
	info, err := env.client.DebugToken(context.Background(), "user-token")
	require.NoError(t, err)
	assert.True(t, info.IsValid)
	assert.Equal(t, []string{"ads_read"}, info.Scopes)

	me, err := env.client.GetUserInfo(context.Background(), "user-token")
	require.NoError(t, err)
	assert.Equal(t, "Ada", me.Name)
}

func TestDebugTokenWithoutData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	env := newTestClient(t, srv)
	_, err := env.client.DebugToken(context.Background(), "user-token")
	assert.ErrorIs(t, err, ErrInvalidResponse)
}
