package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/botrelay/internal/relay"
)

func TestCollyTransport_PassesThroughStatusHeadersAndBody(t *testing.T) {
	t.Parallel()

	received := make(chan http.Header, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- r.Header.Clone()
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"slow down"}`))
	}))
	defer srv.Close()

	transport := NewCollyTransport(CollyConfig{UserAgent: "relay-test", Timeout: time.Second})
	resp, err := transport.Get(context.Background(), Request{
		URL: srv.URL + "/bots",
		Headers: http.Header{
			"Authorization": {"raw-token"},
			"Content-Type":  {"application/json"},
		},
	})

	require.NoError(t, err)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, "2", resp.Header.Get("Retry-After"))
	require.JSONEq(t, `{"error":"slow down"}`, string(resp.Body))

	got := <-received
	require.Equal(t, "raw-token", got.Get("Authorization"))
	require.Equal(t, "application/json", got.Get("Content-Type"))
	require.Equal(t, "relay-test", got.Get("User-Agent"))
}

func TestCollyTransport_RevisitsSameURL(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	transport := NewCollyTransport(CollyConfig{})
	for i := 0; i < 3; i++ {
		resp, err := transport.Get(context.Background(), Request{URL: srv.URL + "/bots"})
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	require.EqualValues(t, 3, hits.Load())
}

func TestCollyTransport_ContextCanceled(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewCollyTransport(CollyConfig{Timeout: 5 * time.Second}).Get(ctx, Request{URL: srv.URL})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFetcherOverColly_RetriesAgainstLiveServer(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`[{"nickname":"Alpha"}]`))
	}))
	defer srv.Close()

	f := NewFetcher(NewCollyTransport(CollyConfig{}), FetcherConfig{MaxRetries: 3}, zap.NewNop())
	body, err := f.Fetch(context.Background(), srv.URL+"/bots", nil)

	require.NoError(t, err)
	require.JSONEq(t, `[{"nickname":"Alpha"}]`, string(body))
	require.EqualValues(t, 2, hits.Load())
}

func TestFetcherOverColly_ServerErrorNotRetried(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := NewFetcher(NewCollyTransport(CollyConfig{}), FetcherConfig{MaxRetries: 3}, zap.NewNop())
	_, err := f.Fetch(context.Background(), srv.URL+"/categories", nil)

	var relayErr *relay.Error
	require.ErrorAs(t, err, &relayErr)
	require.Equal(t, relay.KindUpstream, relayErr.Kind)
	require.Equal(t, http.StatusBadGateway, relayErr.UpstreamStatus)
	require.EqualValues(t, 1, hits.Load())
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	transport := NewCollyTransport(CollyConfig{})
	req := Request{URL: "https://example.com", Headers: http.Header{"Authorization": {"Bearer abc"}}}
	var result Response
	var fetchErr error

	hooks := &stubHooks{}
	transport.configureCollectorHooks(hooks, req, &result, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{"Authorization": {"stale"}}}
	hooks.onRequest(collyReq)
	require.Equal(t, []string{"Bearer abc"}, collyReq.Headers.Values("Authorization"))

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusCreated,
		Body:       []byte("body"),
		Headers:    &http.Header{"X-Resp": {"ok"}},
		Request:    &colly.Request{URL: mustParseURL(t, "https://example.com")},
	})
	require.Equal(t, http.StatusCreated, result.StatusCode)
	require.Equal(t, "body", string(result.Body))
	require.Equal(t, "ok", result.Header.Get("X-Resp"))

	hooks.onError(nil, errors.New("boom"))
	require.EqualError(t, fetchErr, "boom")
}

func TestCopyHeadersHandlesNil(t *testing.T) {
	t.Parallel()

	collyReq := &colly.Request{Headers: &http.Header{}}
	copyHeaders(nil, collyReq)
	require.Empty(t, *collyReq.Headers)
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
