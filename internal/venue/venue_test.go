package venue

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPVenue_HarvestRescales(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/api/v1/harvest":
			assert.Equal(t, http.MethodPost, r.Method)
			_, _ = w.Write([]byte(`{"amount": 12345}`))
		case "/api/v1/holdings":
			assert.Equal(t, http.MethodGet, r.Method)
			_, _ = w.Write([]byte(`{"amount": 500000000}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	v := NewHTTPVenue("saber", srv.URL, "secret", "", 8, 6)
	assert.Equal(t, "saber", v.Name())

	got, err := v.Harvest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(123), got)

	got, err = v.Holdings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(5_000_000), got)
}

func TestHTTPVenue_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "venue paused", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	v := NewHTTPVenue("port", srv.URL, "", "", 6, 6)
	_, err := v.Harvest(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
	assert.Contains(t, err.Error(), "venue paused")
}

func TestHTTPVenue_BadBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"amount": -1}`))
	}))
	defer srv.Close()

	_, err := NewHTTPVenue("quarry", srv.URL, "", "", 6, 6).Harvest(context.Background())
	assert.ErrorContains(t, err, "decode")
}

func TestStaticVenue(t *testing.T) {
	v := &StaticVenue{VenueName: "static", Yield: 10}
	for i := 0; i < 3; i++ {
		got, err := v.Harvest(context.Background())
		require.NoError(t, err)
		assert.Equal(t, uint64(10), got)
	}
	held, err := v.Holdings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(30), held)

	v.SetErr(errors.New("down"))
	_, err = v.Harvest(context.Background())
	assert.Error(t, err)
	_, err = v.Holdings(context.Background())
	assert.Error(t, err)
}

func TestStaticVenue_ConcurrentReconfigure(t *testing.T) {
	v := &StaticVenue{VenueName: "static", Yield: 1}
	ctx := context.Background()

	var wg sync.WaitGroup
	var ok atomic.Uint64
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if got, err := v.Harvest(ctx); err == nil {
					ok.Add(got)
				}
			}
		}()
	}
	for i := 0; i < 50; i++ {
		if i%2 == 0 {
			v.SetErr(errors.New("paused"))
		} else {
			v.SetErr(nil)
		}
	}
	wg.Wait()

	v.SetErr(nil)
	held, err := v.Holdings(ctx)
	require.NoError(t, err)
	assert.Equal(t, ok.Load(), held)
}
