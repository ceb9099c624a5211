package probe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusAPI_Online(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/3/mc.example.com:25565", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Write([]byte(`{
			"online": true,
			"ip": "203.0.113.7",
			"port": 25565,
			"hostname": "mc.example.com",
			"version": "1.20.4",
			"players": {"online": 3, "max": 20},
			"motd": {"clean": ["A Minecraft Server", "hosted on Azure"]}
		}`))
	}))
	defer srv.Close()

	p := NewStatusAPI(srv.URL, StaticAddress("mc.example.com:25565"), 5*time.Second)
	info, err := p.Info(context.Background())
	require.NoError(t, err)
	require.NotNil(t, info)

	assert.True(t, info.Online)
	assert.Equal(t, "mc.example.com", info.Host)
	assert.Equal(t, 25565, info.Port)
	assert.Equal(t, "1.20.4", info.Version)
	assert.Equal(t, Players{Online: 3, Max: 20}, info.Players)
	assert.Equal(t, "A Minecraft Server\nhosted on Azure", info.MOTD)
}

func TestStatusAPI_OfflineIsAbsent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"online": false, "ip": "203.0.113.7", "port": 25565}`))
	}))
	defer srv.Close()

	p := NewStatusAPI(srv.URL, StaticAddress("203.0.113.7"), 5*time.Second)
	info, err := p.Info(context.Background())
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestStatusAPI_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewStatusAPI(srv.URL, StaticAddress("203.0.113.7"), 5*time.Second)
	_, err := p.Info(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestStatusAPI_AddressError(t *testing.T) {
	resolveErr := errors.New("public IP not assigned")
	p := NewStatusAPI("http://127.0.0.1:1", func(context.Context) (string, error) {
		return "", resolveErr
	}, time.Second)

	_, err := p.Info(context.Background())
	require.ErrorIs(t, err, resolveErr)
}

func TestStatusAPI_EmptyAddress(t *testing.T) {
	p := NewStatusAPI("http://127.0.0.1:1", StaticAddress(""), time.Second)
	_, err := p.Info(context.Background())
	require.Error(t, err)
}

func TestStatusAPI_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	p := NewStatusAPI(srv.URL, StaticAddress("203.0.113.7"), 5*time.Second)
	_, err := p.Info(context.Background())
	require.Error(t, err)
}

func TestStatusAPI_EveryCallQueriesFresh(t *testing.T) {
	online := false
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if online {
			w.Write([]byte(`{"online": true, "hostname": "mc.example.com", "port": 25565}`))
			return
		}
		w.Write([]byte(`{"online": false}`))
	}))
	defer srv.Close()

	p := NewStatusAPI(srv.URL, StaticAddress("mc.example.com"), 5*time.Second)

	info, err := p.Info(context.Background())
	require.NoError(t, err)
	assert.Nil(t, info)

	online = true
	info, err = p.Info(context.Background())
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.True(t, info.Online)
	assert.Equal(t, 2, calls)
}
