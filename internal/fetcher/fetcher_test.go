package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_SendsQuery(t *testing.T) {
	var gotQuery url.Values
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte(`{"items":[]}`))
	}))
	defer srv.Close()

	f := New(5 * time.Second)
	resp, err := f.Get(context.Background(), srv.URL+"/search", url.Values{"intitle": {"ValueError"}, "pagesize": {"3"}})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"items":[]}`, string(resp.Body))
	assert.Equal(t, "ValueError", gotQuery.Get("intitle"))
	assert.Equal(t, "3", gotQuery.Get("pagesize"))
	assert.Equal(t, userAgent, gotUA)
}

func TestGet_NonOKIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error_id":400,"error_name":"bad_parameter"}`))
	}))
	defer srv.Close()

	resp, err := New(5*time.Second).Get(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(resp.Body), "bad_parameter")
}

func TestGet_RejectsScheme(t *testing.T) {
	_, err := New(time.Second).Get(context.Background(), "ftp://example.com", nil)
	assert.ErrorContains(t, err, "unsupported scheme")
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = New(time.Second).Get(context.Background(), "http://bad host/", nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestGet_BodyLimit(t *testing.T) {
	var size int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", size)))
	}))
	defer srv.Close()
	f := New(5 * time.Second)

	size = maxBodyBytes
	resp, err := f.Get(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	assert.Len(t, resp.Body, maxBodyBytes)

	size = maxBodyBytes + 1
	resp, err = f.Get(context.Background(), srv.URL, nil)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, ErrBodyTooLarge)
}

func TestNewWithClient_TLS(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items":[]}`))
	}))
	defer srv.Close()

	resp, err := NewWithClient(srv.Client()).Get(context.Background(), srv.URL+"/search", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGet_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	_, err := New(50*time.Millisecond).Get(context.Background(), srv.URL, nil)
	assert.Error(t, err)
}
