package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testResponse(id, text string) Response {
	return Response{
		ID:     id,
		Status: "completed",
		Output: []OutputItem{{
			Type:    "message",
			Content: []ContentPart{{Type: "output_text", Text: text}},
		}},
		Usage: Usage{InputTokens: 7, OutputTokens: 4, TotalTokens: 11},
	}
}

func TestSendBlocking(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "/v1/responses", r.URL.Path)
		assert.Equal(t, "test-model", req.Model)
		assert.Equal(t, "hello", req.Input)
		assert.Equal(t, "prev-1", req.PreviousResponseID)
		assert.False(t, req.Stream)

		json.NewEncoder(w).Encode(testResponse("r2", "hi there")) //nolint:errcheck
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-model")
	res, err := client.Send(context.Background(), "hello", "prev-1", nil)
	require.NoError(t, err)

	assert.Equal(t, "r2", res.ID)
	assert.Equal(t, "hi there", res.OutputText())
	assert.Equal(t, int64(11), res.Usage.TotalTokens)
}

func TestSendBlockingErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-model")
	_, err := client.Send(context.Background(), "hello", "", nil)

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, http.StatusServiceUnavailable, terr.StatusCode)
	assert.Contains(t, terr.Body, "model not loaded")
}

func TestSendBlockingEmptyBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-model")
	_, err := client.Send(context.Background(), "hello", "", nil)
	assert.ErrorIs(t, err, ErrNoContent)
}

func TestSendStreaming(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		flusher := w.(http.Flusher)
		for _, fragment := range []string{"Hel", "lo", " world"} {
			fmt.Fprintf(w, "event: response.output_text.delta\ndata: {\"delta\":%q}\n\n", fragment)
			flusher.Flush()
		}

		terminal, _ := json.Marshal(completedPayload{Response: &Response{ID: "r1", Status: "completed"}})
		fmt.Fprintf(w, "event: response.completed\ndata: %s\n\n", terminal)
	}))
	defer server.Close()

	var fragments []string
	client := NewClient(server.URL, "test-model")
	res, err := client.Send(context.Background(), "hello", "", func(fragment string) {
		fragments = append(fragments, fragment)
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Hel", "lo", " world"}, fragments)
	assert.Equal(t, "r1", res.ID)
}

func TestSendStreamingErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-model")
	_, err := client.Send(context.Background(), "hello", "", func(string) {})

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, http.StatusBadRequest, terr.StatusCode)
}

func TestSendStreamingTruncatedStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "event: response.output_text.delta\ndata: {\"delta\":\"partial\"}\n\n")
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-model")
	_, err := client.Send(context.Background(), "hello", "", func(string) {})

	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
}

func TestSendStreamingAbandoned(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "event: response.output_text.delta\ndata: {\"delta\":\"first\"}\n\n")
		flusher.Flush()
		<-release // never sends a terminal block while the client waits
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())

	client := NewClient(server.URL, "test-model")
	errs := make(chan error, 1)
	go func() {
		_, err := client.Send(ctx, "hello", "", func(string) {})
		errs <- err
	}()

	cancel()

	select {
	case err := <-errs:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Send did not return after context cancellation")
	}
}
