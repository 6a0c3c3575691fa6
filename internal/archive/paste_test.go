package archive_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/leighmacdonald/watchdog/internal/archive"
	"github.com/stretchr/testify/require"
)

func TestPaste(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		require.Equal(t, "/documents", request.URL.Path)

		body, errBody := io.ReadAll(request.Body)
		require.NoError(t, errBody)

		if string(body) == "empty" {
			_, _ = writer.Write([]byte(`{}`))

			return
		}

		_, _ = writer.Write([]byte(`{"key":"abcdef"}`))
	}))
	defer server.Close()

	paste := archive.NewPaste(server.URL+"/", time.Second)

	url, errArchive := paste.Archive(context.Background(), "long text")
	require.NoError(t, errArchive)
	require.Equal(t, server.URL+"/abcdef", url)

	_, errEmpty := paste.Archive(context.Background(), "empty")
	require.ErrorIs(t, errEmpty, archive.ErrEmptyKey)
}
