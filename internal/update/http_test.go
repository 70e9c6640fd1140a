package update

import (
	"io"
	"net/http"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startListener(t *testing.T, onComplete func(Upload)) (*HTTPListener, string) {
	t.Helper()
	l := NewHTTPListener(HTTPConfig{
		Addr:       "127.0.0.1:0",
		StagingDir: t.TempDir(),
		OnComplete: onComplete,
	})
	require.NoError(t, l.Begin("node-1", "12345678"))
	t.Cleanup(func() { l.Close() })
	return l, "http://" + l.Addr().String()
}

func upload(t *testing.T, url, password, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url+"/update", strings.NewReader(body))
	require.NoError(t, err)
	req.SetBasicAuth("nodelink", password)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHTTPListener_StagesUploadAndCompletesInHandle(t *testing.T) {
	var completed []Upload
	l, url := startListener(t, func(u Upload) { completed = append(completed, u) })

	resp := upload(t, url, "12345678", "firmware-bytes")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Empty(t, completed, "completion must wait for Handle")

	l.Handle()
	require.Len(t, completed, 1)
	assert.Equal(t, int64(len("firmware-bytes")), completed[0].Size)

	data, err := os.ReadFile(completed[0].Path)
	require.NoError(t, err)
	assert.Equal(t, "firmware-bytes", string(data))
}

func TestHTTPListener_RejectsWrongPassword(t *testing.T) {
	l, url := startListener(t, nil)

	resp := upload(t, url, "wrong", "firmware-bytes")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	select {
	case u := <-l.completed:
		t.Fatalf("unexpected staged upload %v", u)
	default:
	}
}

func TestHTTPListener_RejectsEmptyImage(t *testing.T) {
	_, url := startListener(t, nil)
	resp := upload(t, url, "12345678", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHTTPListener_Status(t *testing.T) {
	_, url := startListener(t, nil)

	resp, err := http.Get(url + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"hostname":"node-1","state":"ready"}`, string(body))
}

func TestHTTPListener_BeginTwice(t *testing.T) {
	l, _ := startListener(t, nil)
	assert.Error(t, l.Begin("node-1", "12345678"))
}
