package api

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"filerelay/internal/config"
	"filerelay/internal/wire"
)

func postFrame(t *testing.T, serverURL, frame string) (int, string) {
	t.Helper()
	resp, err := http.Post(serverURL+"/write_file", "application/octet-stream", strings.NewReader(frame))
	if err != nil {
		t.Fatalf("post write_file: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestWriteFileCreatesParents(t *testing.T) {
	root := t.TempDir()
	httpServer, registry := startTestServer(t, root, config.TransportHTTP, time.Second)

	status, body := postFrame(t, httpServer.URL, "scripts/nested/main.luau\nreturn 1")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}
	data, err := os.ReadFile(filepath.Join(root, "scripts", "nested", "main.luau"))
	if err != nil {
		t.Fatalf("read written file: %v", err)
	}
	if string(data) != "return 1" {
		t.Fatalf("unexpected content %q", data)
	}
	if got := registry.Snapshot().WritesApplied; got != 1 {
		t.Fatalf("expected 1 applied write, got %d", got)
	}
}

func TestWriteFileRejectsBadRequests(t *testing.T) {
	root := t.TempDir()
	httpServer, _ := startTestServer(t, root, config.TransportHTTP, time.Second)

	tests := []struct {
		name  string
		frame string
		want  string
	}{
		{name: "no newline", frame: "orphan", want: "NoNewlineToSeparatePath"},
		{name: "traversal", frame: "../outside.txt\nx", want: "InvalidPath"},
		{name: "absolute", frame: "/etc/passwd\nx", want: "InvalidPath"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			status, body := postFrame(t, httpServer.URL, test.frame)
			if status != http.StatusInternalServerError {
				t.Fatalf("expected 500, got %d", status)
			}
			if !strings.Contains(body, test.want) {
				t.Fatalf("expected body to mention %s, got %q", test.want, body)
			}
		})
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(root), "outside.txt")); !os.IsNotExist(err) {
		t.Fatalf("traversal escaped the root, stat err=%v", err)
	}
}

func TestWriteFileRequiresPost(t *testing.T) {
	httpServer, _ := startTestServer(t, t.TempDir(), config.TransportHTTP, time.Second)

	resp, err := http.Get(httpServer.URL + "/write_file")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
	if allow := resp.Header.Get("Allow"); allow != http.MethodPost {
		t.Fatalf("unexpected Allow header %q", allow)
	}
}

func fetchPoll(t *testing.T, serverURL string) []wire.PollRecord {
	t.Helper()
	resp, err := http.Get(serverURL + "/poll")
	if err != nil {
		t.Fatalf("get poll: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var records []wire.PollRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		t.Fatalf("decode poll: %v", err)
	}
	if records == nil {
		t.Fatalf("expected a JSON array, got null")
	}
	return records
}

func TestPollReturnsQueuedChanges(t *testing.T) {
	root := t.TempDir()
	httpServer, _ := startTestServer(t, root, config.TransportHTTP, 5*time.Second)
	path := filepath.Join(root, "fresh.txt")

	if err := os.WriteFile(path, []byte("hi"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	records := fetchPoll(t, httpServer.URL)
	if len(records) == 0 {
		t.Fatalf("expected at least one record")
	}
	if records[0].Kind != "create" || records[0].Path != path {
		t.Fatalf("unexpected first record %+v", records[0])
	}
}

func TestPollSeesWrittenFiles(t *testing.T) {
	root := t.TempDir()
	httpServer, _ := startTestServer(t, root, config.TransportHTTP, 5*time.Second)

	if status, body := postFrame(t, httpServer.URL, "echo.txt\nback"); status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}
	path := filepath.Join(root, "echo.txt")
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		for _, record := range fetchPoll(t, httpServer.URL) {
			if record.Path == path && string(record.Content) == "back" {
				return
			}
		}
	}
	t.Fatalf("written file never showed up in a poll")
}

func TestPollTimeoutReturnsEmptyArray(t *testing.T) {
	httpServer, _ := startTestServer(t, t.TempDir(), config.TransportHTTP, 100*time.Millisecond)

	resp, err := http.Get(httpServer.URL + "/poll")
	if err != nil {
		t.Fatalf("get poll: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if strings.TrimSpace(string(body)) != "[]" {
		t.Fatalf("expected empty array, got %q", body)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	httpServer, _ := startTestServer(t, t.TempDir(), config.TransportHTTP, time.Second)
	postFrame(t, httpServer.URL, "a.txt\nx")

	resp, err := http.Get(httpServer.URL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected healthz 200, got %d", resp.StatusCode)
	}

	resp, err = http.Get(httpServer.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "filerelay_writes_applied_total 1") {
		t.Fatalf("metrics missing applied write counter:\n%s", body)
	}
}
