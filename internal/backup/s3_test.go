package backup

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestParseS3BucketURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		raw       string
		wantErr   bool
		wantBkt   string
		wantPre   string
		errSubstr string
	}{
		{
			name:    "bucket only",
			raw:     "s3://my-bucket",
			wantBkt: "my-bucket",
			wantPre: "",
		},
		{
			name:    "bucket with prefix",
			raw:     "s3://my-bucket/procmetrics/backups/",
			wantBkt: "my-bucket",
			wantPre: "procmetrics/backups",
		},
		{
			name:      "invalid scheme",
			raw:       "https://my-bucket/procmetrics",
			wantErr:   true,
			errSubstr: "s3:// scheme",
		},
		{
			name:      "missing bucket",
			raw:       "s3:///procmetrics",
			wantErr:   true,
			errSubstr: "missing bucket",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			gotBkt, gotPre, err := parseS3BucketURL(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if tt.errSubstr != "" && !strings.Contains(err.Error(), tt.errSubstr) {
					t.Fatalf("err = %q, want substring %q", err.Error(), tt.errSubstr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseS3BucketURL error: %v", err)
			}
			if gotBkt != tt.wantBkt {
				t.Fatalf("bucket = %q, want %q", gotBkt, tt.wantBkt)
			}
			if gotPre != tt.wantPre {
				t.Fatalf("prefix = %q, want %q", gotPre, tt.wantPre)
			}
		})
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		endpoint string
		useSSL   bool
		want     string
	}{
		{"", true, ""},
		{"minio:9000", false, "http://minio:9000"},
		{"s3.example.com", true, "https://s3.example.com"},
		{"http://already:9000", true, "http://already:9000"},
	}
	for _, tt := range tests {
		if got := normalizeEndpoint(tt.endpoint, tt.useSSL); got != tt.want {
			t.Errorf("normalizeEndpoint(%q, %v) = %q, want %q", tt.endpoint, tt.useSSL, got, tt.want)
		}
	}
}

func TestNewS3Uploader_HalfCredentials(t *testing.T) {
	t.Parallel()

	_, err := NewS3Uploader(context.Background(), S3Config{
		BucketURL: "s3://my-bucket/procmetrics",
		AccessKey: "AKIA",
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestS3Uploader_UploadFile(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		method  string
		reqPath string
		body    string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		method, reqPath, body = r.Method, r.URL.Path, string(data)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	u, err := NewS3Uploader(context.Background(), S3Config{
		BucketURL: "s3://metrics-bucket/cn/backups",
		Endpoint:  srv.URL,
		Region:    "us-east-1",
		AccessKey: "AKIDEXAMPLE",
		SecretKey: "secret",
	})
	if err != nil {
		t.Fatalf("NewS3Uploader: %v", err)
	}

	localPath := filepath.Join(t.TempDir(), "procmetrics-20240301T120000.000000000Z.json")
	if err := os.WriteFile(localPath, []byte(`{"dateLogged":"x"}`), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := u.UploadFile(context.Background(), localPath); err != nil {
		t.Fatalf("UploadFile: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if method != http.MethodPut {
		t.Fatalf("method = %s, want PUT", method)
	}
	wantPath := "/metrics-bucket/cn/backups/procmetrics-20240301T120000.000000000Z.json"
	if reqPath != wantPath {
		t.Fatalf("path = %q, want %q", reqPath, wantPath)
	}
	if body != `{"dateLogged":"x"}` {
		t.Fatalf("body = %q", body)
	}
}
