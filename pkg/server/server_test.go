package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/s3gate/s3gate/pkg/catalog"
	"github.com/s3gate/s3gate/pkg/credentials"
	"github.com/s3gate/s3gate/pkg/credentials/boltkeys"
	"github.com/s3gate/s3gate/pkg/credentials/localsts"
	"github.com/s3gate/s3gate/pkg/identity"
	"github.com/s3gate/s3gate/pkg/scope"
	"github.com/s3gate/s3gate/pkg/server"
	"github.com/s3gate/s3gate/pkg/store/localstore"
	"github.com/s3gate/s3gate/pkg/upload"
	"github.com/s3gate/s3gate/pkg/upload/boltsession"
)

var testSecret = []byte("test-secret")

func newTestServer(t *testing.T) (*httptest.Server, *localstore.Store) {
	t.Helper()
	dir := t.TempDir()

	raw, err := localstore.NewStore(filepath.Join(dir, "objects.db"))
	if err != nil {
		t.Fatalf("Failed to open object store: %v", err)
	}
	t.Cleanup(func() { raw.Close() })
	keys, err := boltkeys.NewStore(filepath.Join(dir, "keys.db"))
	if err != nil {
		t.Fatalf("Failed to open key store: %v", err)
	}
	t.Cleanup(func() { keys.Close() })
	sessions, err := boltsession.NewStore(filepath.Join(dir, "sessions.db"))
	if err != nil {
		t.Fatalf("Failed to open session store: %v", err)
	}
	t.Cleanup(func() { sessions.Close() })

	gate := scope.NewGate(nil)
	srv := server.New(
		catalog.New(raw, gate),
		credentials.NewBroker(localsts.NewIssuer(testSecret), "local", nil),
		credentials.NewKeyManager(keys, "local", nil),
		upload.NewCoordinator(raw, sessions, gate, nil),
		identity.NewVerifier(testSecret),
	)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, raw
}

func bearerToken(t *testing.T, principal string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": principal,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(testSecret)
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return token
}

func doJSON(t *testing.T, ts *httptest.Server, principal, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	if principal != "" {
		req.Header.Set("Authorization", "Bearer "+bearerToken(t, principal))
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	return resp, raw
}

func TestUnauthenticatedRejected(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, _ := doJSON(t, ts, "", http.MethodPost, "/api/s3/list", map[string]any{})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
}

func TestUploadAndList(t *testing.T) {
	ts, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/s3/upload?key=users/u1/hello.txt", strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearerToken(t, "u1"))
	req.Header.Set("Content-Type", "text/plain")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", resp.StatusCode)
	}

	listResp, body := doJSON(t, ts, "u1", http.MethodPost, "/api/s3/list", map[string]any{})
	if listResp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", listResp.StatusCode, body)
	}
	var page struct {
		Objects []struct {
			Key string `json:"key"`
		} `json:"objects"`
		Prefix string `json:"prefix"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		t.Fatalf("Failed to parse listing: %v", err)
	}
	if page.Prefix != "users/u1/" {
		t.Errorf("Expected prefix users/u1/, got %q", page.Prefix)
	}
	if len(page.Objects) != 1 || page.Objects[0].Key != "users/u1/hello.txt" {
		t.Errorf("Unexpected listing %s", body)
	}
}

// A denied foreign key and a genuinely missing own key must produce
// byte-identical response bodies, so a probing tenant learns nothing.
func TestNotFoundShapeHidesDenials(t *testing.T) {
	ts, raw := newTestServer(t)

	if _, err := raw.Put(context.Background(), "users/u2/secret.txt", strings.NewReader("x"), ""); err != nil {
		t.Fatalf("Failed to seed object: %v", err)
	}

	deniedResp, deniedBody := doJSON(t, ts, "u1", http.MethodGet, "/api/s3/metadata?key=users/u2/secret.txt", nil)
	missingResp, missingBody := doJSON(t, ts, "u1", http.MethodGet, "/api/s3/metadata?key=users/u1/absent.txt", nil)

	if deniedResp.StatusCode != http.StatusNotFound || missingResp.StatusCode != http.StatusNotFound {
		t.Fatalf("Expected 404/404, got %d/%d", deniedResp.StatusCode, missingResp.StatusCode)
	}
	if !bytes.Equal(deniedBody, missingBody) {
		t.Errorf("Denied and missing must be indistinguishable: %s vs %s", deniedBody, missingBody)
	}
}

func TestDeleteBatchPartial(t *testing.T) {
	ts, raw := newTestServer(t)
	ctx := context.Background()

	for _, key := range []string{"users/u1/a", "users/u2/b"} {
		if _, err := raw.Put(ctx, key, strings.NewReader("x"), ""); err != nil {
			t.Fatalf("Failed to seed %q: %v", key, err)
		}
	}

	resp, body := doJSON(t, ts, "u1", http.MethodPost, "/api/s3/delete-batch", map[string]any{
		"keys": []string{"users/u1/a", "users/u2/b"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, body)
	}
	var out struct {
		Deleted []string `json:"deleted"`
		Errors  []struct {
			Key  string `json:"key"`
			Kind string `json:"kind"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if len(out.Deleted) != 1 || out.Deleted[0] != "users/u1/a" {
		t.Errorf("Expected users/u1/a deleted, got %v", out.Deleted)
	}
	if len(out.Errors) != 1 || out.Errors[0].Key != "users/u2/b" || out.Errors[0].Kind != "AccessDenied" {
		t.Errorf("Expected AccessDenied for users/u2/b, got %v", out.Errors)
	}
}

func TestTemporaryCredentials(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, body := doJSON(t, ts, "u1", http.MethodPost, "/api/credentials/temporary", map[string]any{
		"durationSeconds": 900,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, body)
	}
	var cred struct {
		AccessKeyID     string    `json:"accessKeyId"`
		SecretAccessKey string    `json:"secretAccessKey"`
		SessionToken    string    `json:"sessionToken"`
		Expiration      time.Time `json:"expiration"`
	}
	if err := json.Unmarshal(body, &cred); err != nil {
		t.Fatalf("Failed to parse credential: %v", err)
	}
	if cred.AccessKeyID == "" || cred.SecretAccessKey == "" || cred.SessionToken == "" {
		t.Errorf("Incomplete credential %s", body)
	}
	if !cred.Expiration.After(time.Now()) {
		t.Errorf("Expected future expiration, got %v", cred.Expiration)
	}
}

func TestTemporaryCredentialsInvalidDuration(t *testing.T) {
	ts, _ := newTestServer(t)

	for _, d := range []int{899, 43201} {
		resp, body := doJSON(t, ts, "u1", http.MethodPost, "/api/credentials/temporary", map[string]any{
			"durationSeconds": d,
		})
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("Expected 400 for duration %d, got %d: %s", d, resp.StatusCode, body)
		}
	}
}

func TestAccessKeyLifecycle(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, body := doJSON(t, ts, "u1", http.MethodPost, "/api/credentials/access-key", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", resp.StatusCode, body)
	}
	var created struct {
		AccessKeyID     string `json:"accessKeyId"`
		SecretAccessKey string `json:"secretAccessKey"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("Failed to parse key: %v", err)
	}
	if created.SecretAccessKey == "" {
		t.Fatalf("Expected secret at creation: %s", body)
	}

	resp, body = doJSON(t, ts, "u1", http.MethodGet, "/api/credentials/access-keys", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, body)
	}
	var listed []struct {
		AccessKeyID     string `json:"accessKeyId"`
		SecretAccessKey string `json:"secretAccessKey"`
		Status          string `json:"status"`
	}
	if err := json.Unmarshal(body, &listed); err != nil {
		t.Fatalf("Failed to parse keys: %v", err)
	}
	if len(listed) != 1 || listed[0].AccessKeyID != created.AccessKeyID {
		t.Fatalf("Unexpected listing %s", body)
	}
	if listed[0].SecretAccessKey != "" {
		t.Errorf("Listing must omit secrets: %s", body)
	}

	resp, body = doJSON(t, ts, "u1", http.MethodPut, "/api/credentials/access-key/"+created.AccessKeyID+"/status", map[string]any{
		"status": "Inactive",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, body)
	}

	resp, body = doJSON(t, ts, "u1", http.MethodDelete, "/api/credentials/access-key/"+created.AccessKeyID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, body)
	}
}

// A foreign key id gets the same 404 shape as a key that never existed.
func TestForeignKeyLooksMissing(t *testing.T) {
	ts, _ := newTestServer(t)

	_, body := doJSON(t, ts, "u2", http.MethodPost, "/api/credentials/access-key", nil)
	var created struct {
		AccessKeyID string `json:"accessKeyId"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("Failed to parse key: %v", err)
	}

	foreignResp, foreignBody := doJSON(t, ts, "u1", http.MethodDelete, "/api/credentials/access-key/"+created.AccessKeyID, nil)
	missingResp, missingBody := doJSON(t, ts, "u1", http.MethodDelete, "/api/credentials/access-key/SGKNEVEREXISTED123456", nil)

	if foreignResp.StatusCode != http.StatusNotFound || missingResp.StatusCode != http.StatusNotFound {
		t.Fatalf("Expected 404/404, got %d/%d", foreignResp.StatusCode, missingResp.StatusCode)
	}
	if !bytes.Equal(foreignBody, missingBody) {
		t.Errorf("Foreign and missing key responses differ: %s vs %s", foreignBody, missingBody)
	}
}

func TestRotateAccessKey(t *testing.T) {
	ts, _ := newTestServer(t)

	_, body := doJSON(t, ts, "u1", http.MethodPost, "/api/credentials/access-key", nil)
	var created struct {
		AccessKeyID string `json:"accessKeyId"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("Failed to parse key: %v", err)
	}

	resp, body := doJSON(t, ts, "u1", http.MethodPost, "/api/credentials/access-key/rotate", map[string]any{
		"oldAccessKeyId": created.AccessKeyID,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, body)
	}
	var rotated struct {
		AccessKeyID     string `json:"accessKeyId"`
		SecretAccessKey string `json:"secretAccessKey"`
		Warning         string `json:"warning"`
	}
	if err := json.Unmarshal(body, &rotated); err != nil {
		t.Fatalf("Failed to parse rotation: %v", err)
	}
	if rotated.AccessKeyID == created.AccessKeyID || rotated.SecretAccessKey == "" {
		t.Errorf("Unexpected rotated key %s", body)
	}
	if rotated.Warning != "" {
		t.Errorf("Unexpected warning %q", rotated.Warning)
	}

	_, body = doJSON(t, ts, "u1", http.MethodGet, "/api/credentials/access-keys", nil)
	var listed []struct {
		AccessKeyID string `json:"accessKeyId"`
	}
	if err := json.Unmarshal(body, &listed); err != nil {
		t.Fatalf("Failed to parse keys: %v", err)
	}
	if len(listed) != 1 || listed[0].AccessKeyID != rotated.AccessKeyID {
		t.Errorf("Expected only the rotated key, got %s", body)
	}
}

func TestMultipartOverHTTP(t *testing.T) {
	ts, _ := newTestServer(t)
	key := "users/u1/big.bin"

	resp, body := doJSON(t, ts, "u1", http.MethodPost, "/api/s3/multipart/initiate", map[string]any{"key": key})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, body)
	}
	var initiated struct {
		UploadID string `json:"uploadId"`
	}
	if err := json.Unmarshal(body, &initiated); err != nil {
		t.Fatalf("Failed to parse initiate response: %v", err)
	}

	partURL := ts.URL + "/api/s3/multipart/part?key=" + key + "&uploadId=" + initiated.UploadID + "&partNumber=1"
	req, err := http.NewRequest(http.MethodPost, partURL, strings.NewReader("content"))
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearerToken(t, "u1"))
	partResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Part upload failed: %v", err)
	}
	partBody, _ := io.ReadAll(partResp.Body)
	partResp.Body.Close()
	if partResp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", partResp.StatusCode, partBody)
	}
	var part struct {
		ETag string `json:"etag"`
	}
	if err := json.Unmarshal(partBody, &part); err != nil {
		t.Fatalf("Failed to parse part response: %v", err)
	}

	// A wrong etag conflicts and leaves the session alive.
	resp, body = doJSON(t, ts, "u1", http.MethodPost, "/api/s3/multipart/complete", map[string]any{
		"key":      key,
		"uploadId": initiated.UploadID,
		"parts":    []map[string]any{{"partNumber": 1, "etag": "wrong"}},
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("Expected 409, got %d: %s", resp.StatusCode, body)
	}

	resp, body = doJSON(t, ts, "u1", http.MethodPost, "/api/s3/multipart/complete", map[string]any{
		"key":      key,
		"uploadId": initiated.UploadID,
		"parts":    []map[string]any{{"partNumber": 1, "etag": part.ETag}},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, body)
	}

	metaResp, _ := doJSON(t, ts, "u1", http.MethodGet, "/api/s3/metadata?key="+key, nil)
	if metaResp.StatusCode != http.StatusOK {
		t.Errorf("Expected assembled object, got %d", metaResp.StatusCode)
	}
}

func TestMultipartAbortIdempotentOverHTTP(t *testing.T) {
	ts, _ := newTestServer(t)
	key := "users/u1/f"

	_, body := doJSON(t, ts, "u1", http.MethodPost, "/api/s3/multipart/initiate", map[string]any{"key": key})
	var initiated struct {
		UploadID string `json:"uploadId"`
	}
	if err := json.Unmarshal(body, &initiated); err != nil {
		t.Fatalf("Failed to parse initiate response: %v", err)
	}

	for i := 0; i < 2; i++ {
		resp, body := doJSON(t, ts, "u1", http.MethodPost, "/api/s3/multipart/abort", map[string]any{
			"key":      key,
			"uploadId": initiated.UploadID,
		})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Abort %d: expected 200, got %d: %s", i+1, resp.StatusCode, body)
		}
	}
}

func TestMalformedBodyRejected(t *testing.T) {
	ts, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/s3/list", strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearerToken(t, "u1"))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", resp.StatusCode)
	}
}
