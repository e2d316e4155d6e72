package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// fakeS3Transport answers the small S3 REST subset the store uses, keeping
// objects in memory so no test ever touches the network. Paths are expected
// in path style, /bucket/key.
type fakeS3Transport struct {
	objects map[string]fakeObject
}

type fakeObject struct {
	body        []byte
	contentType string
}

func (f *fakeS3Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}
	if req.Method == http.MethodGet && strings.Contains(req.URL.RawQuery, "list-type=2") {
		return f.listResponse(req), nil
	}
	switch req.Method {
	case http.MethodHead:
		obj, ok := f.objects[key]
		if !ok {
			return xmlResponse(404, ""), nil
		}
		resp := xmlResponse(200, "")
		resp.Header = http.Header{
			"Content-Length": {strconv.Itoa(len(obj.body))},
			"Content-Type":   {obj.contentType},
			"Etag":           {`"fake-etag"`},
			"Last-Modified":  {time.Now().UTC().Format(http.TimeFormat)},
		}
		return resp, nil
	case http.MethodPut:
		body, _ := io.ReadAll(req.Body)
		if decoded, ok := unchunk(body); ok {
			body = decoded
		}
		f.objects[key] = fakeObject{body: body, contentType: req.Header.Get("Content-Type")}
		resp := xmlResponse(200, "")
		resp.Header = http.Header{"Etag": {`"fake-etag"`}}
		return resp, nil
	case http.MethodGet:
		obj, ok := f.objects[key]
		if !ok {
			return xmlResponse(404, ""), nil
		}
		resp := &http.Response{StatusCode: 200, Body: io.NopCloser(bytes.NewReader(obj.body)), Header: http.Header{
			"Content-Length": {strconv.Itoa(len(obj.body))},
			"Content-Type":   {obj.contentType},
			"Etag":           {`"fake-etag"`},
			"Last-Modified":  {time.Now().UTC().Format(http.TimeFormat)},
		}}
		return resp, nil
	case http.MethodDelete:
		delete(f.objects, key)
		return xmlResponse(204, ""), nil
	}
	return xmlResponse(501, ""), nil
}

// listResponse pages one key at a time so the store's continuation loop is
// actually exercised when more than one object matches.
func (f *fakeS3Transport) listResponse(req *http.Request) *http.Response {
	prefix := req.URL.Query().Get("prefix")
	cont := req.URL.Query().Get("continuation-token")
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	start := 0
	if cont != "" {
		if n, err := strconv.Atoi(cont); err == nil {
			start = n
		}
	}
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?><ListBucketResult>`)
	end := len(keys)
	if start < len(keys)-1 {
		end = start + 1
		fmt.Fprintf(&b, "<IsTruncated>true</IsTruncated><NextContinuationToken>%d</NextContinuationToken>", end)
	} else {
		b.WriteString("<IsTruncated>false</IsTruncated>")
	}
	for _, k := range keys[start:end] {
		fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><LastModified>2026-01-01T00:00:00Z</LastModified></Contents>", k, len(f.objects[k].body))
	}
	b.WriteString("</ListBucketResult>")
	return xmlResponse(200, b.String())
}

func xmlResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": {"application/xml"}},
	}
}

// unchunk undoes aws-chunked request bodies: <hex size>\r\n<payload>\r\n0\r\n.
func unchunk(b []byte) ([]byte, bool) {
	parts := strings.Split(string(b), "\r\n")
	if len(parts) < 3 || parts[2] != "0" {
		return nil, false
	}
	n, err := strconv.ParseInt(parts[0], 16, 64)
	if err != nil || n <= 0 || int64(len(parts[1])) != n {
		return nil, false
	}
	return []byte(parts[1]), true
}

func newFakeS3(t *testing.T) *S3 {
	t.Helper()
	transport := &fakeS3Transport{objects: make(map[string]fakeObject)}
	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test-key", "test-secret", "")),
	)
	if err != nil {
		t.Fatalf("aws config: %v", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String("https://s3.fake.local")
		o.HTTPClient = &http.Client{Transport: transport}
		o.UsePathStyle = true
	})
	return &S3{client: client, bucket: "payloads", presign: s3.NewPresignClient(client)}
}

func TestS3StoreRoundTrip(t *testing.T) {
	store := newFakeS3(t)
	ctx := context.Background()

	info, err := store.Put(ctx, "docs/manual.pdf", bytes.NewReader([]byte("payload")), PutOptions{ContentType: "application/pdf"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "docs/manual.pdf" || info.ContentType != "application/pdf" || info.Size != 7 {
		t.Fatalf("put info = %+v", info)
	}
	if info.ETag != "fake-etag" {
		t.Fatalf("etag must be unquoted, got %q", info.ETag)
	}

	// Create-only: a second put on the same key is rejected.
	if _, err := store.Put(ctx, "docs/manual.pdf", bytes.NewReader([]byte("other")), PutOptions{}); err == nil {
		t.Fatal("duplicate put must fail")
	}

	head, err := store.Head(ctx, "docs/manual.pdf")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if head.Size != 7 || head.ContentType != "application/pdf" {
		t.Fatalf("head info = %+v", head)
	}

	got, rc, err := store.Get(ctx, "docs/manual.pdf")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "payload" || got.Size != 7 {
		t.Fatalf("get = %q, info %+v", data, got)
	}

	url, err := store.PresignURL(ctx, "docs/manual.pdf", SignedURLOptions{})
	if err != nil || url == "" {
		t.Fatalf("presign: %v %q", err, url)
	}
	if _, err := store.PresignURL(ctx, "docs/manual.pdf", SignedURLOptions{Method: "PUT"}); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("non-GET presign must be unsupported, got %v", err)
	}

	ok, err := store.Delete(ctx, "docs/manual.pdf")
	if err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if _, err := store.Head(ctx, "docs/manual.pdf"); err == nil {
		t.Fatal("head must fail after delete")
	}
}

func TestS3StoreListPaginates(t *testing.T) {
	store := newFakeS3(t)
	ctx := context.Background()
	for _, key := range []string{"docs/a.txt", "docs/b.txt", "docs/c.txt", "other/x.txt"} {
		if _, err := store.Put(ctx, key, bytes.NewReader([]byte("x")), PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	infos, err := store.List(ctx, "docs/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 3 {
		t.Fatalf("list returned %d objects: %+v", len(infos), infos)
	}
	for i, want := range []string{"docs/a.txt", "docs/b.txt", "docs/c.txt"} {
		if infos[i].Key != want {
			t.Fatalf("list[%d] = %s, want %s", i, infos[i].Key, want)
		}
	}
}

func TestS3StoreMissingKey(t *testing.T) {
	store := newFakeS3(t)
	ctx := context.Background()
	if _, err := store.Head(ctx, "absent"); err == nil {
		t.Fatal("head of absent key must fail")
	}
	if _, _, err := store.Get(ctx, "absent"); err == nil {
		t.Fatal("get of absent key must fail")
	}
}

func TestNewS3RequiresBucket(t *testing.T) {
	if _, err := NewS3(context.Background(), S3Config{}); err == nil {
		t.Fatal("empty bucket must be rejected")
	}
}

func TestNewS3FromConfig(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test-key")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test-secret")
	store, err := NewS3(context.Background(), S3Config{
		Bucket:    "payloads",
		Endpoint:  "https://s3.fake.local",
		PathStyle: true,
	})
	if err != nil {
		t.Fatalf("NewS3: %v", err)
	}
	if store.Driver() != DriverS3 {
		t.Fatalf("driver = %s", store.Driver())
	}
}

func TestOpenS3FromEnv(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test-key")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test-secret")
	t.Setenv("ITEMCORE_BLOB_S3_BUCKET", "")
	if _, err := OpenS3FromEnv(context.Background()); err == nil {
		t.Fatal("missing bucket must be rejected")
	}
	t.Setenv("ITEMCORE_BLOB_S3_BUCKET", "payloads")
	t.Setenv("ITEMCORE_BLOB_S3_REGION", "us-east-1")
	if _, err := OpenS3FromEnv(context.Background()); err != nil {
		t.Fatalf("OpenS3FromEnv: %v", err)
	}
}
