package s3

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"
)

type fakeObject struct {
	data        []byte
	contentType string
	modified    time.Time
}

// fakeS3 is a path-style, single-bucket S3 endpoint backed by a map. It
// honors If-None-Match: * on PUT and can be told to reject or fail calls.
type fakeS3 struct {
	bucket string

	mu       sync.Mutex
	objects  map[string]fakeObject
	putSizes []int

	// takenPuts answers that many PUTs with PreconditionFailed
	takenPuts int
	// failStatus, when set, is returned once with an InternalError body
	failStatus int
}

func newFakeS3(bucket string) *fakeS3 {
	return &fakeS3{bucket: bucket, objects: make(map[string]fakeObject)}
}

func writeS3Error(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>%s</Code><Message>%s</Message><RequestId>fake</RequestId></Error>`, code, code)
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rest := strings.TrimPrefix(r.URL.Path, "/"+f.bucket)
	key := strings.TrimPrefix(rest, "/")

	if f.failStatus != 0 {
		status := f.failStatus
		f.failStatus = 0
		if r.Method == http.MethodHead {
			w.WriteHeader(status)
			return
		}
		writeS3Error(w, status, "InternalError")
		return
	}

	if key == "" {
		if r.Method == http.MethodGet && r.URL.Query().Get("list-type") == "2" {
			f.list(w, r.URL.Query().Get("prefix"))
			return
		}
		writeS3Error(w, http.StatusNotImplemented, "NotImplemented")
		return
	}

	switch r.Method {
	case http.MethodPut:
		data, err := io.ReadAll(r.Body)
		if err != nil {
			writeS3Error(w, http.StatusBadRequest, "IncompleteBody")
			return
		}
		f.putSizes = append(f.putSizes, len(data))

		_, exists := f.objects[key]
		if f.takenPuts > 0 || (exists && r.Header.Get("If-None-Match") == "*") {
			if f.takenPuts > 0 {
				f.takenPuts--
			}
			writeS3Error(w, http.StatusPreconditionFailed, "PreconditionFailed")
			return
		}
		f.objects[key] = fakeObject{
			data:        data,
			contentType: r.Header.Get("Content-Type"),
			modified:    time.Now().UTC(),
		}
		w.Header().Set("ETag", `"fake"`)
		w.WriteHeader(http.StatusOK)

	case http.MethodHead:
		obj, ok := f.objects[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		f.writeHeaders(w, obj)
		w.WriteHeader(http.StatusOK)

	case http.MethodGet:
		obj, ok := f.objects[key]
		if !ok {
			writeS3Error(w, http.StatusNotFound, "NoSuchKey")
			return
		}
		f.writeHeaders(w, obj)
		w.WriteHeader(http.StatusOK)
		w.Write(obj.data)

	case http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)

	default:
		writeS3Error(w, http.StatusMethodNotAllowed, "MethodNotAllowed")
	}
}

func (f *fakeS3) writeHeaders(w http.ResponseWriter, obj fakeObject) {
	w.Header().Set("Content-Length", fmt.Sprint(len(obj.data)))
	w.Header().Set("Last-Modified", obj.modified.Format(http.TimeFormat))
	if obj.contentType != "" {
		w.Header().Set("Content-Type", obj.contentType)
	}
}

type listContents struct {
	Key  string `xml:"Key"`
	Size int    `xml:"Size"`
}

type listBucketResult struct {
	XMLName     xml.Name       `xml:"http://s3.amazonaws.com/doc/2006-03-01/ ListBucketResult"`
	Name        string         `xml:"Name"`
	Prefix      string         `xml:"Prefix"`
	KeyCount    int            `xml:"KeyCount"`
	IsTruncated bool           `xml:"IsTruncated"`
	Contents    []listContents `xml:"Contents"`
}

func (f *fakeS3) list(w http.ResponseWriter, prefix string) {
	result := listBucketResult{Name: f.bucket, Prefix: prefix}
	for key, obj := range f.objects {
		if strings.HasPrefix(key, prefix) {
			result.Contents = append(result.Contents, listContents{Key: key, Size: len(obj.data)})
		}
	}
	sort.Slice(result.Contents, func(i, j int) bool { return result.Contents[i].Key < result.Contents[j].Key })
	result.KeyCount = len(result.Contents)

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, xml.Header)
	xml.NewEncoder(w).Encode(result)
}

func (f *fakeS3) object(key string) (fakeObject, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[key]
	return obj, ok
}

func (f *fakeS3) sizes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.putSizes...)
}

// newFakeBackend returns a Backend talking to a fresh fakeS3 over HTTP.
func newFakeBackend(t *testing.T, config Config) (*Backend, *fakeS3) {
	t.Helper()

	fake := newFakeS3("inventory")
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client := s3.New(s3.Options{
		Region:                     "us-east-1",
		BaseEndpoint:               aws.String(srv.URL),
		UsePathStyle:               true,
		Credentials:                credentials.NewStaticCredentialsProvider("test-key", "test-secret", ""),
		Retryer:                    aws.NopRetryer{},
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
		ResponseChecksumValidation: aws.ResponseChecksumValidationWhenRequired,
	})

	config.Bucket = "inventory"
	backend, err := NewWithClient(client, config)
	require.NoError(t, err)
	return backend, fake
}
