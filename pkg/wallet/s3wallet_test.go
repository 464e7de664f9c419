/*
Copyright 2020 IBM All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package wallet

import (
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/nbrb/fabric-enroll/pkg/common/errors/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	s3Bucket    = "fabric-wallets"
	s3AccessKey = "AKIDTEST"
	s3SecretKey = "secret"
)

type s3Object struct {
	body       []byte
	encryption string
}

// fakeS3 serves the path style object API used by the wallet
type fakeS3 struct {
	mutex   sync.Mutex
	objects map[string]s3Object
	denied  bool
	// beforePut runs ahead of every PUT, outside the lock
	beforePut func()
}

type listBucketResult struct {
	XMLName     xml.Name          `xml:"ListBucketResult"`
	Name        string            `xml:"Name"`
	Prefix      string            `xml:"Prefix"`
	KeyCount    int               `xml:"KeyCount"`
	MaxKeys     int               `xml:"MaxKeys"`
	IsTruncated bool              `xml:"IsTruncated"`
	Contents    []listBucketEntry `xml:"Contents"`
}

type listBucketEntry struct {
	Key  string `xml:"Key"`
	Size int    `xml:"Size"`
}

func newFakeS3(t *testing.T) (*fakeS3, *httptest.Server) {
	fs := &fakeS3{objects: make(map[string]s3Object)}

	router := chi.NewRouter()
	router.Use(fs.authorize)
	router.Get("/{bucket}", fs.list)
	router.Head("/{bucket}/*", fs.head)
	router.Get("/{bucket}/*", fs.get)
	router.Put("/{bucket}/*", fs.put)
	router.Delete("/{bucket}/*", fs.delete)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return fs, srv
}

func (fs *fakeS3) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.mutex.Lock()
		denied := fs.denied
		fs.mutex.Unlock()
		if denied || !strings.Contains(r.Header.Get("Authorization"), s3AccessKey) {
			s3Error(w, http.StatusForbidden, "AccessDenied")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (fs *fakeS3) key(r *http.Request) string {
	key, _ := url.PathUnescape(chi.URLParam(r, "*"))
	return key
}

func (fs *fakeS3) head(w http.ResponseWriter, r *http.Request) {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()

	if _, ok := fs.objects[fs.key(r)]; !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (fs *fakeS3) get(w http.ResponseWriter, r *http.Request) {
	if fs.key(r) == "" {
		fs.list(w, r)
		return
	}

	fs.mutex.Lock()
	defer fs.mutex.Unlock()

	obj, ok := fs.objects[fs.key(r)]
	if !ok {
		s3Error(w, http.StatusNotFound, "NoSuchKey")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(obj.body) // nolint: errcheck
}

func (fs *fakeS3) put(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s3Error(w, http.StatusBadRequest, "IncompleteBody")
		return
	}

	if fs.beforePut != nil {
		fs.beforePut()
	}

	fs.mutex.Lock()
	defer fs.mutex.Unlock()

	if _, exists := fs.objects[fs.key(r)]; exists && r.Header.Get("If-None-Match") == "*" {
		s3Error(w, http.StatusPreconditionFailed, "PreconditionFailed")
		return
	}
	fs.objects[fs.key(r)] = s3Object{
		body:       body,
		encryption: r.Header.Get("X-Amz-Server-Side-Encryption"),
	}
	w.WriteHeader(http.StatusOK)
}

func (fs *fakeS3) delete(w http.ResponseWriter, r *http.Request) {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()

	delete(fs.objects, fs.key(r))
	w.WriteHeader(http.StatusNoContent)
}

func (fs *fakeS3) list(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")

	fs.mutex.Lock()
	result := listBucketResult{Name: chi.URLParam(r, "bucket"), Prefix: prefix, MaxKeys: 1000}
	for k, obj := range fs.objects {
		if strings.HasPrefix(k, prefix) {
			result.Contents = append(result.Contents, listBucketEntry{Key: k, Size: len(obj.body)})
		}
	}
	fs.mutex.Unlock()

	sort.Slice(result.Contents, func(i, j int) bool { return result.Contents[i].Key < result.Contents[j].Key })
	result.KeyCount = len(result.Contents)

	w.Header().Set("Content-Type", "application/xml")
	io.WriteString(w, xml.Header)    // nolint: errcheck
	xml.NewEncoder(w).Encode(result) // nolint: errcheck
}

func s3Error(w http.ResponseWriter, code int, s3Code string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(code)
	io.WriteString(w, xml.Header+"<Error><Code>"+s3Code+"</Code><Message>"+s3Code+"</Message></Error>") // nolint: errcheck
}

func s3TestOptions(srv *httptest.Server, prefix string) S3Options {
	return S3Options{
		Bucket:    s3Bucket,
		Prefix:    prefix,
		Endpoint:  srv.URL,
		AccessKey: s3AccessKey,
		SecretKey: s3SecretKey,
		PathStyle: true,
	}
}

func TestS3WalletSuite(t *testing.T) {
	testWalletSuite(t, func(t *testing.T) (*Wallet, error) {
		_, srv := newFakeS3(t)
		return NewS3Wallet(s3TestOptions(srv, "wallets/org2"))
	})
}

func TestS3WalletWithoutPrefix(t *testing.T) {
	testWalletSuite(t, func(t *testing.T) (*Wallet, error) {
		_, srv := newFakeS3(t)
		return NewS3Wallet(s3TestOptions(srv, ""))
	})
}

func TestNewS3WalletValidation(t *testing.T) {
	_, err := NewS3Wallet(S3Options{})
	assert.Error(t, err)
}

func TestS3WalletLayout(t *testing.T) {
	fs, srv := newFakeS3(t)
	wallet, err := NewS3Wallet(s3TestOptions(srv, "/wallets/org2/"))
	require.NoError(t, err)

	require.NoError(t, wallet.Put("yauheni", NewX509Identity("Org2MSP", []byte("CERT"), []byte("KEY"))))

	fs.mutex.Lock()
	obj, ok := fs.objects["wallets/org2/yauheni.id"]
	fs.objects["wallets/org2/nested/other.id"] = s3Object{body: []byte("{}")}
	fs.objects["wallets/org2/notes.txt"] = s3Object{body: []byte("hello")}
	fs.mutex.Unlock()

	require.True(t, ok, "object must be written as <prefix>/<label>.id")
	assert.Equal(t, "AES256", obj.encryption)
	assert.JSONEq(t,
		`{"version":1,"mspId":"Org2MSP","type":"X.509","credentials":{"certificate":"CERT","privateKey":"KEY"}}`,
		string(obj.body))

	labels, err := wallet.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"yauheni"}, labels)
}

func TestS3WalletConditionalPut(t *testing.T) {
	fs, srv := newFakeS3(t)
	wallet, err := NewS3Wallet(s3TestOptions(srv, "wallets"))
	require.NoError(t, err)

	fs.beforePut = func() {
		// another writer stores the label between our HEAD and our PUT
		fs.beforePut = nil
		fs.mutex.Lock()
		fs.objects["wallets/yauheni.id"] = s3Object{body: []byte(`{"version":1}`)}
		fs.mutex.Unlock()
	}

	err = wallet.Put("yauheni", NewX509Identity("Org2MSP", []byte("CERT"), []byte("KEY")))
	assert.Equal(t, ErrIdentityExists, err)

	fs.mutex.Lock()
	assert.Equal(t, `{"version":1}`, string(fs.objects["wallets/yauheni.id"].body), "first writer's identity must be kept")
	fs.mutex.Unlock()
}

func TestS3WalletAccessDenied(t *testing.T) {
	fs, srv := newFakeS3(t)
	wallet, err := NewS3Wallet(s3TestOptions(srv, "wallets"))
	require.NoError(t, err)

	fs.mutex.Lock()
	fs.denied = true
	fs.mutex.Unlock()

	_, err = wallet.Exists("yauheni")
	assert.True(t, status.Is(err, status.WalletStatus, status.StoreUnavailable), "%v", err)

	_, err = wallet.Get("yauheni")
	assert.True(t, status.Is(err, status.WalletStatus, status.StoreUnavailable), "%v", err)

	_, err = wallet.List()
	assert.True(t, status.Is(err, status.WalletStatus, status.StoreUnavailable), "%v", err)
}

func TestOpenS3(t *testing.T) {
	fs, srv := newFakeS3(t)

	location := "s3://" + s3AccessKey + ":" + s3SecretKey + "@" + s3Bucket + "/wallets/org2" +
		"?region=eu-west-1&path_style=true&endpoint=" + url.QueryEscape(srv.URL)
	wallet, err := Open(location)
	require.NoError(t, err)

	require.NoError(t, wallet.Put("yauheni", NewX509Identity("Org2MSP", []byte("CERT"), []byte("KEY"))))

	fs.mutex.Lock()
	_, ok := fs.objects["wallets/org2/yauheni.id"]
	fs.mutex.Unlock()
	assert.True(t, ok)
}
