package bridge

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultlink/vaultlink/internal/counter"
	"github.com/vaultlink/vaultlink/internal/errs"
	"github.com/vaultlink/vaultlink/internal/models"
	"github.com/vaultlink/vaultlink/internal/session"
	"github.com/vaultlink/vaultlink/internal/transfer"
)

type fakeAPI struct {
	mu          sync.Mutex
	paramsCalls int
	paramsErr   error
	uploaded    []models.UploadRequest
	uploadErr   error
	details     map[string]*models.FileDetail
	downloads   []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{details: map[string]*models.FileDetail{}}
}

func (f *fakeAPI) SystemParameters(ctx context.Context) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paramsCalls++
	if f.paramsErr != nil {
		return nil, f.paramsErr
	}
	return json.RawMessage(`{"curve":"test"}`), nil
}

func (f *fakeAPI) UploadFile(ctx context.Context, req models.UploadRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.uploaded = append(f.uploaded, req)
	return "id-1", nil
}

func (f *fakeAPI) FileDetail(ctx context.Context, fileID string) (*models.FileDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.details[fileID]
	if !ok {
		return nil, &errs.NotFoundError{Kind: "record", ID: fileID}
	}
	return d, nil
}

func (f *fakeAPI) RequestDownload(ctx context.Context, fileID, user string) (*models.DownloadGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads = append(f.downloads, user)
	return &models.DownloadGrant{EncSharesList: []json.RawMessage{json.RawMessage(`"s1"`)}}, nil
}

func (f *fakeAPI) addFile(id, name string, content []byte) {
	sum := sha256.Sum256(content)
	f.details[id] = &models.FileDetail{
		ID:         id,
		Name:       name,
		Hash:       hex.EncodeToString(sum[:]),
		Ciphertext: base64.StdEncoding.EncodeToString(content),
	}
}

type progressLog struct {
	mu     sync.Mutex
	values []int
}

func (p *progressLog) fn(percent int, _ string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values = append(p.values, percent)
}

func TestUpload(t *testing.T) {
	api := newFakeAPI()
	sess := session.New("http://vault", "alice", nil, "")
	p := NewProvider(api, sess)

	path := filepath.Join(t.TempDir(), "report.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello vault"), 0o644))

	var prog progressLog
	id, err := p.Upload(context.Background(), path, prog.fn)
	require.NoError(t, err)
	assert.Equal(t, "id-1", id)
	assert.Equal(t, []int{10, 20, 30, 50, 70, 100}, prog.values)

	require.Len(t, api.uploaded, 1)
	req := api.uploaded[0]
	assert.Equal(t, "report.txt", req.FileName)
	assert.Equal(t, filepath.Dir(path), req.FilePath)
	assert.Equal(t, "alice", req.UploadUser)
	assert.Len(t, req.FileKey, 32)

	sum := sha256.Sum256([]byte("hello vault"))
	assert.Equal(t, hex.EncodeToString(sum[:]), req.FileHash)

	size, err := counter.Normalize(req.FileSize)
	require.NoError(t, err)
	n, _ := size.Uint64()
	assert.Equal(t, uint64(11), n)

	plain, err := base64.StdEncoding.DecodeString(req.FileCiphertext)
	require.NoError(t, err)
	assert.Equal(t, "hello vault", string(plain))

	// Parameters were fetched once and stored on the session.
	assert.Equal(t, 1, api.paramsCalls)
	assert.NotEmpty(t, sess.SystemParams())
}

func TestUploadMissingFile(t *testing.T) {
	p := NewProvider(newFakeAPI(), session.New("http://vault", "alice", nil, ""))

	_, err := p.Upload(context.Background(), filepath.Join(t.TempDir(), "nope"), func(int, string) {})
	require.Error(t, err)
	assert.Equal(t, ReasonRead, errs.TransferReason(err))
}

func TestUploadRejected(t *testing.T) {
	api := newFakeAPI()
	api.uploadErr = errors.New("quota exceeded")
	p := NewProvider(api, session.New("http://vault", "alice", nil, ""))

	path := filepath.Join(t.TempDir(), "a.bin")
	require.NoError(t, os.WriteFile(path, []byte{1, 2, 3}, 0o644))

	_, err := p.Upload(context.Background(), path, func(int, string) {})
	assert.Equal(t, ReasonUpload, errs.TransferReason(err))
	assert.ErrorContains(t, err, "quota exceeded")
}

func TestParamsUnavailable(t *testing.T) {
	api := newFakeAPI()
	api.paramsErr = errors.New("unreachable")
	p := NewProvider(api, session.New("http://vault", "alice", nil, ""))

	_, err := p.Upload(context.Background(), "x", func(int, string) {})
	assert.Equal(t, ReasonParams, errs.TransferReason(err))
}

func TestDownload(t *testing.T) {
	api := newFakeAPI()
	api.addFile("f1", "notes.md", []byte("# notes"))
	dir := filepath.Join(t.TempDir(), "downloads")
	sess := session.New("http://vault", "bob", []byte("key"), dir)
	p := NewProvider(api, sess)

	var prog progressLog
	require.NoError(t, p.Download(context.Background(), "f1", prog.fn))
	assert.Equal(t, []int{10, 20, 30, 40, 50, 70, 80, 90, 100}, prog.values)
	assert.Equal(t, []string{"bob"}, api.downloads)

	data, err := os.ReadFile(filepath.Join(dir, "notes.md"))
	require.NoError(t, err)
	assert.Equal(t, "# notes", string(data))

	// A second download keeps the first file.
	require.NoError(t, p.Download(context.Background(), "f1", func(int, string) {}))
	_, err = os.Stat(filepath.Join(dir, "notes (1).md"))
	assert.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temporary files left behind")
}

func TestConcurrentDownloadsOfSameNameKeepEveryFile(t *testing.T) {
	const n = 32
	api := newFakeAPI()
	for i := 0; i < n; i++ {
		api.addFile(fmt.Sprintf("f%d", i), "dup.txt", []byte(fmt.Sprintf("copy %d", i)))
	}
	dir := t.TempDir()
	p := NewProvider(api, session.New("http://vault", "bob", []byte("key"), dir))

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			assert.NoError(t, p.Download(context.Background(), id, func(int, string) {}))
		}(fmt.Sprintf("f%d", i))
	}
	wg.Wait()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, n)

	contents := make(map[string]bool)
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		require.NoError(t, err)
		contents[string(data)] = true
	}
	assert.Len(t, contents, n, "every download kept its own content")
}

func TestDownloadHashMismatch(t *testing.T) {
	api := newFakeAPI()
	api.addFile("f1", "a.txt", []byte("original"))
	api.details["f1"].Hash = "00ff"
	dir := t.TempDir()
	p := NewProvider(api, session.New("http://vault", "bob", []byte("key"), dir))

	err := p.Download(context.Background(), "f1", func(int, string) {})
	assert.Equal(t, ReasonHash, errs.TransferReason(err))

	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries, "nothing is saved on a hash mismatch")
}

func TestDownloadUnsafeName(t *testing.T) {
	api := newFakeAPI()
	api.addFile("f1", "../escape.txt", []byte("x"))
	p := NewProvider(api, session.New("http://vault", "bob", []byte("key"), t.TempDir()))

	err := p.Download(context.Background(), "f1", func(int, string) {})
	assert.Equal(t, ReasonSave, errs.TransferReason(err))
	assert.Empty(t, api.downloads, "no download is counted for a rejected name")
}

func TestDownloadUnknownFile(t *testing.T) {
	p := NewProvider(newFakeAPI(), session.New("http://vault", "bob", []byte("key"), t.TempDir()))

	err := p.Download(context.Background(), "missing", func(int, string) {})
	assert.Equal(t, ReasonDetail, errs.TransferReason(err))
	assert.True(t, errs.IsNotFound(err))
}

func TestPrecheck(t *testing.T) {
	sess := session.New("http://vault", "alice", nil, "")
	check := Precheck(sess)

	var cfgErr *errs.ConfigError
	require.ErrorAs(t, check(transfer.Upload), &cfgErr)
	assert.Equal(t, []string{session.ParamSystemParams}, cfgErr.Missing)

	sess.SetSystemParams(json.RawMessage(`{}`))
	assert.NoError(t, check(transfer.Upload))

	require.ErrorAs(t, check(transfer.Download), &cfgErr)
	assert.Equal(t, []string{session.ParamPrivateKey, session.ParamDownloadDir}, cfgErr.Missing)
}

func TestProviderWithSupervisor(t *testing.T) {
	api := newFakeAPI()
	api.addFile("f1", "a.txt", []byte("payload"))
	sess := session.New("http://vault", "bob", []byte("key"), t.TempDir())
	sess.SetSystemParams(json.RawMessage(`{}`))

	sup := transfer.NewSupervisor(NewProvider(api, sess), transfer.WithPrecheck(Precheck(sess)))
	defer sup.Close(context.Background())

	id, err := sup.Submit(transfer.Download, "f1")
	require.NoError(t, err)
	task, err := sup.Await(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, transfer.StateSucceeded, task.State)
	assert.Equal(t, 100, task.Progress)
}
