package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vaultlink/vaultlink/internal/config"
	"github.com/vaultlink/vaultlink/internal/counter"
	"github.com/vaultlink/vaultlink/internal/models"
)

// fakeVault is an in-memory storage service speaking the envelope protocol.
type fakeVault struct {
	mu           sync.Mutex
	files        map[string]*models.FileRecord
	ciphertexts  map[string]string
	order        []string
	nextID       int
	rejectUpload bool
	uploads      int
	deletes      int
}

func newFakeVault() *fakeVault {
	return &fakeVault{
		files:       make(map[string]*models.FileRecord),
		ciphertexts: make(map[string]string),
	}
}

// add stores a record uploaded at the given time.
func (v *fakeVault) add(id, name string, size, downloads uint64, uploaded time.Time, status models.Status) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.files[id] = &models.FileRecord{
		ID:               id,
		Name:             name,
		SizeRaw:          counter.Encode(counter.FromUint64(size)),
		Uploader:         "alice",
		UploadTimeRaw:    counter.Encode(counter.FromUint64(uint64(uploaded.UnixMilli()))),
		DownloadCountRaw: counter.Encode(counter.FromUint64(downloads)),
		Status:           status,
	}
	v.order = append(v.order, id)
}

func (v *fakeVault) has(id string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.files[id]
	return ok
}

func (v *fakeVault) byName(name string) *models.FileRecord {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, id := range v.order {
		if f, ok := v.files[id]; ok && f.Name == name {
			cp := *f
			return &cp
		}
	}
	return nil
}

func writeOK(w http.ResponseWriter, data interface{}) {
	raw, _ := json.Marshal(data)
	_ = json.NewEncoder(w).Encode(models.Envelope{Status: "success", Data: raw})
}

func writeFail(w http.ResponseWriter, code int, msg string) {
	_ = json.NewEncoder(w).Encode(models.Envelope{Status: "error", ErrorCode: code, ErrorMessage: msg})
}

func (v *fakeVault) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/file/list", func(w http.ResponseWriter, r *http.Request) {
		v.mu.Lock()
		defer v.mu.Unlock()
		var list []models.FileRecord
		for _, id := range v.order {
			if f, found := v.files[id]; found && f.Uploader == r.URL.Query().Get("username") {
				list = append(list, *f)
			}
		}
		writeOK(w, models.FileListData{FilesInfo: list})
	})

	mux.HandleFunc("/file/delete", func(w http.ResponseWriter, r *http.Request) {
		var req models.DeleteRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		v.mu.Lock()
		defer v.mu.Unlock()
		if _, found := v.files[req.FileUUID]; !found {
			w.WriteHeader(http.StatusNotFound)
			writeFail(w, 404, "file not found")
			return
		}
		delete(v.files, req.FileUUID)
		v.deletes++
		writeOK(w, nil)
	})

	mux.HandleFunc("/system/parameters", func(w http.ResponseWriter, r *http.Request) {
		writeOK(w, map[string]string{"curve": "test"})
	})

	mux.HandleFunc("/file/upload", func(w http.ResponseWriter, r *http.Request) {
		var req models.UploadRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		v.mu.Lock()
		defer v.mu.Unlock()
		v.uploads++
		if v.rejectUpload {
			writeFail(w, 500, "storage quota exceeded")
			return
		}
		v.nextID++
		id := fmt.Sprintf("up-%d", v.nextID)
		v.files[id] = &models.FileRecord{
			ID:               id,
			Name:             req.FileName,
			SizeRaw:          req.FileSize,
			Uploader:         req.UploadUser,
			UploadTimeRaw:    counter.Encode(counter.FromUint64(uint64(time.Now().UnixMilli()))),
			Hash:             req.FileHash,
			DownloadCountRaw: counter.Encode(counter.Zero),
			Status:           models.StatusActive,
		}
		v.ciphertexts[id] = req.FileCiphertext
		v.order = append(v.order, id)
		writeOK(w, models.UploadResult{FileUUID: id})
	})

	mux.HandleFunc("/file/detail", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("file_uuid")
		v.mu.Lock()
		defer v.mu.Unlock()
		f, found := v.files[id]
		if !found {
			w.WriteHeader(http.StatusNotFound)
			writeFail(w, 404, "file not found")
			return
		}
		writeOK(w, models.FileDetail{
			ID:               f.ID,
			Name:             f.Name,
			SizeRaw:          f.SizeRaw,
			Hash:             f.Hash,
			Ciphertext:       v.ciphertexts[id],
			DownloadCountRaw: f.DownloadCountRaw,
		})
	})

	mux.HandleFunc("/file/download", func(w http.ResponseWriter, r *http.Request) {
		writeOK(w, models.DownloadGrant{EncSharesList: []json.RawMessage{json.RawMessage(`"share-1"`)}})
	})

	return mux
}

// testEnv isolates one CLI run: a config file in a temp dir, a fake
// vault, and no VAULTLINK_* variables from the host.
type testEnv struct {
	t      *testing.T
	vault  *fakeVault
	server *httptest.Server
	dir    string
	config string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	for _, k := range []string{config.EnvAddress, config.EnvUsername, config.EnvPrivateKeyFile, config.EnvDownloadDir} {
		t.Setenv(k, "")
	}
	vault := newFakeVault()
	srv := httptest.NewServer(vault.handler())
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	return &testEnv{
		t:      t,
		vault:  vault,
		server: srv,
		dir:    dir,
		config: filepath.Join(dir, "config.ini"),
	}
}

// run executes the CLI with stdin and returns everything written to
// stdout and stderr.
func (te *testEnv) run(stdin string, args ...string) (string, error) {
	te.t.Helper()
	root := NewRootCmd()
	AddCommands(root)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"-c", te.config}, args...))
	err := root.Execute()
	return out.String(), err
}

// connected runs with --address and --username alice.
func (te *testEnv) connected(args ...string) (string, error) {
	te.t.Helper()
	return te.run("", append([]string{"--address", te.server.URL, "--username", "alice"}, args...)...)
}

// writeFile creates a file under the test dir.
func (te *testEnv) writeFile(name, content string) string {
	te.t.Helper()
	path := filepath.Join(te.dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		te.t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		te.t.Fatal(err)
	}
	return path
}

// seed adds three files owned by alice plus one owned by bob.
func (te *testEnv) seed() {
	day := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	te.vault.add("f1", "report.pdf", 2048, 3, day, models.StatusActive)
	te.vault.add("f2", "holiday.png", 1024, 10, day.Add(24*time.Hour), models.StatusActive)
	te.vault.add("f3", "archive.zip", 4096, 0, day.Add(48*time.Hour), models.StatusInactive)
	te.vault.mu.Lock()
	te.vault.files["b1"] = &models.FileRecord{ID: "b1", Name: "bob.txt", Uploader: "bob", Status: models.StatusActive}
	te.vault.order = append(te.vault.order, "b1")
	te.vault.mu.Unlock()
}
