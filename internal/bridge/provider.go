// Package bridge implements transfer.Provider on top of the storage service
// API: it reads and seals local files for upload, and fetches, opens,
// verifies and saves files on download.
package bridge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vaultlink/vaultlink/internal/constants"
	"github.com/vaultlink/vaultlink/internal/counter"
	"github.com/vaultlink/vaultlink/internal/diskspace"
	"github.com/vaultlink/vaultlink/internal/errs"
	"github.com/vaultlink/vaultlink/internal/logging"
	"github.com/vaultlink/vaultlink/internal/models"
	"github.com/vaultlink/vaultlink/internal/session"
	"github.com/vaultlink/vaultlink/internal/transfer"
	"github.com/vaultlink/vaultlink/internal/validation"
)

// Failure reasons reported through errs.TransferError.
const (
	ReasonParams   = "system parameters unavailable"
	ReasonRead     = "cannot read file"
	ReasonSeal     = "seal failed"
	ReasonUpload   = "upload rejected"
	ReasonDetail   = "file detail unavailable"
	ReasonShares   = "key shares unavailable"
	ReasonOpen     = "open failed"
	ReasonHash     = "hash mismatch"
	ReasonSave     = "cannot save file"
	ReasonDiskFull = "insufficient disk space"
)

// API is the subset of the storage client the provider needs.
type API interface {
	SystemParameters(ctx context.Context) (json.RawMessage, error)
	UploadFile(ctx context.Context, req models.UploadRequest) (string, error)
	FileDetail(ctx context.Context, fileID string) (*models.FileDetail, error)
	RequestDownload(ctx context.Context, fileID, user string) (*models.DownloadGrant, error)
}

// Provider moves files between the local disk and the storage service.
type Provider struct {
	api    API
	sess   *session.Session
	sealer Sealer
	logger *logging.Logger
}

// Option configures a Provider.
type Option func(*Provider)

// WithSealer replaces the default PlainSealer.
func WithSealer(s Sealer) Option {
	return func(p *Provider) { p.sealer = s }
}

// WithLogger sets the provider logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// NewProvider creates a provider bound to a session.
func NewProvider(api API, sess *session.Session, opts ...Option) *Provider {
	p := &Provider{api: api, sess: sess, sealer: PlainSealer{}}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logging.OrNop(p.logger).Component("bridge")
	return p
}

var _ transfer.Provider = (*Provider)(nil)

// Precheck returns a transfer.Precheck that validates the session for the
// direction of each submission.
func Precheck(sess *session.Session) transfer.Precheck {
	return func(dir transfer.Direction) error {
		if dir == transfer.Download {
			return sess.Check(session.OpDownload)
		}
		return sess.Check(session.OpUpload)
	}
}

// Upload reads localPath, seals it and stores it. It returns the new file id.
func (p *Provider) Upload(ctx context.Context, localPath string, progress transfer.ProgressFunc) (string, error) {
	progress(10, "initializing upload")
	params, err := p.params(ctx)
	if err != nil {
		return "", fail(ReasonParams, err)
	}

	progress(20, "reading file")
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", fail(ReasonRead, err)
	}
	digest := sha256.Sum256(data)

	progress(30, "generating key")
	progress(50, "sealing file")
	sealed, err := p.sealer.Seal(ctx, params, data)
	if err != nil {
		return "", fail(ReasonSeal, err)
	}

	progress(70, "uploading")
	dir, name := filepath.Split(localPath)
	fileID, err := p.api.UploadFile(ctx, models.UploadRequest{
		FileName:       name,
		FilePath:       strings.TrimSuffix(dir, string(filepath.Separator)),
		FileCiphertext: sealed.Ciphertext,
		FileHash:       hex.EncodeToString(digest[:]),
		FileSize:       counter.Encode(counter.FromUint64(uint64(len(data)))),
		FileKey:        sealed.Key,
		UploadUser:     p.sess.Username(),
	})
	if err != nil {
		return "", fail(ReasonUpload, err)
	}

	p.logger.Info().Str("file", name).Str("id", fileID).Int("bytes", len(data)).Msg("upload complete")
	progress(100, "upload complete")
	return fileID, nil
}

// Download fetches fileID, opens it, checks its hash and saves it under the
// session's download directory. An existing file is never overwritten.
func (p *Provider) Download(ctx context.Context, fileID string, progress transfer.ProgressFunc) error {
	progress(10, "initializing download")
	params, err := p.params(ctx)
	if err != nil {
		return fail(ReasonParams, err)
	}

	progress(20, "fetching ciphertext")
	detail, err := p.api.FileDetail(ctx, fileID)
	if err != nil {
		return fail(ReasonDetail, err)
	}
	if err := validation.ValidateFilename(detail.Name); err != nil {
		return fail(ReasonSave, err)
	}

	progress(30, "fetching key shares")
	grant, err := p.api.RequestDownload(ctx, fileID, p.sess.Username())
	if err != nil {
		return fail(ReasonShares, err)
	}

	progress(40, "verifying shares")
	progress(50, "recovering key")
	progress(70, "opening file")
	data, err := p.sealer.Open(ctx, OpenInput{
		Params:     params,
		Detail:     detail,
		Shares:     grant.EncSharesList,
		PrivateKey: p.sess.Credentials(),
	})
	if err != nil {
		return fail(ReasonOpen, err)
	}

	progress(80, "verifying hash")
	digest := sha256.Sum256(data)
	if got := hex.EncodeToString(digest[:]); !strings.EqualFold(got, detail.Hash) {
		return fail(ReasonHash, fmt.Errorf("expected %s, got %s", detail.Hash, got))
	}

	progress(90, "saving file")
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := p.save(detail.Name, data)
	if err != nil {
		if diskspace.IsInsufficientSpaceError(err) {
			return fail(ReasonDiskFull, err)
		}
		return fail(ReasonSave, err)
	}

	p.logger.Info().Str("id", fileID).Str("path", path).Int("bytes", len(data)).Msg("download complete")
	progress(100, "download complete")
	return nil
}

// params returns the session's system parameters, fetching and storing
// them on first use.
func (p *Provider) params(ctx context.Context) (json.RawMessage, error) {
	if params := p.sess.SystemParams(); len(params) > 0 {
		return params, nil
	}
	params, err := p.api.SystemParameters(ctx)
	if err != nil {
		return nil, err
	}
	p.sess.SetSystemParams(params)
	return params, nil
}

// save writes data to a fresh file in the download directory through a
// temporary file. The final name is reserved with an exclusive create, so
// concurrent downloads of the same name end up in distinct files.
func (p *Provider) save(name string, data []byte) (string, error) {
	dir := p.sess.DownloadDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	if err := validation.ValidatePathInDirectory(filepath.Join(dir, name), dir); err != nil {
		return "", err
	}
	if err := diskspace.CheckAvailableSpace(filepath.Join(dir, name), int64(len(data)), diskspace.DefaultSafetyMargin); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(dir, constants.PartialFilePattern)
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", err
	}

	target, err := validation.ClaimUniquePath(dir, name)
	if err != nil {
		os.Remove(tmpName)
		return "", err
	}
	// Replaces our own empty placeholder only.
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		os.Remove(target)
		return "", err
	}
	return target, nil
}

func fail(reason string, err error) error {
	return &errs.TransferError{Reason: reason, Err: err}
}
