package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// LocalConfig configures disk storage.
type LocalConfig struct {
	// BasePath is the directory files are written under.
	BasePath string

	// BaseURL is the public prefix Handler is mounted at, e.g.
	// "http://localhost:8080/files".
	BaseURL string

	// SigningKey authenticates download links. Required.
	SigningKey []byte
}

// Local stores files on disk.
type Local struct {
	basePath   string
	baseURL    string
	signingKey []byte
	logger     *slog.Logger
	now        func() time.Time
}

// NewLocal creates the base directory if needed.
func NewLocal(cfg LocalConfig, logger *slog.Logger) (*Local, error) {
	if len(cfg.SigningKey) == 0 {
		return nil, fmt.Errorf("local storage: signing key is required")
	}
	abs, err := filepath.Abs(cfg.BasePath)
	if err != nil {
		return nil, fmt.Errorf("local storage: resolve base path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("local storage: create base path: %w", err)
	}

	logger.Info("initialized local storage", "base_path", abs, "base_url", cfg.BaseURL)
	return &Local{
		basePath:   abs,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		signingKey: cfg.SigningKey,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// resolve maps a key to a path inside basePath, rejecting traversal.
func (s *Local) resolve(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") {
		return "", ErrInvalidKey
	}
	clean := path.Clean(key)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") || clean != key {
		return "", ErrInvalidKey
	}
	full := filepath.Join(s.basePath, filepath.FromSlash(clean))
	if !strings.HasPrefix(full, s.basePath+string(filepath.Separator)) {
		return "", ErrInvalidKey
	}
	return full, nil
}

func (s *Local) Put(ctx context.Context, key string, data io.Reader, opts PutOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.resolve(key)
	if err != nil {
		return opErr("put", key, err)
	}
	if !opts.Overwrite {
		if _, err := os.Stat(p); err == nil {
			return opErr("put", key, ErrKeyExists)
		}
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return opErr("put", key, err)
	}

	// Write to a temp file and rename so readers never see a partial object.
	tmp, err := os.CreateTemp(filepath.Dir(p), ".put-*")
	if err != nil {
		return opErr("put", key, err)
	}
	defer os.Remove(tmp.Name())

	src := data
	if opts.MaxSize > 0 {
		src = io.LimitReader(data, opts.MaxSize+1)
	}
	n, err := io.Copy(tmp, src)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return opErr("put", key, err)
	}
	if opts.MaxSize > 0 && n > opts.MaxSize {
		return opErr("put", key, ErrTooLarge)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return opErr("put", key, err)
	}

	s.logger.Debug("stored file", "key", key, "size", n)
	return nil
}

func (s *Local) Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, ObjectInfo{}, err
	}
	p, err := s.resolve(key)
	if err != nil {
		return nil, ObjectInfo{}, opErr("get", key, err)
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ObjectInfo{}, opErr("get", key, ErrNotFound)
		}
		return nil, ObjectInfo{}, opErr("get", key, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, ObjectInfo{}, opErr("get", key, err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(p))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return f, ObjectInfo{
		Key:          key,
		Size:         st.Size(),
		ContentType:  contentType,
		LastModified: st.ModTime(),
	}, nil
}

func (s *Local) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.resolve(key)
	if err != nil {
		return opErr("delete", key, err)
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return opErr("delete", key, err)
	}
	return nil
}

func (s *Local) Exists(ctx context.Context, key string) (bool, error) {
	p, err := s.resolve(key)
	if err != nil {
		return false, opErr("exists", key, err)
	}
	_, err = os.Stat(p)
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, opErr("exists", key, err)
	}
}

// URL returns BaseURL/key?expires=...&sig=... valid until now+expires.
func (s *Local) URL(ctx context.Context, key string, expires time.Duration) (string, error) {
	if _, err := s.resolve(key); err != nil {
		return "", opErr("url", key, err)
	}
	if expires <= 0 {
		expires = 15 * time.Minute
	}
	exp := strconv.FormatInt(s.now().Add(expires).Unix(), 10)

	q := url.Values{}
	q.Set("expires", exp)
	q.Set("sig", s.sign(key, exp))
	return s.baseURL + "/" + key + "?" + q.Encode(), nil
}

func (s *Local) sign(key, expires string) string {
	mac := hmac.New(sha256.New, s.signingKey)
	mac.Write([]byte(key))
	mac.Write([]byte{0})
	mac.Write([]byte(expires))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a download link's signature and expiry.
func (s *Local) Verify(key, expires, sig string) error {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil || s.now().Unix() >= exp {
		return ErrBadSignature
	}
	want := s.sign(key, expires)
	if !hmac.Equal([]byte(want), []byte(sig)) {
		return ErrBadSignature
	}
	return nil
}

// Handler serves signed download links. Mount it with the BaseURL path
// prefix stripped, e.g. http.StripPrefix("/files", local.Handler()).
func (s *Local) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, "/")
		q := r.URL.Query()
		if err := s.Verify(key, q.Get("expires"), q.Get("sig")); err != nil {
			http.Error(w, "link expired or invalid", http.StatusForbidden)
			return
		}

		body, info, err := s.Get(r.Context(), key)
		if err != nil {
			if IsNotFound(err) {
				http.NotFound(w, r)
				return
			}
			s.logger.Error("failed to serve file", "error", err, "key", key)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		defer body.Close()

		w.Header().Set("Content-Type", info.ContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(key)))
		w.Header().Set("Cache-Control", "private, no-store")
		if rs, ok := body.(io.ReadSeeker); ok {
			http.ServeContent(w, r, path.Base(key), info.LastModified, rs)
			return
		}
		io.Copy(w, body)
	})
}
