// Package tokenfile persists an Aquicore token pair as a JSON file. The pair
// is stored in oauth2.Token form next to a small metadata map (username,
// save time) so other OAuth2-aware tools can read the file.
package tokenfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"

	"github.com/tonimelisma/aquicore-go/pkg/aquicore"
)

// FilePerms restricts token files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the tokens directory.
const DirPerms = 0o700

// Metadata keys written alongside the token.
const (
	MetaUsername = "username"
	MetaSavedAt  = "saved_at"
)

// File is the on-disk format.
type File struct {
	Token *oauth2.Token     `json:"token"`
	Meta  map[string]string `json:"meta,omitempty"`
}

// Load reads a token file. A missing file yields an empty pair and no error.
func Load(path string) (aquicore.TokenPair, map[string]string, error) {
	tf, err := read(path)
	if err != nil || tf == nil {
		return aquicore.TokenPair{}, nil, err
	}

	if tf.Token == nil {
		return aquicore.TokenPair{}, nil, fmt.Errorf("tokenfile: %s missing token field (re-login required)", path)
	}

	pair := aquicore.TokenPairFromOAuth2(tf.Token)
	if pair.AccessToken == "" && pair.RefreshToken == "" {
		return aquicore.TokenPair{}, nil, fmt.Errorf("tokenfile: %s has empty credentials (re-login required)", path)
	}

	return pair, tf.Meta, nil
}

// ReadMeta reads only the metadata. Returns (nil, nil) if the file does not
// exist.
func ReadMeta(path string) (map[string]string, error) {
	tf, err := read(path)
	if err != nil || tf == nil {
		return nil, err
	}

	return tf.Meta, nil
}

func read(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("tokenfile: reading %s: %w", path, err)
	}

	var tf File
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("tokenfile: decoding %s: %w", path, err)
	}

	return &tf, nil
}

// Save writes the pair atomically (temp file + rename) with 0600
// permissions. Never logs token values.
func Save(path string, pair aquicore.TokenPair, meta map[string]string) error {
	if pair.AccessToken == "" && pair.RefreshToken == "" {
		return errors.New("tokenfile: refusing to save empty token pair")
	}

	data, err := json.MarshalIndent(File{Token: pair.OAuth2Token(), Meta: meta}, "", "  ")
	if err != nil {
		return fmt.Errorf("tokenfile: encoding: %w", err)
	}

	dir := filepath.Dir(path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("tokenfile: creating directory %s: %w", dir, mkErr)
	}

	// Same directory keeps the rename on one filesystem.
	tmp, err := os.CreateTemp(dir, ".token-*.tmp")
	if err != nil {
		return fmt.Errorf("tokenfile: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := writeSynced(tmp, data); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("tokenfile: renaming: %w", err)
	}

	success = true

	return nil
}

func writeSynced(f *os.File, data []byte) error {
	if err := f.Chmod(FilePerms); err != nil {
		f.Close()
		return fmt.Errorf("tokenfile: setting permissions: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("tokenfile: writing: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("tokenfile: syncing: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("tokenfile: closing: %w", err)
	}

	return nil
}

// Delete removes the token file. A missing file is not an error.
func Delete(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("tokenfile: removing %s: %w", path, err)
	}

	return nil
}
