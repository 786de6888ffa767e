package wallet

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"daoup/internal/chain"
)

// FileKeystore serves a single hex-encoded secp256k1 key stored in a file.
// An empty file acts as a locked keystore and rejects requests.
type FileKeystore struct {
	path   string
	prefix string
	logger *zap.Logger

	changes chan struct{}

	mu     sync.Mutex
	tokens map[string][]string
}

// NewFileKeystore creates a keystore reading path and deriving addresses with prefix.
func NewFileKeystore(path, prefix string, logger *zap.Logger) *FileKeystore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileKeystore{
		path:    filepath.Clean(path),
		prefix:  prefix,
		logger:  logger,
		changes: make(chan struct{}, 1),
		tokens:  make(map[string][]string),
	}
}

func (k *FileKeystore) readKey() (string, error) {
	if k.path == "" || k.path == "." {
		return "", ErrNotInstalled
	}
	data, err := os.ReadFile(k.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNotInstalled
		}
		return "", fmt.Errorf("read key file: %w", err)
	}
	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", ErrRejected
	}
	return key, nil
}

func (k *FileKeystore) Enable(ctx context.Context, chainID string) error {
	_, err := k.readKey()
	return err
}

func (k *FileKeystore) OfflineSigner(ctx context.Context, chainID string) (chain.Signer, error) {
	key, err := k.readKey()
	if err != nil {
		return nil, err
	}
	signer, err := chain.NewLocalSigner(key, k.prefix)
	if err != nil {
		return nil, fmt.Errorf("load signer: %w", err)
	}
	return signer, nil
}

func (k *FileKeystore) SuggestToken(ctx context.Context, chainID, token string) error {
	if _, err := k.readKey(); err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, existing := range k.tokens[chainID] {
		if existing == token {
			return nil
		}
	}
	k.tokens[chainID] = append(k.tokens[chainID], token)
	k.logger.Info("token added to keystore", zap.String("chain_id", chainID), zap.String("token", token))
	return nil
}

// Tokens lists tokens suggested for chainID.
func (k *FileKeystore) Tokens(chainID string) []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]string(nil), k.tokens[chainID]...)
}

func (k *FileKeystore) Changes() <-chan struct{} {
	return k.changes
}

// Watch emits a change whenever the key file is written, created, removed, or renamed.
// It blocks until ctx is done.
func (k *FileKeystore) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(k.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(k.path), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != k.path {
				continue
			}
			k.logger.Debug("key file changed", zap.String("op", event.Op.String()))
			select {
			case k.changes <- struct{}{}:
			default:
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			k.logger.Warn("key file watcher error", zap.Error(err))
		}
	}
}
