package account

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// minKeyLength is the shortest trimmed base58 string accepted as a secret key.
const minKeyLength = 85

// LoadDir reads every *.txt file in dir as one base58-encoded secret key.
// Unreadable or malformed files are logged and skipped. A missing directory
// or a directory without any valid key is an error.
func LoadDir(dir string, logger *slog.Logger) ([]solana.PrivateKey, error) {
	if logger == nil {
		logger = slog.Default()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read wallet dir %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".txt" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	keys := make([]solana.PrivateKey, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		key, err := readKeyFile(path)
		if err != nil {
			logger.Warn("skipping wallet file", slog.String("file", path), slog.String("error", err.Error()))
			continue
		}
		keys = append(keys, key)
	}

	if len(keys) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoWallets, dir)
	}
	logger.Info("wallets loaded", slog.String("dir", dir), slog.Int("count", len(keys)))
	return keys, nil
}

func readKeyFile(path string) (solana.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	encoded := strings.TrimSpace(string(raw))
	if len(encoded) < minKeyLength {
		return nil, fmt.Errorf("key too short: %d chars", len(encoded))
	}
	key, err := solana.PrivateKeyFromBase58(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	return key, nil
}
