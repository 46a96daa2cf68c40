// Package capability owns capability descriptors: loading them from a
// descriptor source, verifying integrity hashes, and tracking which
// capabilities are active.
package capability

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"switchboard/internal/domain"

	"gopkg.in/yaml.v3"
)

// LoadFromDirectory loads capability descriptors from YAML files in a
// directory. Files must have .yaml or .yml extension. A malformed file
// is skipped with a warning, never fatal to the whole load. A missing
// directory yields an empty set.
func LoadFromDirectory(dir string, logger *slog.Logger) ([]domain.Descriptor, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		logger.Debug("capability directory does not exist, skipping", "dir", dir)
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read capability dir: %w", err)
	}

	var descriptors []domain.Descriptor
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("cannot read capability file", "path", path, "err", err)
			continue
		}

		var d domain.Descriptor
		if err := yaml.Unmarshal(data, &d); err != nil {
			logger.Warn("cannot parse capability file", "path", path, "err", err)
			continue
		}

		if d.Name == "" {
			d.Name = strings.TrimSuffix(name, filepath.Ext(name))
		}
		if d.Source == "" {
			d.Source = domain.SourceUser
		}
		if err := validate(d); err != nil {
			logger.Warn("invalid capability descriptor", "path", path, "err", err)
			continue
		}

		// The hash covers the full file bytes: descriptor and instructions.
		d.IntegrityHash = hashBytes(data)

		logger.Info("loaded capability descriptor", "name", d.Name, "path", path)
		descriptors = append(descriptors, d)
	}

	return descriptors, nil
}

func validate(d domain.Descriptor) error {
	switch d.OperationKind {
	case "", domain.KindRead, domain.KindAct:
		// Missing kind is legal; the trust gate treats it as ACT.
	default:
		return fmt.Errorf("operation_kind %q must be read or act", d.OperationKind)
	}
	if len(d.Triggers) == 0 {
		return fmt.Errorf("capability %q has no triggers", d.Name)
	}
	for i, t := range d.Triggers {
		if t.Pattern == "" && len(t.Keywords) == 0 {
			return fmt.Errorf("trigger %d of %q has neither pattern nor keywords", i, d.Name)
		}
		if t.Pattern != "" {
			if _, err := regexp.Compile(t.Pattern); err != nil {
				return fmt.Errorf("trigger %d of %q: %w", i, d.Name, err)
			}
		}
		if t.Operation != "" && !d.Declares(t.Operation) {
			return fmt.Errorf("trigger %d of %q maps to undeclared operation %q", i, d.Name, t.Operation)
		}
	}
	return nil
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashDescriptor computes the integrity hash for a code-registered
// descriptor from its canonical YAML form.
func HashDescriptor(d domain.Descriptor) string {
	d.IntegrityHash = ""
	d.Active = false
	data, err := yaml.Marshal(d)
	if err != nil {
		// Descriptors are plain data; Marshal cannot realistically fail.
		return ""
	}
	return hashBytes(data)
}
