// Package profile persists the signed-in chat profile between sessions.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ashureev/chat-widget/internal/domain"
)

// DefaultFileName is the fixed name of the local profile blob.
const DefaultFileName = "chat_profile.json"

// Repository stores at most one profile. Load returns nil, nil when no
// usable profile exists.
type Repository interface {
	Load(ctx context.Context) (*domain.Profile, error)
	Save(ctx context.Context, p domain.Profile) error
	Clear(ctx context.Context) error
}

// FileRepository keeps the profile as a JSON blob on disk.
type FileRepository struct {
	path string
}

// NewFileRepository returns a repository backed by the file at path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{path: path}
}

// DefaultPath returns the profile location under the user's config directory.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return DefaultFileName
	}
	return filepath.Join(dir, "chat-widget", DefaultFileName)
}

// Load reads the blob. Missing or malformed blobs are treated as absent.
func (r *FileRepository) Load(_ context.Context) (*domain.Profile, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}

	var p domain.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		slog.Warn("Ignoring malformed profile blob", "path", r.path, "error", err)
		return nil, nil
	}
	if !p.Complete() {
		return nil, nil
	}
	return &p, nil
}

// Save writes the blob atomically.
func (r *FileRepository) Save(_ context.Context, p domain.Profile) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o700); err != nil {
		return fmt.Errorf("create profile directory: %w", err)
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("replace profile: %w", err)
	}
	return nil
}

// Clear removes the blob.
func (r *FileRepository) Clear(_ context.Context) error {
	if err := os.Remove(r.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove profile: %w", err)
	}
	return nil
}

// DeviceStore is the subset of the store used for device-scoped profiles.
type DeviceStore interface {
	GetDeviceProfile(ctx context.Context, deviceID string) (*domain.Profile, error)
	UpsertDeviceProfile(ctx context.Context, deviceID string, profile domain.Profile) error
	DeleteDeviceProfile(ctx context.Context, deviceID string) error
}

// DeviceRepository scopes profile persistence to one browser device.
type DeviceRepository struct {
	store    DeviceStore
	deviceID string
}

// NewDeviceRepository returns a repository for deviceID.
func NewDeviceRepository(store DeviceStore, deviceID string) *DeviceRepository {
	return &DeviceRepository{store: store, deviceID: deviceID}
}

// Load returns the device's profile, if any.
func (r *DeviceRepository) Load(ctx context.Context) (*domain.Profile, error) {
	p, err := r.store.GetDeviceProfile(ctx, r.deviceID)
	if err != nil {
		return nil, err
	}
	if !p.Complete() {
		return nil, nil
	}
	return p, nil
}

// Save stores the device's profile.
func (r *DeviceRepository) Save(ctx context.Context, p domain.Profile) error {
	return r.store.UpsertDeviceProfile(ctx, r.deviceID, p)
}

// Clear forgets the device's profile.
func (r *DeviceRepository) Clear(ctx context.Context) error {
	return r.store.DeleteDeviceProfile(ctx, r.deviceID)
}
