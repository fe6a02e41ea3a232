package retention

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"chatrelay/pkg/logger"
	"chatrelay/pkg/timeutil"
)

var errNotOwner = errors.New("retention: lease held by another owner")

// fileLease is a cross-process lock backed by a JSON file in the retention
// state dir. It expires on its own if the holder dies.
type fileLease struct {
	path string
}

type leaseFile struct {
	Owner   string `json:"owner"`
	Expires string `json:"expires"`
}

func newFileLease(dir string) *fileLease {
	return &fileLease{path: filepath.Join(dir, "retention.lock")}
}

func (l *fileLease) write(path, owner string, ttl time.Duration) error {
	b, err := json.Marshal(leaseFile{Owner: owner, Expires: timeutil.Now().Add(ttl).Format(time.RFC3339Nano)})
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

func (l *fileLease) read() (leaseFile, error) {
	var lf leaseFile
	data, err := os.ReadFile(l.path)
	if err != nil {
		return lf, err
	}
	err = json.Unmarshal(data, &lf)
	return lf, err
}

// Acquire takes the lease for ttl. It returns false, nil when a live lease
// belongs to someone else.
func (l *fileLease) Acquire(owner string, ttl time.Duration) (bool, error) {
	tmp := l.path + "." + owner + ".tmp"
	if err := l.write(tmp, owner, ttl); err != nil {
		return false, fmt.Errorf("write lease: %w", err)
	}
	defer os.Remove(tmp)

	// link fails if the lock exists, so creation is atomic
	if err := os.Link(tmp, l.path); err == nil {
		logger.Debug("lease_acquired", "path", l.path, "owner", owner)
		return true, nil
	}

	existing, err := l.read()
	if err != nil {
		return false, fmt.Errorf("read lease: %w", err)
	}
	exp, _ := time.Parse(time.RFC3339Nano, existing.Expires)
	if exp.After(timeutil.Now()) {
		logger.Info("lease_currently_held", "path", l.path, "owner", existing.Owner)
		return false, nil
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return false, fmt.Errorf("replace expired lease: %w", err)
	}
	logger.Info("lease_acquired_expired", "path", l.path, "owner", owner, "previous", existing.Owner)
	return true, nil
}

// Renew pushes the expiry of a lease owner holds.
func (l *fileLease) Renew(owner string, ttl time.Duration) error {
	existing, err := l.read()
	if err != nil {
		return err
	}
	if existing.Owner != owner {
		return errNotOwner
	}
	tmp := l.path + "." + owner + ".tmp"
	if err := l.write(tmp, owner, ttl); err != nil {
		return err
	}
	return os.Rename(tmp, l.path)
}

func (l *fileLease) Release(owner string) error {
	existing, err := l.read()
	if err != nil {
		return err
	}
	if existing.Owner != owner {
		return errNotOwner
	}
	return os.Remove(l.path)
}
