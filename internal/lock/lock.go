// Package lock serializes snapshot writers. Several agents may run agentctl
// against one checkout at the same time; a lease file next to the snapshot
// keeps task writes single-writer without blocking readers.
package lock

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	swarmerrors "github.com/codexswarm/agentctl/internal/errors"
)

// DefaultTTL is how long a lease stays valid without being released. A
// crashed writer's lease expires after this and the next writer takes over.
const DefaultTTL = 30 * time.Second

// Lease is the on-disk lock record.
type Lease struct {
	Owner    string    `yaml:"owner"`
	PID      int       `yaml:"pid"`
	Acquired time.Time `yaml:"acquired"`
	TTL      string    `yaml:"ttl"`
}

// TTLDuration parses the lease TTL, falling back to the default.
func (l *Lease) TTLDuration() time.Duration {
	d, err := time.ParseDuration(l.TTL)
	if err != nil || d <= 0 {
		return DefaultTTL
	}
	return d
}

// Stale reports whether the lease may be taken over: its holder process is
// gone, or the lease outlived its TTL.
func (l *Lease) Stale() bool {
	if !processAlive(l.PID) {
		return true
	}
	return time.Since(l.Acquired) > l.TTLDuration()
}

// Guard is the writer lock taken around snapshot mutations.
type Guard interface {
	Acquire() error
	Release() error
}

// NoOp is a Guard that never blocks, for read-only contexts and tests.
type NoOp struct{}

func (NoOp) Acquire() error { return nil }
func (NoOp) Release() error { return nil }

// FileGuard implements Guard with an exclusive lease file.
type FileGuard struct {
	Path  string
	Owner string
	TTL   time.Duration
}

// NewFileGuard builds a guard over the lease file at path.
func NewFileGuard(path, owner string) *FileGuard {
	return &FileGuard{Path: path, Owner: owner, TTL: DefaultTTL}
}

// Acquire takes the lease. A live lease held by someone else is an error; a
// stale one is removed and taken over.
func (g *FileGuard) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(g.Path), 0o755); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}
	for attempt := 0; attempt < 2; attempt++ {
		file, err := os.OpenFile(g.Path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return g.writeLease(file)
		}
		if !os.IsExist(err) {
			return fmt.Errorf("create lock file: %w", err)
		}
		existing, readErr := ReadLease(g.Path)
		if readErr != nil || existing.Stale() {
			// Corrupt or expired lease: remove and retry once.
			_ = os.Remove(g.Path)
			continue
		}
		return &swarmerrors.Error{
			Code: swarmerrors.CodeStateLocked,
			What: fmt.Sprintf("tasks are locked by %s (pid %d)", existing.Owner, existing.PID),
			Why:  fmt.Sprintf("lease %s expires %s", g.Path, existing.Acquired.Add(existing.TTLDuration()).Format(time.RFC3339)),
			Fix:  "Wait for the other agentctl run to finish, or remove the lease file if it is stuck",
		}
	}
	return swarmerrors.Newf(swarmerrors.CodeStateLocked, "unable to acquire lock: %s", g.Path)
}

func (g *FileGuard) writeLease(file *os.File) error {
	lease := Lease{
		Owner:    g.Owner,
		PID:      os.Getpid(),
		Acquired: time.Now().UTC(),
		TTL:      g.ttl().String(),
	}
	data, err := yaml.Marshal(&lease)
	if err != nil {
		file.Close()
		return fmt.Errorf("encode lease: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		return fmt.Errorf("write lease: %w", err)
	}
	return file.Close()
}

func (g *FileGuard) ttl() time.Duration {
	if g.TTL <= 0 {
		return DefaultTTL
	}
	return g.TTL
}

// Release drops the lease when this process holds it. A lease someone else
// took over in the meantime is left alone.
func (g *FileGuard) Release() error {
	lease, err := ReadLease(g.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if lease.PID != os.Getpid() {
		return nil
	}
	if err := os.Remove(g.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock file: %w", err)
	}
	return nil
}

// ReadLease parses the lease file at path.
func ReadLease(path string) (*Lease, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var lease Lease
	if err := yaml.Unmarshal(data, &lease); err != nil {
		return nil, fmt.Errorf("parse lease %s: %w", path, err)
	}
	return &lease, nil
}

// DefaultOwner identifies this writer as user@host.
func DefaultOwner() string {
	username := "unknown"
	if u, err := user.Current(); err == nil && u.Username != "" {
		username = u.Username
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return username + "@" + host
}

// processAlive probes a pid with signal 0. On this host only; a pid from
// another machine always reads as dead, which the TTL covers.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
