package connectors

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Pairing codes and TTLs, grounded on
// _examples/haasonsaas-nexus/internal/pairing/store.go.
const (
	pairingCodeLength = 8
	pairingAlphabet   = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // no 0O1I
	pairingTTL        = time.Hour
)

var (
	ErrPairingNotFound = errors.New("pairing code not found or expired")
	ErrAlreadyPaired   = errors.New("platform user is already paired")
)

// PairingRequest is a one-time code issued to an unknown platform user,
// per spec.md's connector pairing flow.
type PairingRequest struct {
	Code        string    `json:"code"`
	Platform    string    `json:"platform"`
	PlatformID  string    `json:"platform_id"` // chat/user id on that platform
	CreatedAt   time.Time `json:"created_at"`
}

func (p PairingRequest) expired(now time.Time) bool {
	return now.Sub(p.CreatedAt) > pairingTTL
}

type pairingFile struct {
	Pending []PairingRequest  `json:"pending"`
	Paired  map[string]string `json:"paired"` // "platform:platform_id" -> module slug
}

// PairingStore persists pending codes and confirmed pairings as one
// JSON file under the vault. The server creates a single store that
// every connector shares; entries are keyed by platform and user id.
type PairingStore struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewPairingStore constructs a store backed by path (created on first write).
func NewPairingStore(path string) *PairingStore {
	return &PairingStore{path: path, now: time.Now}
}

// PairingFilePath returns the canonical pairing-store path for a
// vault, alongside botsConfigPath's .parachute layout.
func PairingFilePath(vaultRoot string) string {
	return filepath.Join(vaultRoot, ".parachute", "pairing.json")
}

func (s *PairingStore) load() (pairingFile, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return pairingFile{Paired: map[string]string{}}, nil
	}
	if err != nil {
		return pairingFile{}, err
	}
	var f pairingFile
	if err := json.Unmarshal(data, &f); err != nil {
		return pairingFile{}, err
	}
	if f.Paired == nil {
		f.Paired = map[string]string{}
	}
	return f, nil
}

func (s *PairingStore) save(f pairingFile) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}

func pairKey(platform, platformID string) string {
	return platform + ":" + platformID
}

// IsPaired reports whether platformID on platform already has a linked
// module/workspace.
func (s *PairingStore) IsPaired(platform, platformID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.load()
	if err != nil {
		return "", false
	}
	slug, ok := f.Paired[pairKey(platform, platformID)]
	return slug, ok
}

// RequestCode issues (or reuses) a pending pairing code for an unknown
// platform user.
func (s *PairingStore) RequestCode(platform, platformID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.load()
	if err != nil {
		return "", err
	}

	now := s.now()
	kept := f.Pending[:0]
	for _, req := range f.Pending {
		if req.expired(now) {
			continue
		}
		if req.Platform == platform && req.PlatformID == platformID {
			kept = append(kept, req)
			if err := s.save(f); err != nil {
				return "", err
			}
			return req.Code, nil
		}
		kept = append(kept, req)
	}
	f.Pending = kept

	code, err := generatePairingCode()
	if err != nil {
		return "", err
	}
	f.Pending = append(f.Pending, PairingRequest{
		Code: code, Platform: platform, PlatformID: platformID, CreatedAt: now,
	})
	if err := s.save(f); err != nil {
		return "", err
	}
	return code, nil
}

// Confirm links a pending code's platform user to a module slug, called
// from the companion-app side of the pairing flow (not the connector).
func (s *PairingStore) Confirm(code, moduleSlug string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.load()
	if err != nil {
		return err
	}

	now := s.now()
	for i, req := range f.Pending {
		if req.expired(now) {
			continue
		}
		if strings.EqualFold(req.Code, code) {
			f.Paired[pairKey(req.Platform, req.PlatformID)] = moduleSlug
			f.Pending = append(f.Pending[:i], f.Pending[i+1:]...)
			return s.save(f)
		}
	}
	return ErrPairingNotFound
}

func generatePairingCode() (string, error) {
	buf := make([]byte, pairingCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate pairing code: %w", err)
	}
	out := make([]byte, pairingCodeLength)
	for i, b := range buf {
		out[i] = pairingAlphabet[int(b)%len(pairingAlphabet)]
	}
	return string(out), nil
}
