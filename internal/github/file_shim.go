package github

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"sort"
	"sync"

	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/domain"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/log"
)

// shimState is the on-disk format of the file shim.
type shimState struct {
	// OutsideCollaborators maps org name to collaborator logins.
	OutsideCollaborators map[string][]string `json:"outside_collaborators"`
	// Members maps org name to active member logins.
	Members map[string][]string `json:"members"`
}

// FileShim is a testing implementation backed by a JSON file instead of
// the GitHub API.
type FileShim struct {
	filePath string
	orgs     []string
	mu       sync.RWMutex
}

// NewFileShim creates a file-backed shim tracking orgs.
func NewFileShim(filePath string, orgs []string) *FileShim {
	sorted := append([]string(nil), orgs...)
	sort.Strings(sorted)
	return &FileShim{filePath: filePath, orgs: sorted}
}

func (f *FileShim) Orgs() []string {
	return append([]string(nil), f.orgs...)
}

func (f *FileShim) read() (*shimState, error) {
	data, err := os.ReadFile(f.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &shimState{}, nil
		}
		return nil, fmt.Errorf("reading shim file: %w", err)
	}
	var state shimState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, domain.DataIntegrity(fmt.Errorf("parsing shim file: %w", err))
	}
	return &state, nil
}

func (f *FileShim) ListOutsideCollaborators(ctx context.Context, org string) ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	state, err := f.read()
	if err != nil {
		return nil, err
	}
	return append([]string(nil), state.OutsideCollaborators[org]...), nil
}

func (f *FileShim) RemoveOutsideCollaborator(ctx context.Context, org, handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	state, err := f.read()
	if err != nil {
		return err
	}
	collabs := state.OutsideCollaborators[org]
	idx := slices.Index(collabs, handle)
	if idx < 0 {
		return fmt.Errorf("%w: %s is not an outside collaborator in %s", domain.ErrNotFound, handle, org)
	}
	state.OutsideCollaborators[org] = slices.Delete(collabs, idx, idx+1)

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling shim state: %w", err)
	}
	if err := os.WriteFile(f.filePath, data, 0644); err != nil {
		return fmt.Errorf("writing shim file: %w", err)
	}

	log.FromContext(ctx).Info("file shim removed outside collaborator", "org", org, "handle", handle, "path", f.filePath)
	return nil
}

func (f *FileShim) IsActiveMember(ctx context.Context, org, handle string) (bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	state, err := f.read()
	if err != nil {
		return false, err
	}
	return slices.Contains(state.Members[org], handle), nil
}
