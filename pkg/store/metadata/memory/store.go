// Package memory implements an in-memory metadata store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/marmos91/fsgate/pkg/store/metadata"
)

// MemoryMetadataStore keeps inodes in a map plus a parent -> children index.
//
// Returned inodes are copies; callers may mutate them freely.
type MemoryMetadataStore struct {
	mu       sync.RWMutex
	inodes   map[string]*metadata.Inode
	children map[string]map[string]struct{}
}

var _ metadata.MetadataStore = (*MemoryMetadataStore)(nil)

// NewMemoryMetadataStore creates an empty store.
func NewMemoryMetadataStore() *MemoryMetadataStore {
	return &MemoryMetadataStore{
		inodes:   make(map[string]*metadata.Inode),
		children: make(map[string]map[string]struct{}),
	}
}

func (s *MemoryMetadataStore) Get(ctx context.Context, p string) (*metadata.Inode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	inode, ok := s.inodes[p]
	if !ok {
		return nil, fmt.Errorf("%s: %w", p, metadata.ErrNotFound)
	}
	return inode.Clone(), nil
}

func (s *MemoryMetadataStore) Create(ctx context.Context, inode *metadata.Inode) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p, err := metadata.CleanPath(inode.Path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.inodes[p]; exists {
		return fmt.Errorf("%s: %w", p, metadata.ErrAlreadyExists)
	}

	parent := metadata.Parent(p)
	if p != metadata.Root {
		if _, ok := s.inodes[parent]; !ok {
			return fmt.Errorf("parent %s: %w", parent, metadata.ErrNotFound)
		}
	}

	stored := inode.Clone()
	stored.Path = p
	s.insert(stored)
	return nil
}

// insert stores inode and links it under its parent. Caller holds mu.
func (s *MemoryMetadataStore) insert(inode *metadata.Inode) {
	s.inodes[inode.Path] = inode
	if inode.Path == metadata.Root {
		return
	}
	parent := metadata.Parent(inode.Path)
	if s.children[parent] == nil {
		s.children[parent] = make(map[string]struct{})
	}
	s.children[parent][inode.Path] = struct{}{}
}

// remove unlinks p from the maps. Caller holds mu.
func (s *MemoryMetadataStore) remove(p string) {
	delete(s.inodes, p)
	delete(s.children, p)
	if siblings := s.children[metadata.Parent(p)]; siblings != nil {
		delete(siblings, p)
	}
}

func (s *MemoryMetadataStore) Update(ctx context.Context, inode *metadata.Inode) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.inodes[inode.Path]; !ok {
		return fmt.Errorf("%s: %w", inode.Path, metadata.ErrNotFound)
	}
	s.inodes[inode.Path] = inode.Clone()
	return nil
}

func (s *MemoryMetadataStore) Delete(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.inodes[p]; !ok {
		return fmt.Errorf("%s: %w", p, metadata.ErrNotFound)
	}
	if len(s.children[p]) > 0 {
		return fmt.Errorf("%s: %w", p, metadata.ErrNotEmpty)
	}

	s.remove(p)
	return nil
}

func (s *MemoryMetadataStore) List(ctx context.Context, dir string) ([]*metadata.Inode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.inodes[dir]; !ok {
		return nil, fmt.Errorf("%s: %w", dir, metadata.ErrNotFound)
	}

	result := make([]*metadata.Inode, 0, len(s.children[dir]))
	for child := range s.children[dir] {
		result = append(result, s.inodes[child].Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Path < result[j].Path })
	return result, nil
}

func (s *MemoryMetadataStore) Move(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if src == metadata.Root || metadata.IsWithin(dst, src) {
		return fmt.Errorf("move %s to %s: %w", src, dst, metadata.ErrInvalidPath)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.inodes[src]; !ok {
		return fmt.Errorf("%s: %w", src, metadata.ErrNotFound)
	}
	if _, exists := s.inodes[dst]; exists {
		return fmt.Errorf("%s: %w", dst, metadata.ErrAlreadyExists)
	}
	if parent := metadata.Parent(dst); parent != metadata.Root {
		if _, ok := s.inodes[parent]; !ok {
			return fmt.Errorf("parent %s: %w", parent, metadata.ErrNotFound)
		}
	}

	var moved []*metadata.Inode
	for p, inode := range s.inodes {
		if metadata.IsWithin(p, src) {
			moved = append(moved, inode)
		}
	}
	for _, inode := range moved {
		s.remove(inode.Path)
	}
	for _, inode := range moved {
		inode.Path = metadata.Rebase(inode.Path, src, dst)
		s.insert(inode)
	}
	return nil
}

func (s *MemoryMetadataStore) Close() error {
	return nil
}
