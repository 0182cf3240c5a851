// Package badger implements a persistent metadata store on BadgerDB.
package badger

import (
	"context"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/marmos91/fsgate/pkg/store/metadata"
)

// BadgerMetadataStore persists inodes in BadgerDB.
//
// Every public method runs in a single Badger transaction, so a subtree move
// is all-or-nothing. Very large subtrees may exceed Badger's transaction size
// limit; the move then fails with badger.ErrTxnTooBig and nothing changes.
type BadgerMetadataStore struct {
	db *badger.DB
}

var _ metadata.MetadataStore = (*BadgerMetadataStore)(nil)

// BadgerMetadataStoreConfig contains configuration for the Badger store.
type BadgerMetadataStoreConfig struct {
	// DBPath is the directory holding the database files.
	DBPath string `mapstructure:"db_path"`

	// InMemory runs Badger without touching disk (tests only).
	InMemory bool `mapstructure:"in_memory"`

	// BlockCacheSizeMB sizes Badger's block cache. Default: 64.
	BlockCacheSizeMB int64 `mapstructure:"block_cache_size_mb"`

	// IndexCacheSizeMB sizes Badger's index cache. Default: 32.
	IndexCacheSizeMB int64 `mapstructure:"index_cache_size_mb"`
}

// NewBadgerMetadataStore opens (or creates) the database.
//
// Parameters:
//   - ctx: Context for cancellation
//   - config: Store configuration
//
// Returns:
//   - *BadgerMetadataStore: Open store
//   - error: If the database cannot be opened
func NewBadgerMetadataStore(ctx context.Context, config BadgerMetadataStoreConfig) (*BadgerMetadataStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var opts badger.Options
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if config.DBPath == "" {
			return nil, fmt.Errorf("db_path is required")
		}
		opts = badger.DefaultOptions(config.DBPath)
	}

	blockCacheMB := config.BlockCacheSizeMB
	if blockCacheMB == 0 {
		blockCacheMB = 64
	}
	indexCacheMB := config.IndexCacheSizeMB
	if indexCacheMB == 0 {
		indexCacheMB = 32
	}

	opts = opts.
		WithLogger(nil).
		WithCompression(options.None). // Metadata is small, compression overhead not worth it
		WithBlockCacheSize(blockCacheMB << 20).
		WithIndexCacheSize(indexCacheMB << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", config.DBPath, err)
	}

	return &BadgerMetadataStore{db: db}, nil
}

func getInode(txn *badger.Txn, p string) (*metadata.Inode, error) {
	item, err := txn.Get(keyInode(p))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%s: %w", p, metadata.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read inode %s: %w", p, err)
	}

	var inode *metadata.Inode
	err = item.Value(func(val []byte) error {
		inode, err = decodeInode(val)
		return err
	})
	return inode, err
}

func exists(txn *badger.Txn, p string) (bool, error) {
	_, err := txn.Get(keyInode(p))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

func putInode(txn *badger.Txn, inode *metadata.Inode) error {
	data, err := encodeInode(inode)
	if err != nil {
		return err
	}
	return txn.Set(keyInode(inode.Path), data)
}

// link writes the inode and its entry in the parent's child index.
func link(txn *badger.Txn, inode *metadata.Inode) error {
	if err := putInode(txn, inode); err != nil {
		return err
	}
	if inode.Path == metadata.Root {
		return nil
	}
	return txn.Set(keyChild(metadata.Parent(inode.Path), inode.Path), nil)
}

func unlink(txn *badger.Txn, p string) error {
	if err := txn.Delete(keyInode(p)); err != nil {
		return err
	}
	if p == metadata.Root {
		return nil
	}
	return txn.Delete(keyChild(metadata.Parent(p), p))
}

func hasChildren(txn *badger.Txn, dir string) bool {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = keyChildPrefix(dir)

	it := txn.NewIterator(opts)
	defer it.Close()

	it.Rewind()
	return it.Valid()
}

func (s *BadgerMetadataStore) Get(ctx context.Context, p string) (*metadata.Inode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var inode *metadata.Inode
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		inode, err = getInode(txn, p)
		return err
	})
	return inode, err
}

func (s *BadgerMetadataStore) Create(ctx context.Context, inode *metadata.Inode) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p, err := metadata.CleanPath(inode.Path)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		found, err := exists(txn, p)
		if err != nil {
			return err
		}
		if found {
			return fmt.Errorf("%s: %w", p, metadata.ErrAlreadyExists)
		}

		if p != metadata.Root {
			parent := metadata.Parent(p)
			ok, err := exists(txn, parent)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("parent %s: %w", parent, metadata.ErrNotFound)
			}
		}

		stored := inode.Clone()
		stored.Path = p
		return link(txn, stored)
	})
}

func (s *BadgerMetadataStore) Update(ctx context.Context, inode *metadata.Inode) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		found, err := exists(txn, inode.Path)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%s: %w", inode.Path, metadata.ErrNotFound)
		}
		return putInode(txn, inode)
	})
}

func (s *BadgerMetadataStore) Delete(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		found, err := exists(txn, p)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%s: %w", p, metadata.ErrNotFound)
		}
		if hasChildren(txn, p) {
			return fmt.Errorf("%s: %w", p, metadata.ErrNotEmpty)
		}
		return unlink(txn, p)
	})
}

func (s *BadgerMetadataStore) List(ctx context.Context, dir string) ([]*metadata.Inode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var result []*metadata.Inode
	err := s.db.View(func(txn *badger.Txn) error {
		found, err := exists(txn, dir)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%s: %w", dir, metadata.ErrNotFound)
		}

		prefix := keyChildPrefix(dir)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		// Keys iterate in byte order, which is the name order of the children
		for it.Rewind(); it.Valid(); it.Next() {
			child := string(it.Item().Key()[len(prefix):])
			inode, err := getInode(txn, child)
			if err != nil {
				return err
			}
			result = append(result, inode)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *BadgerMetadataStore) Move(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if src == metadata.Root || metadata.IsWithin(dst, src) {
		return fmt.Errorf("move %s to %s: %w", src, dst, metadata.ErrInvalidPath)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		root, err := getInode(txn, src)
		if err != nil {
			return err
		}

		taken, err := exists(txn, dst)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%s: %w", dst, metadata.ErrAlreadyExists)
		}
		if parent := metadata.Parent(dst); parent != metadata.Root {
			ok, err := exists(txn, parent)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("parent %s: %w", parent, metadata.ErrNotFound)
			}
		}

		moved := []*metadata.Inode{root}
		if root.IsDir() {
			subtree, err := collect(txn, keySubtreePrefix(src))
			if err != nil {
				return err
			}
			moved = append(moved, subtree...)
		}

		for _, inode := range moved {
			if err := unlink(txn, inode.Path); err != nil {
				return err
			}
		}
		for _, inode := range moved {
			inode.Path = metadata.Rebase(inode.Path, src, dst)
			if err := link(txn, inode); err != nil {
				return err
			}
		}
		return nil
	})
}

func collect(txn *badger.Txn, prefix []byte) ([]*metadata.Inode, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	defer it.Close()

	var result []*metadata.Inode
	for it.Rewind(); it.Valid(); it.Next() {
		err := it.Item().Value(func(val []byte) error {
			inode, err := decodeInode(val)
			if err != nil {
				return err
			}
			result = append(result, inode)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (s *BadgerMetadataStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close BadgerDB: %w", err)
	}
	return nil
}
