package badger

// ============================================================================
// Key Prefixes
// ============================================================================
//
// Key Design:
//   - "i:<path>"                  -> JSON inode record
//   - "c:<parent>\x00<child path>" -> empty value, one per directory entry
//
// The NUL separator cannot occur in a path, so a prefix scan over
// "c:<parent>\x00" returns exactly the direct children of parent.

const (
	prefixInode = "i:"
	prefixChild = "c:"

	childSeparator = "\x00"
)

func keyInode(p string) []byte {
	return []byte(prefixInode + p)
}

func keyChild(parent, child string) []byte {
	return []byte(prefixChild + parent + childSeparator + child)
}

func keyChildPrefix(parent string) []byte {
	return []byte(prefixChild + parent + childSeparator)
}

// keySubtreePrefix matches the inode keys strictly below dir.
func keySubtreePrefix(dir string) []byte {
	if dir == "/" {
		return []byte(prefixInode + "/")
	}
	return []byte(prefixInode + dir + "/")
}
