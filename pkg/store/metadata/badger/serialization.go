package badger

import (
	"encoding/json"
	"fmt"

	"github.com/marmos91/fsgate/pkg/store/metadata"
)

func encodeInode(inode *metadata.Inode) ([]byte, error) {
	bytes, err := json.Marshal(inode)
	if err != nil {
		return nil, fmt.Errorf("failed to encode inode: %w", err)
	}
	return bytes, nil
}

func decodeInode(bytes []byte) (*metadata.Inode, error) {
	var inode metadata.Inode
	if err := json.Unmarshal(bytes, &inode); err != nil {
		return nil, fmt.Errorf("failed to decode inode: %w", err)
	}
	return &inode, nil
}
