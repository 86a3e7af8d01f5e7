package blockchain

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	eth "github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/wealdtech/go-merkletree"
	keccak "github.com/wealdtech/go-merkletree/keccak256"

	"github.com/kollektive-hackathon/rps-escrow-backend/internal/escrow"
)

// EventLeaf hashes one log entry: keccak256(gameId | seq | name | payload),
// with the integers as 8 byte big endian.
func EventLeaf(rec escrow.EventRecord) []byte {
	buf := make([]byte, 16, 16+len(rec.Name)+len(rec.Payload))
	binary.BigEndian.PutUint64(buf[:8], rec.GameID)
	binary.BigEndian.PutUint64(buf[8:], rec.Seq)
	buf = append(buf, rec.Name...)
	buf = append(buf, rec.Payload...)
	return eth.Keccak256(buf)
}

// CreateAuditTree builds a keccak256 merkle tree over a game's event log.
func CreateAuditTree(records []escrow.EventRecord) (*merkletree.MerkleTree, [][]byte, error) {
	if len(records) == 0 {
		return nil, nil, errors.New("empty event log")
	}
	treeData := make([][]byte, 0, len(records))
	for _, rec := range records {
		treeData = append(treeData, EventLeaf(rec))
	}

	mt, err := merkletree.NewUsing(treeData, keccak.New(), nil)
	if err != nil {
		return nil, nil, errors.Wrap(err, "create audit merkle tree")
	}
	return mt, treeData, nil
}

// AuditRoot returns the 0x prefixed root of the audit tree, or the zero hash
// for an empty log.
func AuditRoot(records []escrow.EventRecord) (string, error) {
	if len(records) == 0 {
		return common.Hash{}.Hex(), nil
	}
	mt, _, err := CreateAuditTree(records)
	if err != nil {
		return "", err
	}
	return hexutil.Encode(mt.Root()), nil
}
