package common

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/go-faster/errors"
)

// Same bounds as X/Open XA's MAXGTRIDSIZE and MAXBQUALSIZE. Both lengths are
// stored in a single byte in the logical log.
const (
	MaxGlobalIDSize = 64
	MaxBranchIDSize = 64
)

var ErrXidTooLong = errors.New("xid component exceeds maximum size")

// Xid is the durable identity of a transaction branch.
type Xid struct {
	formatID int32
	globalID []byte
	branchID []byte
}

func NewXid(formatID int32, globalID, branchID []byte) (Xid, error) {
	if len(globalID) > MaxGlobalIDSize {
		return Xid{}, errors.Wrapf(
			ErrXidTooLong,
			"global id is %d bytes, max %d",
			len(globalID),
			MaxGlobalIDSize,
		)
	}

	if len(branchID) > MaxBranchIDSize {
		return Xid{}, errors.Wrapf(
			ErrXidTooLong,
			"branch id is %d bytes, max %d",
			len(branchID),
			MaxBranchIDSize,
		)
	}

	return Xid{
		formatID: formatID,
		globalID: bytes.Clone(globalID),
		branchID: bytes.Clone(branchID),
	}, nil
}

func (x Xid) FormatID() int32 {
	return x.formatID
}

func (x Xid) GlobalID() []byte {
	return bytes.Clone(x.globalID)
}

func (x Xid) BranchID() []byte {
	return bytes.Clone(x.branchID)
}

func (x Xid) Equal(other Xid) bool {
	return x.formatID == other.formatID &&
		bytes.Equal(x.globalID, other.globalID) &&
		bytes.Equal(x.branchID, other.branchID)
}

// Key is a comparable form of the xid usable as a map key.
func (x Xid) Key() string {
	return fmt.Sprintf("%d/%x/%x", x.formatID, x.globalID, x.branchID)
}

func (x Xid) String() string {
	return fmt.Sprintf(
		"Xid[format=%d, gid=%s, bqual=%s]",
		x.formatID,
		hex.EncodeToString(x.globalID),
		hex.EncodeToString(x.branchID),
	)
}
