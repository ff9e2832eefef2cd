// Package keys derives deterministic record and vault addresses.
//
// Every derived address is blake3(tag || len(seed) || seed ...), hex encoded.
// The tag separates domains (reserve, vault, mint authority) so that the same
// seeds never collide across record kinds.
package keys

import (
	"encoding/binary"
	"encoding/hex"
	"io"

	"lukechampine.com/blake3"

	"YieldKeeper/internal/model"
)

// Domain tags used by the ledger.
const (
	TagReserve       = "or_reserve"
	TagStableVault   = "or_stable_vault"
	TagMintAuthority = "or_ousd_mint_auth"
)

// Derive hashes a domain tag with an ordered list of seeds.
func Derive(tag string, seeds ...[]byte) model.Address {
	h := blake3.New(32, nil)
	writeSeed(h, []byte(tag))
	for _, s := range seeds {
		writeSeed(h, s)
	}
	return model.Address(hex.EncodeToString(h.Sum(nil)))
}

func writeSeed(w io.Writer, seed []byte) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(seed)))
	_, _ = w.Write(n[:])
	_, _ = w.Write(seed)
}

// Reserve derives the Position address of owner inside pool.
func Reserve(owner, pool model.Address) model.Address {
	return Derive(TagReserve, []byte(owner), []byte(pool))
}

// StableVault derives the custody vault holding asset for pool.
func StableVault(asset model.Asset, pool model.Address) model.Address {
	return Derive(TagStableVault, []byte(asset), []byte(pool))
}

// MintAuthority derives the authority allowed to mint the pool's base asset.
func MintAuthority(pool model.Address) model.Address {
	return Derive(TagMintAuthority, []byte(pool))
}
