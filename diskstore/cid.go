package diskstore

import (
	"crypto/sha256"
	"math/big"
	"regexp"

	"github.com/AudiusProject/creator-node/core/common"
)

// A content identifier here is a v0 multihash string: "Qm" followed by 44
// base58btc characters encoding sha2-256 over the raw bytes.
var cidRegexp = regexp.MustCompile(`^Qm[1-9A-HJ-NP-Za-km-z]{44}$`)

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

/*IsValidCID - whether cid is a well-formed content identifier */
func IsValidCID(cid string) bool {
	return cidRegexp.MatchString(cid)
}

// ValidateCID returns an invalid_cid error when cid is not well formed.
func ValidateCID(cid string) error {
	if !IsValidCID(cid) {
		return common.NewErrorf(common.ErrInvalidCIDCode, "not a well-formed content identifier: %q", cid)
	}
	return nil
}

// ComputeCID derives the content identifier for data. Identical bytes always
// yield the same identifier, so re-running this over fetched bytes detects
// truncated or tampered transfers.
func ComputeCID(data []byte) string {
	digest := sha256.Sum256(data)
	multihash := make([]byte, 0, 2+len(digest))
	multihash = append(multihash, 0x12, 0x20) // sha2-256, 32 bytes
	multihash = append(multihash, digest[:]...)
	return base58Encode(multihash)
}

func base58Encode(data []byte) string {
	x := new(big.Int).SetBytes(data)
	radix := big.NewInt(58)
	mod := new(big.Int)

	out := make([]byte, 0, len(data)*138/100+1)
	for x.Sign() > 0 {
		x.DivMod(x, radix, mod)
		out = append(out, base58Alphabet[mod.Int64()])
	}
	for _, b := range data {
		if b != 0 {
			break
		}
		out = append(out, base58Alphabet[0])
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}
