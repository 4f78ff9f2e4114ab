// Package checksum provides content digests for vault files.
package checksum

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// MD5 returns the hex-encoded MD5 digest of data. It identifies image
// content across renames; it is not used for integrity.
func MD5(data []byte) string {
	h := md5.Sum(data)
	return hex.EncodeToString(h[:])
}
