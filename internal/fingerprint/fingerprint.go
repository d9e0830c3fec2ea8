// Package fingerprint computes the content fingerprints used as cache and
// invalidation keys. A fingerprint is a pure function of source bytes plus
// the render-affecting configuration slice, and is stable across process
// restarts so persisted cache entries survive unchanged inputs.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Fingerprint is an opaque, collision-resistant digest in hex form.
type Fingerprint string

// New computes the fingerprint of a document's source bytes combined with
// the configuration slice that affects its rendering. The config is
// serialized to canonical JSON so field order cannot perturb the digest.
func New(source []byte, config any) (Fingerprint, error) {
	h := sha256.New()
	h.Write(source)

	if config != nil {
		data, err := json.Marshal(config)
		if err != nil {
			return "", fmt.Errorf("marshal render config: %w", err)
		}
		h.Write([]byte{0})
		h.Write(data)
	}

	return Fingerprint(hex.EncodeToString(h.Sum(nil))), nil
}

// OfBytes fingerprints raw bytes with no config slice. Used for assets.
func OfBytes(data []byte) Fingerprint {
	sum := sha256.Sum256(data)
	return Fingerprint(hex.EncodeToString(sum[:]))
}
