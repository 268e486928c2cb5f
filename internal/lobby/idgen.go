package lobby

import (
	"crypto/rand"
	"math/big"

	"github.com/asaskevich/govalidator"
)

const idAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// genID samples n characters uniformly from idAlphabet. Used for
// client ids, game ids (n=8) and membership tokens (n=16).
func genID(n int) string {
	out := make([]byte, n)
	alphaLen := big.NewInt(int64(len(idAlphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, alphaLen)
		if err != nil {
			// crypto/rand failing means the OS RNG is broken; there is
			// nothing sane to fall back to for a token that must be
			// unpredictable-ish and unique.
			panic("lobby: crypto/rand unavailable: " + err.Error())
		}
		out[i] = idAlphabet[idx.Int64()]
	}
	return string(out)
}

// validName reports whether name is 1-8 characters, each alphanumeric.
func validName(name string) bool {
	if len(name) < 1 || len(name) > 8 {
		return false
	}
	return govalidator.IsAlphanumeric(name)
}
