package booking

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	rentalIDPrefix = "BR"
	randomSuffix   = 5
	base36         = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// NewRentalID returns an id like BR-LZ1K2M3N-4F7QX built from the
// millisecond timestamp and a random base36 suffix.
func NewRentalID(now time.Time) (string, error) {
	suffix := make([]byte, randomSuffix)
	max := big.NewInt(int64(len(base36)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", errors.Wrap(err, "failed to read random")
		}
		suffix[i] = base36[n.Int64()]
	}

	id := rentalIDPrefix + "-" + strconv.FormatInt(now.UnixMilli(), 36) + "-" + string(suffix)
	return strings.ToUpper(id), nil
}
