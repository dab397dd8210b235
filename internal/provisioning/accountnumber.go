package provisioning

import (
	"crypto/rand"
	"math/big"
	"strconv"
)

var (
	accountNumberMin   = big.NewInt(100_000_000_000)
	accountNumberRange = big.NewInt(900_000_000_000)
)

// GenerateAccountNumber returns a random 12-digit account number without a
// leading zero. Uniqueness is enforced by the repository, not here.
func GenerateAccountNumber() (string, error) {
	n, err := rand.Int(rand.Reader, accountNumberRange)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Add(n, accountNumberMin).Int64(), 10), nil
}
