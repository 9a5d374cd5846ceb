// Package salt packs an order's validity window and a random nonce into
// the 256-bit salt the settlement contract hashes into the order id.
//
// Layout: random << 128 | (startTime/1000) << 64 | (endTime/1000).
// Time fields are unix milliseconds truncated to whole seconds, matching
// the chain's time resolution.
package salt

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"
)

var (
	// ErrInvalidRange rejects a field that is negative or above 2^53-1.
	// The ceiling is conservative so downstream conversions never lose
	// precision.
	ErrInvalidRange = errors.New("salt field out of range")

	// ErrInvalidSalt rejects a negative salt on decode.
	ErrInvalidSalt = errors.New("invalid salt")
)

// MaxField is the largest encodable field value (2^53 - 1).
const MaxField = int64(1)<<53 - 1

// DefaultDuration is the validity window applied when a maker does not
// choose one explicitly.
const DefaultDuration = 100 * 365 * 24 * time.Hour // 100 years

var mask64 = new(big.Int).SetUint64(^uint64(0))

// Encode packs startTime and endTime (unix ms) and a random nonce into
// a salt. Times are truncated to whole seconds.
func Encode(startTime, endTime, random int64) (*big.Int, error) {
	for _, v := range []int64{startTime, endTime, random} {
		if v < 0 || v > MaxField {
			return nil, fmt.Errorf("%w: %d", ErrInvalidRange, v)
		}
	}
	s := new(big.Int).SetInt64(random)
	s.Lsh(s, 64)
	s.Or(s, big.NewInt(startTime/1000))
	s.Lsh(s, 64)
	s.Or(s, big.NewInt(endTime/1000))
	return s, nil
}

// Decode unpacks a salt into its validity window (unix ms, second
// precision) and random nonce. The nonce is returned as a big.Int since
// foreign salts may carry up to 128 bits there.
func Decode(s *big.Int) (startTime, endTime int64, random *big.Int, err error) {
	if s.Sign() < 0 {
		return 0, 0, nil, fmt.Errorf("%w: %s", ErrInvalidSalt, s)
	}
	endSec := new(big.Int).And(s, mask64)
	startSec := new(big.Int).And(new(big.Int).Rsh(s, 64), mask64)
	random = new(big.Int).Rsh(s, 128)
	if !endSec.IsInt64() || !startSec.IsInt64() {
		return 0, 0, nil, fmt.Errorf("%w: %s", ErrInvalidSalt, s)
	}
	startTime = startSec.Int64() * 1000
	endTime = endSec.Int64() * 1000
	if startTime < 0 || endTime < 0 { // second-to-ms scale overflow
		return 0, 0, nil, fmt.Errorf("%w: %s", ErrInvalidSalt, s)
	}
	return startTime, endTime, random, nil
}

// Generate builds a salt for an order starting at startTime (unix ms)
// and lasting duration, with a fresh random nonce.
func Generate(startTime int64, duration time.Duration) (*big.Int, error) {
	random, err := randomField()
	if err != nil {
		return nil, err
	}
	return Encode(startTime, startTime+duration.Milliseconds(), random)
}

// randomField draws a uniform value in [0, 2^53).
func randomField() (int64, error) {
	n, err := rand.Int(rand.Reader, new(big.Int).SetInt64(MaxField+1))
	if err != nil {
		return 0, fmt.Errorf("failed to draw salt nonce: %w", err)
	}
	return n.Int64(), nil
}
