//go:build property
// +build property

package spend_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/Mindburn-Labs/spendgate/pkg/spend"
)

// TestHashChainDeterminism verifies the chain is a pure function of the
// folded payload sequence.
func TestHashChainDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("re-folding the same payloads yields the same fingerprint", prop.ForAll(
		func(payloads [][]byte) bool {
			run := func() spend.Fingerprint {
				fp := spend.ZeroFingerprint
				for i, p := range payloads {
					fp = spend.GenericHash(uint8(i), p, fp)
				}
				return fp
			}
			return run() == run()
		},
		gen.SliceOf(gen.SliceOf(gen.UInt8())).SuchThat(func(v [][]byte) bool {
			return len(v) <= 64
		}),
	))

	properties.Property("swapping two distinct payloads changes the fingerprint", prop.ForAll(
		func(a, b []byte) bool {
			if string(a) == string(b) {
				return true
			}
			forward := spend.GenericHash(1, b, spend.GenericHash(0, a, spend.ZeroFingerprint))
			swapped := spend.GenericHash(1, a, spend.GenericHash(0, b, spend.ZeroFingerprint))
			return forward != swapped
		},
		gen.SliceOf(gen.UInt8()),
		gen.SliceOf(gen.UInt8()),
	))

	properties.TestingRun(t)
}
