package persist

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// cborEncMode uses canonical mode so equal nodes encode to equal bytes.
var cborEncMode cbor.EncMode

// cborDecMode rejects duplicate map keys and caps nesting.
var cborDecMode cbor.DecMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("persist: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em

	dm, err := cbor.DecOptions{
		DupMapKey:       cbor.DupMapKeyEnforcedAPF,
		MaxNestedLevels: 16,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("persist: failed to create CBOR dec mode: %v", err))
	}
	cborDecMode = dm
}

func marshal(v any) ([]byte, error) {
	return cborEncMode.Marshal(v)
}

func unmarshal(data []byte, v any) error {
	return cborDecMode.Unmarshal(data, v)
}
