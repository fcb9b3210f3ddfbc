package isotp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_AddressValidate(t *testing.T) {
	tests := []struct {
		addr Address
		err  bool
	}{
		{addr: Address{RxID: 0x7E0, TxID: 0x7E8}},
		{addr: Address{RxID: 0x7E7, TxID: 0x7EF}},
		{addr: Address{RxID: 0x800, TxID: 0x7E8}, err: true},
		{addr: Address{RxID: 0x7E0, TxID: 0x7E0}, err: true},
	}

	for _, test := range tests {
		t.Run(test.addr.String(), func(t *testing.T) {
			err := test.addr.Validate()
			if test.err {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func Test_AddressString(t *testing.T) {
	assert.Equal(t, "RXID: 0x7E0, TXID: 0x7E8", Address{RxID: 0x7E0, TxID: 0x7E8}.String())
}
