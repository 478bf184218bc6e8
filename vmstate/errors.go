package vmstate

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

func errBalanceOverflow(addr common.Address) error {
	return fmt.Errorf("balance of %s does not fit in 256 bits", addr.Hex())
}
