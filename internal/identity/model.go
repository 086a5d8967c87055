package identity

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// User is a phone number bound to a custodial owner key and its Safe.
type User struct {
	Phone             string
	OwnerAddress      common.Address
	EncryptedOwnerKey string
	WalletAddress     common.Address
	DeployedBy        common.Address
	CreatedAt         time.Time
}

// Registration is the outcome of RegisterIfNeeded. Created is false when
// the phone was already registered and nothing was deployed.
type Registration struct {
	User    User
	Created bool
}
