package domain

// Wallet is a custodial wallet held on behalf of a user or bot agent.
// At most one wallet exists per user; regeneration deletes the row first.
type Wallet struct {
	UserID             string
	SmartWalletAddress string // factory-derived address shown to users
	SignerAddress      string // EOA derived from the signing key
	EncryptedSignerKey string // base64(salt || nonce || sealed key)
	CreatedAt          int64  // unix ms
}
