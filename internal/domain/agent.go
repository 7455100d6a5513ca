package domain

// BotAgent is a registered programmatic trading agent. SpentToday must
// never exceed DailyLimit even under concurrent requests; the reset
// boundary is a fixed UTC midnight.
type BotAgent struct {
	AgentID      string // uuid
	Name         string
	APIKeyHash   string // hex sha-256 of the presented key; never reversible
	DailyLimit   int64  // micro-USD
	SpentToday   int64  // micro-USD
	LimitResetAt int64  // unix ms of the next UTC midnight boundary
	CreatedAt    int64  // unix ms
}
