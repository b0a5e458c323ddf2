package redis

// Key prefixes for primary entity storage.
const (
	prefixLedger = "mirror:led:"  // + provider event id
	prefixUser   = "mirror:user:" // + subject id
	prefixTask   = "mirror:task:"
	prefixDLQ    = "mirror:dlq:"
)

// Counter keys for store-assigned sequence numbers.
const (
	seqLedger = "mirror:seq:ledger"
	seqTasks  = "mirror:seq:tasks"
)

// Key prefixes for sorted set indexes.
const (
	zLedgerAll   = "mirror:z:led:all"   // score = seq
	zLedgerState = "mirror:z:led:state:" // + state
	zLedgerType  = "mirror:z:led:type:"  // + event type
	zUsers       = "mirror:z:user:all"   // score 0, ordered by member
	zTaskAll     = "mirror:z:task:all"   // score = seq
	zTaskOpen    = "mirror:z:task:open"  // score = seq
	zDLQAll      = "mirror:z:dlq:all"    // score = failed_at
)

// entityKey returns the primary key for an entity.
func entityKey(prefix, id string) string {
	return prefix + id
}
