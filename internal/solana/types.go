package solana

// SignatureInfo from getSignaturesForAddress.
type SignatureInfo struct {
	Signature string
	Slot      int64
	BlockTime *int64
	Err       interface{}
}

// SignaturesOpts defines optional pagination parameters for getSignaturesForAddress.
type SignaturesOpts struct {
	Before string // Start searching backwards from this signature
	Until  string // Search until this signature
	Limit  int    // Maximum number of signatures to return
}

// ProgramAccountsOpts narrows getProgramAccounts.
type ProgramAccountsOpts struct {
	DataSize    uint64   // exact account data length; 0 disables
	Memcmp      []Memcmp // byte comparisons against account data
	SliceOffset int      // start of returned data
	SliceLength int      // bytes of returned data; 0 returns the whole account
}

// Memcmp matches Bytes (base58) at Offset in account data.
type Memcmp struct {
	Offset int
	Bytes  string
}

// ProgramAccount is one result of getProgramAccounts.
type ProgramAccount struct {
	Pubkey string
	Owner  string
	Data   []byte // decoded, possibly sliced
}
