package database

// Item is the denormalized record of one mint transaction.
// Price is a wei-denominated amount kept as the string the client sent,
// and Timestamp is the client-supplied ISO string, stored verbatim.
type Item struct {
	ID               int64  `json:"id"`
	TokenID          int64  `json:"token_id"`
	Price            string `json:"price"`
	Recipient        string `json:"recipient"`
	RoyaltyRecipient string `json:"royalty_recipient"`
	Royalty          int    `json:"royalty"`
	MetadataURI      string `json:"metadata_uri"`
	Timestamp        string `json:"timestamp"`
}

// Counts holds aggregate counts over the items table.
type Counts struct {
	TotalItems       int64
	UniqueRecipients int64
}
