package store

import "fmt"

// Key layout. Log keys sort by (timestamp, sequence) so a prefix scan
// yields a conversation's messages in append order.
//
//	account:<id>:meta                          directory record
//	contractor:<id>:meta                       directory record
//	contractorowner:<accountID>:<contractorID> owner index (value = contractorID)
//	convpair:<pairKey>                         pair key -> conversation ID
//	conv:<convID>:meta                         conversation metadata
//	conv:<convID>:msg:<%020d ts>-<%06d seq>    message log entry
//	msgid:<msgID>                              message ID -> log key

func accountKey(id string) string    { return "account:" + id + ":meta" }
func contractorKey(id string) string { return "contractor:" + id + ":meta" }

func contractorOwnerKey(accountID, contractorID string) string {
	return "contractorowner:" + accountID + ":" + contractorID
}

func contractorOwnerPrefix(accountID string) string {
	return "contractorowner:" + accountID + ":"
}

func convPairKey(pairKey string) string { return "convpair:" + pairKey }
func convMetaKey(convID string) string  { return "conv:" + convID + ":meta" }

func convMsgPrefix(convID string) string { return "conv:" + convID + ":msg:" }

func convMsgKey(convID string, ts int64, seq uint64) string {
	return fmt.Sprintf("conv:%s:msg:%020d-%06d", convID, ts, seq)
}

func msgIDKey(msgID string) string { return "msgid:" + msgID }
