package store

import (
	"bytes"
	"fmt"
	"time"
)

// Key layout:
//
//	listing/{listingID}
//	bid/{listingID}/{bidID}
//	bidref/{bidID}                      -> listingID
//	userbid/{bidderID}/{bidID}          -> listingID
//	order/{orderID}
//	userorder/{userID}/{orderID}
//	notification/{userID}/{unixnano}-{notificationID}
//	cart/{buyerID}
//	outbox/{seq}
const (
	prefixListing      = "listing/"
	prefixBid          = "bid/"
	prefixBidRef       = "bidref/"
	prefixUserBid      = "userbid/"
	prefixOrder        = "order/"
	prefixUserOrder    = "userorder/"
	prefixNotification = "notification/"
	prefixCart         = "cart/"
	prefixOutbox       = "outbox/"
)

func listingKey(id string) []byte {
	return []byte(prefixListing + id)
}

func bidKey(listingID, bidID string) []byte {
	return []byte(prefixBid + listingID + "/" + bidID)
}

func bidPrefix(listingID string) []byte {
	return []byte(prefixBid + listingID + "/")
}

func bidRefKey(bidID string) []byte {
	return []byte(prefixBidRef + bidID)
}

func userBidKey(bidderID, bidID string) []byte {
	return []byte(prefixUserBid + bidderID + "/" + bidID)
}

func userBidPrefix(bidderID string) []byte {
	return []byte(prefixUserBid + bidderID + "/")
}

func orderKey(id string) []byte {
	return []byte(prefixOrder + id)
}

func userOrderKey(userID, orderID string) []byte {
	return []byte(prefixUserOrder + userID + "/" + orderID)
}

func userOrderPrefix(userID string) []byte {
	return []byte(prefixUserOrder + userID + "/")
}

func notificationKey(userID string, at time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s%s/%020d-%s", prefixNotification, userID, at.UnixNano(), id))
}

func notificationPrefix(userID string) []byte {
	return []byte(prefixNotification + userID + "/")
}

func cartKey(buyerID string) []byte {
	return []byte(prefixCart + buyerID)
}

func outboxKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixOutbox, seq))
}

func parseOutboxKey(b []byte) (uint64, error) {
	var seq uint64
	_, err := fmt.Sscanf(string(bytes.TrimPrefix(b, []byte(prefixOutbox))), "%d", &seq)
	return seq, err
}

// lastSegment returns the part of key after its final '/'
func lastSegment(key []byte) string {
	if i := bytes.LastIndexByte(key, '/'); i >= 0 {
		return string(key[i+1:])
	}
	return string(key)
}

// prefixUpperBound returns the smallest key greater than every key with prefix
func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
