package icmpclient

// splitRawIPv4 separates the ICMP payload from the leading IPv4 header that
// a raw IPv4 socket delivers on read (unlike a datagram socket or any IPv6
// socket, where the payload starts at the ICMP header). It also returns the
// header's TTL field, which doubles as a fallback when no ancillary TTL
// control message is available.
func splitRawIPv4(data []byte) (payload []byte, ttl int, ok bool) {
	if len(data) < 20 {
		return data, 0, false
	}
	verIHL := data[0]
	if verIHL>>4 != 4 {
		return data, 0, false
	}
	ihl := int(verIHL&0x0f) * 4
	if ihl < 20 || len(data) < ihl {
		return data, 0, false
	}
	return data[ihl:], int(data[8]), true
}
