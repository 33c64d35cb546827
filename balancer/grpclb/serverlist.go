package grpclb

// rawServer is the wire shape of one entry in a LoadBalanceResponse's
// server list, before validation. The wire encoding itself (the LB
// protobuf schema) is out of scope -- this struct is what a transport
// decoder hands to decodeServerList.
type rawServer struct {
	IP        []byte
	Port      int32
	LoadToken string
	// Drop, if true, marks this entry as a synthetic drop-request entry
	// rather than a real backend. Drop entries are filtered out; they
	// exist in the wire format for client-side load reporting, which is
	// out of scope here (see spec Non-goals).
	Drop bool
}

// decodeResult is what decodeServerList produces: the validated ServerList
// plus counts of the drop-request and invalid entries it left out.
type decodeResult struct {
	Valid   ServerList
	Dropped int
	Invalid int
}

// decodeServerList validates each rawServer in list and produces the
// ServerList RRSupervisor will build an RR from. A Server is rejected (and
// counted in Invalid, not included in Valid) if its port exceeds 16 bits
// or its address is neither 4 nor 16 bytes long. A rejection never aborts
// decoding the rest of the list -- each entry is independent.
//
// decodeServerList returns an empty ServerList iff every entry was either
// a drop-request or invalid. No RR is built from an empty result; session
// still hands it to PolicyCore, which keeps the installed RR when
// keepRROnEmptyList is true (the default) and releases it otherwise.
func decodeServerList(list []rawServer) decodeResult {
	var result decodeResult
	result.Valid = make(ServerList, 0, len(list))

	for _, rs := range list {
		if rs.Drop {
			result.Dropped++
			continue
		}

		if rs.Port < 0 || rs.Port > 0xFFFF {
			result.Invalid++
			continue
		}
		if len(rs.IP) != 4 && len(rs.IP) != 16 {
			result.Invalid++
			continue
		}

		token := rs.LoadToken
		if token == "" {
			token = emptyToken
		}

		result.Valid = append(result.Valid, Server{
			Addr: Address{
				IP:   append([]byte(nil), rs.IP...),
				Port: uint16(rs.Port),
			},
			Token: token,
		})
	}

	return result
}
