package discovery

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeArenaTXT creates TXT records for an arena advertisement.
func EncodeArenaTXT(info *ArenaInfo) TXTRecordMap {
	txt := make(TXTRecordMap)

	txt[TXTKeyVersion] = ProtocolVersion
	if info.Version != "" {
		txt[TXTKeyVersion] = info.Version
	}
	txt[TXTKeyGameID] = info.GameID

	if info.Name != "" {
		txt[TXTKeyName] = info.Name
	}
	if info.Path != "" && info.Path != DefaultPath {
		txt[TXTKeyPath] = info.Path
	}
	if info.Secure {
		txt[TXTKeyTLS] = "1"
	}
	if info.Codec != "" {
		txt[TXTKeyCodec] = info.Codec
	}
	if info.Players > 0 {
		txt[TXTKeyPlayers] = strconv.Itoa(info.Players)
	}

	return txt
}

// DecodeArenaTXT parses TXT records from an arena advertisement.
func DecodeArenaTXT(txt TXTRecordMap) (*ArenaInfo, error) {
	info := &ArenaInfo{}

	var ok bool
	info.Version, ok = txt[TXTKeyVersion]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyVersion)
	}
	if info.Version != ProtocolVersion {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVersion, info.Version)
	}

	info.GameID = txt[TXTKeyGameID]
	if info.GameID == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyGameID)
	}

	info.Name = txt[TXTKeyName]
	info.Path = txt[TXTKeyPath]
	if info.Path == "" {
		info.Path = DefaultPath
	}

	switch v := txt[TXTKeyTLS]; v {
	case "", "0":
	case "1":
		info.Secure = true
	default:
		return nil, fmt.Errorf("%w: %s=%q", ErrInvalidTXTRecord, TXTKeyTLS, v)
	}

	info.Codec = strings.ToLower(txt[TXTKeyCodec])
	switch info.Codec {
	case "":
		info.Codec = "json"
	case "json", "cbor":
	default:
		return nil, fmt.Errorf("%w: %s=%q", ErrInvalidTXTRecord, TXTKeyCodec, info.Codec)
	}

	if s, ok := txt[TXTKeyPlayers]; ok {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: %s=%q", ErrInvalidTXTRecord, TXTKeyPlayers, s)
		}
		info.Players = n
	}

	return info, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to sorted "key=value" strings.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for _, k := range slices.Sorted(maps.Keys(txt)) {
		result = append(result, k+"="+txt[k])
	}
	return result
}

// StringsToTXTRecords parses a slice of "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		k, v, found := strings.Cut(s, "=")
		if found || k != "" {
			// A bare key is a boolean flag.
			txt[k] = v
		}
	}
	return txt
}
