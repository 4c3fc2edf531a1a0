package discovery

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeTXT creates the TXT records for info.
func EncodeTXT(info *ServiceInfo) TXTRecordMap {
	txt := make(TXTRecordMap)

	version := info.Version
	if version == 0 {
		version = ProtocolVersion
	}
	txt[TXTKeyVersion] = strconv.Itoa(version)

	if len(info.Commands) > 0 {
		txt[TXTKeyCommands] = strings.Join(info.Commands, ",")
	}
	if info.MutualTLS {
		txt[TXTKeyMutualTLS] = "1"
	}
	return txt
}

// DecodeTXT parses TXT records into a Service's advertised fields.
func DecodeTXT(txt TXTRecordMap, svc *Service) error {
	vStr, ok := txt[TXTKeyVersion]
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyVersion)
	}
	v, err := strconv.Atoi(vStr)
	if err != nil || v < 1 {
		return fmt.Errorf("%w: %q", ErrInvalidVersion, vStr)
	}
	svc.Version = v

	svc.Commands = nil
	if cmds := txt[TXTKeyCommands]; cmds != "" {
		for _, c := range strings.Split(cmds, ",") {
			if c = strings.TrimSpace(c); c != "" {
				svc.Commands = append(svc.Commands, c)
			}
		}
	}
	svc.MutualTLS = txt[TXTKeyMutualTLS] == "1"
	return nil
}

// TXTRecordsToStrings converts a TXT map to "key=value" strings in a
// stable order.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	keys := make([]string, 0, len(txt))
	for k := range txt {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+txt[k])
	}
	return out
}

// StringsToTXTRecords parses "key=value" strings. Entries without "=" are
// kept as keys with an empty value.
func StringsToTXTRecords(records []string) TXTRecordMap {
	txt := make(TXTRecordMap, len(records))
	for _, r := range records {
		k, v, _ := strings.Cut(r, "=")
		if k == "" {
			continue
		}
		txt[strings.ToLower(k)] = v
	}
	return txt
}
