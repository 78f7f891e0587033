package arpcache

import (
	"bufio"
	"bytes"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// addressField is the zero-based field holding the hardware address, e.g.
//
//	? (10.0.0.1) at 30:2a:43:b2:01:2f [ether] on br0
//	localhost (127.0.0.1) at 20:c4:df:a0:54:28 on en0 ifscope [ethernet]
const addressField = 3

// Sighting is an address token seen in a table dump. Address is the raw
// token; it is not normalized or validated.
type Sighting struct {
	Address    string
	ObservedAt time.Time
}

// Format selects how a table dump is parsed
type Format string

const (
	// FormatText is whitespace separated `arp -a` style output.
	FormatText Format = "text"
	// FormatJSON is the JSON array printed by `ip -j neigh show`.
	FormatJSON Format = "json"
)

// ParseFunc turns a table dump into sightings.
type ParseFunc func(text []byte, observedAt time.Time) iter.Seq[Sighting]

// ParserFor returns the parser for format. An empty format means text.
func ParserFor(format Format) (ParseFunc, error) {
	switch Format(strings.ToLower(string(format))) {
	case FormatText, "":
		return ParseText, nil
	case FormatJSON:
		return ParseJSON, nil
	}
	return nil, fmt.Errorf("unknown table format %q", format)
}

// ParseText yields the fourth field of every line that has at least four
// fields. Shorter lines (banners, headers, blank lines) are skipped. No
// attempt is made to tell real rows from noise that happens to have enough
// fields; the address is validated later, when it is normalized.
func ParseText(text []byte, observedAt time.Time) iter.Seq[Sighting] {
	return func(yield func(Sighting) bool) {
		scanner := bufio.NewScanner(bytes.NewReader(text))
		// a single line may be as long as the whole dump
		scanner.Buffer(make([]byte, 0, 4096), len(text)+1)

		for scanner.Scan() {
			fields := strings.Fields(scanner.Text())
			if len(fields) <= addressField {
				continue
			}
			if !yield(Sighting{Address: fields[addressField], ObservedAt: observedAt}) {
				return
			}
		}
	}
}

// ParseJSON yields the lladdr of every neighbor in `ip -j neigh show`
// output. Entries without a link layer address (FAILED, INCOMPLETE) and
// input that is not a JSON array yield nothing.
func ParseJSON(text []byte, observedAt time.Time) iter.Seq[Sighting] {
	return func(yield func(Sighting) bool) {
		if !gjson.ValidBytes(text) {
			return
		}
		result := gjson.ParseBytes(text)
		if !result.IsArray() {
			return
		}
		result.ForEach(func(_, neigh gjson.Result) bool {
			lladdr := neigh.Get("lladdr").String()
			if lladdr == "" {
				return true
			}
			return yield(Sighting{Address: lladdr, ObservedAt: observedAt})
		})
	}
}
