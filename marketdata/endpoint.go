package marketdata

import (
	"sort"
	"strings"
	"time"

	getsafe "github.com/w-h-a/grounded/util/get_safe"
)

type Endpoint struct {
	Id             string
	Path           string
	TTL            time.Duration
	Required       []string
	TimestampField string
}

func (e Endpoint) Missing(data map[string]any) []string {
	var missing []string
	for _, field := range e.Required {
		v, ok := data[field]
		if !ok || v == nil {
			missing = append(missing, field)
		}
	}
	return missing
}

func (e Endpoint) Timestamp(data map[string]any) (time.Time, bool) {
	if len(e.TimestampField) == 0 {
		return time.Time{}, false
	}
	return getsafe.Time(data, e.TimestampField)
}

// Catalog is the closed set of endpoints the pipeline may call.
type Catalog struct {
	endpoints map[string]Endpoint
}

func (c Catalog) Lookup(id string) (Endpoint, bool) {
	ep, ok := c.endpoints[id]
	return ep, ok
}

func (c Catalog) Ids() []string {
	ids := make([]string, 0, len(c.endpoints))
	for id := range c.endpoints {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// With returns a copy of c with eps added or replaced.
func (c Catalog) With(eps ...Endpoint) Catalog {
	next := make(map[string]Endpoint, len(c.endpoints)+len(eps))
	for id, ep := range c.endpoints {
		next[id] = ep
	}
	for _, ep := range eps {
		if len(ep.Path) == 0 {
			ep.Path = ep.Id
		}
		next[ep.Id] = ep
	}
	return Catalog{endpoints: next}
}

func NewCatalog(eps ...Endpoint) Catalog {
	return Catalog{}.With(eps...)
}

func DefaultCatalog() Catalog {
	return NewCatalog(
		Endpoint{Id: "getCryptoList", TTL: 24 * time.Hour},
		Endpoint{Id: "getData", TTL: time.Minute, Required: []string{"symbols"}, TimestampField: "timestamp"},
		Endpoint{Id: "getTop", TTL: 5 * time.Minute, Required: []string{"symbols"}, TimestampField: "timestamp"},
		Endpoint{Id: "getHistory", TTL: time.Hour, Required: []string{"result"}, TimestampField: "timestamp"},
		Endpoint{Id: "getTechnicalAnalysis", TTL: 5 * time.Minute, TimestampField: "timestamp"},
		Endpoint{Id: "getFearGreed", TTL: time.Hour, TimestampField: "timestamp"},
		Endpoint{Id: "getGlobalData", TTL: 5 * time.Minute, TimestampField: "timestamp"},
		Endpoint{Id: "getTrending", TTL: 10 * time.Minute, TimestampField: "timestamp"},
		Endpoint{Id: "getExchanges", TTL: time.Hour},
		Endpoint{Id: "getNews", TTL: 10 * time.Minute, TimestampField: "timestamp"},
		Endpoint{Id: "getSocialSentiment", TTL: 10 * time.Minute, TimestampField: "timestamp"},
		Endpoint{Id: "getDefiProtocols", TTL: time.Hour},
		Endpoint{Id: "getNFTData", TTL: 10 * time.Minute},
		Endpoint{Id: "getBlockchainStats", TTL: 10 * time.Minute},
	)
}

// NormalizeParams returns a copy of params with symbols upper-cased.
func NormalizeParams(params map[string]string) map[string]string {
	out := make(map[string]string, len(params))
	for k, v := range params {
		v = strings.TrimSpace(v)
		if k == "symbol" || k == "symbols" {
			v = strings.ToUpper(v)
		}
		out[k] = v
	}
	return out
}
