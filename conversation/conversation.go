package conversation

import (
	"regexp"
	"sync"
	"time"

	"github.com/w-h-a/grounded/entity"
)

type Role string

const (
	User  Role = "user"
	Agent Role = "agent"
)

type Turn struct {
	Index    int              `json:"index"`
	Role     Role             `json:"role"`
	Text     string           `json:"text"`
	Entities []entity.Mention `json:"entities,omitempty"`
	At       time.Time        `json:"at"`
}

type Resolution struct {
	Query     string
	Resolved  bool
	Ambiguous bool
	Referent  entity.Mention
}

type reference struct {
	pattern *regexp.Regexp
	typ     entity.Type
}

var (
	possessive = regexp.MustCompile(`(?i)\bits\b`)
	pronoun    = regexp.MustCompile(`(?i)\bit\b`)

	references = []reference{
		{pattern: regexp.MustCompile(`(?i)\bthe (coin|token|cryptocurrency|crypto|asset)\b`), typ: entity.Asset},
		{pattern: regexp.MustCompile(`(?i)\bthe (protocol|platform)\b`), typ: entity.Protocol},
		{pattern: regexp.MustCompile(`(?i)\bthe concept\b`), typ: entity.Concept},
	}
)

type tracked struct {
	mention entity.Mention
	turn    int
	// distinct entities of the same type named in that turn
	count int
}

// Conversation holds the bounded window of one session's turns and the
// entities they mentioned.
type Conversation struct {
	options  Options
	turns    []Turn
	head     int
	size     int
	next     int
	entities map[entity.Type]tracked
	mtx      sync.RWMutex
}

// Resolve rewrites pronouns and type references in query to the entity
// they most recently referred to. Ambiguous references pass through, as do
// references the query answers itself with an entity of the same type.
func (c *Conversation) Resolve(query string) Resolution {
	c.mtx.RLock()
	defer c.mtx.RUnlock()

	res := Resolution{Query: query}
	named := c.options.Catalog.Extract(query)

	for _, ref := range references {
		if !ref.pattern.MatchString(query) {
			continue
		}
		// the query names its own entity of that type
		if namesType(named, ref.typ, len(query)) {
			return res
		}
		t, ok := c.live(ref.typ)
		if !ok {
			continue
		}
		if t.count > 1 {
			res.Ambiguous = true
			return res
		}
		res.Query = ref.pattern.ReplaceAllString(res.Query, t.mention.Canonical)
		res.Referent = t.mention
		res.Resolved = true
		return res
	}

	at := firstPronoun(query)
	if at < 0 {
		return res
	}

	t, ambiguous, ok := c.latest()
	if !ok {
		return res
	}
	if ambiguous {
		res.Ambiguous = true
		return res
	}

	// a same-typed entity ahead of the pronoun is its antecedent, and an
	// antecedent the query already names needs no substitution
	if namesType(named, t.mention.Type, at) || namesEntity(named, t.mention.Canonical) {
		return res
	}

	resolved := possessive.ReplaceAllString(query, t.mention.Canonical+"'s")
	resolved = pronoun.ReplaceAllString(resolved, t.mention.Canonical)

	res.Query = resolved
	res.Referent = t.mention
	res.Resolved = true

	return res
}

// Record appends a turn, evicting the oldest once the window is full.
// Only user turns update the entity table.
func (c *Conversation) Record(role Role, text string, at time.Time) Turn {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	c.next++

	mentions := c.options.Catalog.Extract(text)

	turn := Turn{
		Index:    c.next,
		Role:     role,
		Text:     text,
		Entities: mentions,
		At:       at,
	}

	capacity := len(c.turns)
	if c.size < capacity {
		c.turns[(c.head+c.size)%capacity] = turn
		c.size++
	} else {
		c.turns[c.head] = turn
		c.head = (c.head + 1) % capacity
	}

	if role != User {
		return turn
	}

	counts := map[entity.Type]int{}
	for _, m := range mentions {
		counts[m.Type]++
	}

	for _, m := range mentions {
		c.entities[m.Type] = tracked{
			mention: m,
			turn:    c.next,
			count:   counts[m.Type],
		}
	}

	return turn
}

// History returns the turns in the window, oldest first.
func (c *Conversation) History() []Turn {
	c.mtx.RLock()
	defer c.mtx.RUnlock()

	out := make([]Turn, 0, c.size)
	for i := 0; i < c.size; i++ {
		out = append(out, c.turns[(c.head+i)%len(c.turns)])
	}

	return out
}

func (c *Conversation) Len() int {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return c.size
}

func (c *Conversation) Clear() {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	c.turns = make([]Turn, c.options.WindowSize)
	c.head = 0
	c.size = 0
	c.entities = map[entity.Type]tracked{}
}

func (c *Conversation) live(typ entity.Type) (tracked, bool) {
	t, ok := c.entities[typ]
	if !ok || t.turn <= c.next-c.options.WindowSize {
		return tracked{}, false
	}
	return t, true
}

// latest picks the most recently mentioned entity of any type. Within one
// turn assets win over protocols, protocols over concepts.
func (c *Conversation) latest() (tracked, bool, bool) {
	var (
		best  tracked
		found bool
	)

	for _, typ := range []entity.Type{entity.Asset, entity.Protocol, entity.Concept} {
		t, ok := c.live(typ)
		if !ok {
			continue
		}
		if !found || t.turn > best.turn {
			best = t
			found = true
		}
	}

	return best, found && best.count > 1, found
}

func firstPronoun(query string) int {
	at := -1
	for _, re := range []*regexp.Regexp{possessive, pronoun} {
		if loc := re.FindStringIndex(query); loc != nil && (at < 0 || loc[0] < at) {
			at = loc[0]
		}
	}
	return at
}

// namesType reports whether any entity of typ starts before offset.
func namesType(named []entity.Mention, typ entity.Type, before int) bool {
	for _, m := range named {
		if m.Type == typ && m.Offset < before {
			return true
		}
	}
	return false
}

func namesEntity(named []entity.Mention, canonical string) bool {
	for _, m := range named {
		if m.Canonical == canonical {
			return true
		}
	}
	return false
}

func New(opts ...Option) *Conversation {
	options := NewOptions(opts...)

	return &Conversation{
		options:  options,
		turns:    make([]Turn, options.WindowSize),
		entities: map[entity.Type]tracked{},
		mtx:      sync.RWMutex{},
	}
}
