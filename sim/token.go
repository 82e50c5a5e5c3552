package sim

// A LineageStep records one operation applied to a token.
type LineageStep struct {
	NodeID    string `json:"node_id"`
	Time      Tick   `json:"time"`
	Operation string `json:"operation"`
}

// A Token is the unit of data that flows along the edges of a scenario. A
// token is never mutated after it is emitted; every transformation mints a
// new token with a new ID.
type Token struct {
	ID             string         `json:"id"`
	Value          any            `json:"value"`
	CorrelationIDs []string       `json:"correlation_ids"`
	Lineage        []LineageStep  `json:"lineage"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// NewToken mints a token with a single correlation ID. DataSource nodes and
// the external-input adapter are the only places where tokens are born.
func NewToken(id, correlationID string, value any, origin LineageStep) *Token {
	return &Token{
		ID:             id,
		Value:          value,
		CorrelationIDs: []string{correlationID},
		Lineage:        []LineageStep{origin},
	}
}

// Derive produces the pass-through transformation of t: a new token ID, the
// same correlation IDs, and the lineage extended by one step.
func (t *Token) Derive(id string, value any, step LineageStep) *Token {
	return &Token{
		ID:             id,
		Value:          value,
		CorrelationIDs: copyStrings(t.CorrelationIDs),
		Lineage:        appendLineage(t.Lineage, step),
		Metadata:       copyMetadata(t.Metadata),
	}
}

// WithMetadata returns a copy of the token with one metadata entry set. The
// receiver is left untouched.
func (t *Token) WithMetadata(key string, value any) *Token {
	c := *t
	c.CorrelationIDs = copyStrings(t.CorrelationIDs)
	c.Lineage = appendLineage(t.Lineage)
	c.Metadata = copyMetadata(t.Metadata)
	if c.Metadata == nil {
		c.Metadata = map[string]any{}
	}
	c.Metadata[key] = value
	return &c
}

// PrimaryCorrelationID returns the first correlation ID carried by the
// token. Joiners key their pending state by this ID.
func (t *Token) PrimaryCorrelationID() string {
	if len(t.CorrelationIDs) == 0 {
		return ""
	}
	return t.CorrelationIDs[0]
}

// Combine merges the given tokens into one. The correlation-ID set of the
// result is the union of all contributors' sets in first-seen order, and the
// lineage is the concatenation of all contributing lineages plus the given
// step. The contributors' order determines both.
func Combine(id string, value any, contributors []*Token, step LineageStep) *Token {
	var (
		corr    []string
		seen    = map[string]bool{}
		lineage []LineageStep
	)

	for _, c := range contributors {
		for _, cid := range c.CorrelationIDs {
			if seen[cid] {
				continue
			}
			seen[cid] = true
			corr = append(corr, cid)
		}

		lineage = append(lineage, c.Lineage...)
	}

	lineage = append(lineage, step)

	return &Token{
		ID:             id,
		Value:          value,
		CorrelationIDs: corr,
		Lineage:        lineage,
	}
}

func copyStrings(s []string) []string {
	if s == nil {
		return nil
	}

	c := make([]string, len(s))
	copy(c, s)

	return c
}

func appendLineage(l []LineageStep, steps ...LineageStep) []LineageStep {
	c := make([]LineageStep, 0, len(l)+len(steps))
	c = append(c, l...)
	c = append(c, steps...)

	return c
}

func copyMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}

	c := make(map[string]any, len(m))
	for k, v := range m {
		c[k] = v
	}

	return c
}
