package sim

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Token", func() {
	var origin *Token

	BeforeEach(func() {
		origin = NewToken("t1", "corr-1", 42,
			LineageStep{NodeID: "source", Time: 10, Operation: "emit"})
	})

	It("should mint with one correlation ID and one lineage step", func() {
		Expect(origin.CorrelationIDs).To(Equal([]string{"corr-1"}))
		Expect(origin.Lineage).To(HaveLen(1))
		Expect(origin.PrimaryCorrelationID()).To(Equal("corr-1"))
	})

	It("should derive with the correlation preserved and the lineage extended", func() {
		d := origin.Derive("t2", 43,
			LineageStep{NodeID: "proc", Time: 20, Operation: "process"})

		Expect(d.ID).To(Equal("t2"))
		Expect(d.Value).To(Equal(43))
		Expect(d.CorrelationIDs).To(Equal([]string{"corr-1"}))
		Expect(d.Lineage).To(HaveLen(2))
		Expect(d.Lineage[1].NodeID).To(Equal("proc"))

		Expect(origin.Lineage).To(HaveLen(1))
	})

	It("should not share correlation slices with the derived token", func() {
		d := origin.Derive("t2", 43,
			LineageStep{NodeID: "proc", Time: 20, Operation: "process"})
		d.CorrelationIDs[0] = "mutated"

		Expect(origin.CorrelationIDs[0]).To(Equal("corr-1"))
	})

	It("should set metadata on a copy only", func() {
		m := origin.WithMetadata("priority", 3)

		Expect(m.Metadata).To(HaveKeyWithValue("priority", 3))
		Expect(origin.Metadata).To(BeNil())
	})

	It("should accumulate metadata across copies", func() {
		m := origin.WithMetadata("a", 1).WithMetadata("b", 2)

		Expect(m.Metadata).To(HaveKeyWithValue("a", 1))
		Expect(m.Metadata).To(HaveKeyWithValue("b", 2))
	})

	It("should return an empty primary correlation for a bare token", func() {
		Expect((&Token{}).PrimaryCorrelationID()).To(Equal(""))
	})
})

var _ = Describe("Combine", func() {
	step := func(node string) LineageStep {
		return LineageStep{NodeID: node, Time: 50, Operation: "join"}
	}

	It("should union correlation IDs in first-seen order", func() {
		a := NewToken("a", "corr-1", 1, step("s1"))
		b := NewToken("b", "corr-2", 2, step("s2"))

		out := Combine("j1", []any{1, 2}, []*Token{a, b}, step("joiner"))

		Expect(out.CorrelationIDs).To(Equal([]string{"corr-1", "corr-2"}))
		Expect(out.PrimaryCorrelationID()).To(Equal("corr-1"))
	})

	It("should deduplicate shared correlation IDs", func() {
		a := NewToken("a", "corr-1", 1, step("s1"))
		b := NewToken("b", "corr-1", 2, step("s2"))

		out := Combine("j1", 3, []*Token{a, b}, step("joiner"))

		Expect(out.CorrelationIDs).To(Equal([]string{"corr-1"}))
	})

	It("should concatenate the contributor lineages plus one new step", func() {
		a := NewToken("a", "corr-1", 1, step("s1"))
		b := NewToken("b", "corr-2", 2, step("s2"))

		out := Combine("j1", 3, []*Token{a, b}, step("joiner"))

		Expect(out.Lineage).To(HaveLen(3))
		Expect(out.Lineage[0].NodeID).To(Equal("s1"))
		Expect(out.Lineage[1].NodeID).To(Equal("s2"))
		Expect(out.Lineage[2].NodeID).To(Equal("joiner"))
	})
})

var _ = Describe("AsFloat", func() {
	It("should coerce the numeric types token values carry", func() {
		for _, v := range []any{42, int64(42), float64(42), uint8(42), Tick(42)} {
			f, ok := AsFloat(v)
			Expect(ok).To(BeTrue())
			Expect(f).To(Equal(42.0))
		}
	})

	It("should reject non-numeric values", func() {
		_, ok := AsFloat("42")
		Expect(ok).To(BeFalse())
	})
})

var _ = Describe("Field", func() {
	It("should look up map-shaped values", func() {
		v, ok := Field(map[string]any{"region": "eu"}, "region")
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal("eu"))
	})

	It("should fail on scalar values", func() {
		_, ok := Field(7, "region")
		Expect(ok).To(BeFalse())
	})
})
