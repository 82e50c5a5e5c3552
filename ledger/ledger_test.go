package ledger

import (
	"fmt"

	ginkgo "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = ginkgo.Describe("Ledger", func() {
	ginkgo.It("should assign strictly increasing sequence numbers", func() {
		l := NewWithDefaults()

		e1 := l.Append(Activity{NodeID: "a", Action: "emit"})
		e2 := l.Append(Activity{NodeID: "b", Action: "consume"})

		Expect(e1.Sequence).To(Equal(uint64(1)))
		Expect(e2.Sequence).To(Equal(uint64(2)))
		Expect(l.Seq()).To(Equal(uint64(2)))
	})

	ginkgo.It("should keep the global and per-node views consistent", func() {
		l := NewWithDefaults()

		l.Append(Activity{NodeID: "a", Action: "emit", Value: 1})
		l.Append(Activity{NodeID: "b", Action: "consume", Value: 1})
		l.Append(Activity{NodeID: "a", Action: "emit", Value: 2})

		Expect(l.Len()).To(Equal(3))
		Expect(l.Entries()).To(HaveLen(3))

		a := l.NodeEntries("a")
		Expect(a).To(HaveLen(2))
		Expect(a[0].Sequence).To(Equal(uint64(1)))
		Expect(a[1].Sequence).To(Equal(uint64(3)))

		Expect(l.NodeEntries("ghost")).To(BeEmpty())
	})

	ginkgo.It("should trim the global log at its cap without resetting sequences", func() {
		l := New(3, 0)

		for i := 0; i < 5; i++ {
			l.Append(Activity{NodeID: "a", Action: fmt.Sprint(i)})
		}

		entries := l.Entries()
		Expect(entries).To(HaveLen(3))
		Expect(entries[0].Sequence).To(Equal(uint64(3)))
		Expect(entries[2].Sequence).To(Equal(uint64(5)))

		Expect(l.NodeEntries("a")).To(HaveLen(5))
	})

	ginkgo.It("should trim per-node logs independently of the global log", func() {
		l := New(0, 2)

		for i := 0; i < 4; i++ {
			l.Append(Activity{NodeID: "a", Action: fmt.Sprint(i)})
		}

		Expect(l.Entries()).To(HaveLen(4))

		a := l.NodeEntries("a")
		Expect(a).To(HaveLen(2))
		Expect(a[0].Action).To(Equal("2"))
	})

	ginkgo.It("should return copies that callers cannot corrupt", func() {
		l := NewWithDefaults()
		l.Append(Activity{NodeID: "a", Action: "emit"})

		entries := l.Entries()
		entries[0].Action = "mutated"

		Expect(l.Entries()[0].Action).To(Equal("emit"))
	})
})
