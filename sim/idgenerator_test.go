package sim

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("IDGenerator", func() {
	It("should mint sequential IDs per generator instance", func() {
		g1 := NewSequentialIDGenerator()
		g2 := NewSequentialIDGenerator()

		Expect(g1.Generate()).To(Equal("1"))
		Expect(g1.Generate()).To(Equal("2"))
		Expect(g2.Generate()).To(Equal("1"))
	})

	It("should mint unique xids", func() {
		g := NewXIDGenerator()

		Expect(g.Generate()).NotTo(Equal(g.Generate()))
	})
})
