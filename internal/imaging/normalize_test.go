package imaging

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Normalize", func() {
	var (
		data        []byte
		contentType string
		out         []byte
		converted   bool
		err         error
	)

	JustBeforeEach(func() {
		out, converted, err = Normalize(data, contentType)
	})

	When("the upload is a PNG", func() {
		BeforeEach(func() {
			data = encodePNG(10, 10)
			contentType = "image/png"
		})

		It("returns the data untouched", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(converted).To(BeFalse())
			Expect(out).To(Equal(data))
		})
	})

	When("the upload is an unsupported format", func() {
		BeforeEach(func() {
			data = []byte("GIF89a....")
			contentType = "image/gif"
		})

		It("leaves rejection to Validate", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(converted).To(BeFalse())
			Expect(out).To(Equal(data))
		})
	})

	When("the upload claims to be HEIC but is corrupt", func() {
		BeforeEach(func() {
			data = []byte("not really heic")
			contentType = "image/HEIC"
		})

		It("returns a conversion error", func() {
			Expect(err).To(MatchError(ContainSubstring("converting HEIC")))
		})
	})

	When("the upload is empty", func() {
		BeforeEach(func() {
			data = nil
			contentType = "application/pdf"
		})

		It("does not attempt a conversion", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(converted).To(BeFalse())
		})
	})
})

var _ = Describe("isHEICFormat", func() {
	It("detects HEIC brands", func() {
		Expect(isHEICFormat([]byte("\x00\x00\x00\x18ftypheic"))).To(BeTrue())
		Expect(isHEICFormat([]byte("\x00\x00\x00\x18ftypmif1"))).To(BeTrue())
	})

	It("ignores other files", func() {
		Expect(isHEICFormat([]byte("\x00\x00\x00\x18ftypisom"))).To(BeFalse())
		Expect(isHEICFormat([]byte("short"))).To(BeFalse())
	})
})
