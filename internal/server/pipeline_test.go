package server

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/receipt-splitter/internal/advisor"
	"github.com/zombor/receipt-splitter/internal/model"
	"github.com/zombor/receipt-splitter/internal/receipt"
	"github.com/zombor/receipt-splitter/internal/storage"
)

// memoryS3 keeps uploaded objects in memory
type memoryS3 struct {
	objects map[string][]byte
	puts    int
	heads   int
}

func (m *memoryS3) HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, nil
}

func (m *memoryS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.puts++
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	m.objects[*params.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *memoryS3) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	m.heads++
	if _, ok := m.objects[*params.Key]; !ok {
		return nil, errors.New("not found")
	}
	return &s3.HeadObjectOutput{}, nil
}

type fixedID struct{}

func (fixedID) Generate() string { return "abc" }

type fixedClock struct{}

func (fixedClock) Now() time.Time { return time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC) }

func pngBytes(width, height int) []byte {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for x := 0; x < width && x < 100; x++ {
		img.SetGray(x, x%height, color.Gray{Y: 200})
	}
	var buf bytes.Buffer
	Expect(png.Encode(&buf, img)).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("Receipt pipeline", func() {
	const (
		transcription = "TOTAL: $12.34"
		document      = `{"vendor":{"name":"Corner Store"},"items":[{"name":"Milk","total_price":12.34}],"summary":{"total":12.34}}`
	)

	var (
		s3Client *memoryS3
		prompts  []model.Prompt
		httpSrv  *httptest.Server
	)

	BeforeEach(func() {
		ctx := context.Background()
		s3Client = &memoryS3{objects: map[string][]byte{}}
		prompts = nil

		store, err := storage.NewBlobStoreWithDeps(ctx, storage.Config{Bucket: "receipts", Region: "us-east-1"},
			s3Client, fixedID{}, fixedClock{}, slog.Default())
		Expect(err).NotTo(HaveOccurred())

		invoker := model.InvokerFunc(func(ctx context.Context, prompt model.Prompt) (string, error) {
			prompts = append(prompts, prompt)
			if len(prompts) == 1 {
				return transcription, nil
			}
			return "```json\n" + document + "\n```", nil
		})

		extractor := receipt.NewExtractor(store, invoker)
		srv := NewServerWithMux(extractor, advisor.New(invoker), &mockLedger{}, BasicAuth{}, http.NewServeMux())
		httpSrv = httptest.NewServer(srv)
	})

	AfterEach(func() {
		httpSrv.Close()
	})

	upload := func(data []byte) *http.Response {
		body, ct := multipartBody("file", "receipt.png", "image/png", data)
		resp, err := http.Post(httpSrv.URL+"/api/receipts/process", ct, body)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	It("uploads the image and returns the structured document", func() {
		resp := upload(pngBytes(800, 600))
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		out := decodeResponse(resp)
		Expect(out).To(HaveKeyWithValue("outcome", "structured"))
		Expect(out).To(HaveKeyWithValue("image_url", "https://receipts.s3.us-east-1.amazonaws.com/receipts/20240315_103000_abc.png"))

		data := out["data"].(map[string]any)
		Expect(data["summary"]).To(HaveKeyWithValue("total", 12.34))
		Expect(data["vendor"]).To(HaveKeyWithValue("name", "Corner Store"))

		Expect(s3Client.puts).To(Equal(1))
		Expect(s3Client.objects).To(HaveKey("receipts/20240315_103000_abc.png"))

		Expect(prompts).To(HaveLen(2))
		Expect(prompts[0].ImageURL).To(Equal(out["image_url"]))
		Expect(prompts[1].Text).To(ContainSubstring(transcription))
	})

	It("rejects oversized images before storing anything", func() {
		resp := upload(pngBytes(5000, 5000))
		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		Expect(decodeResponse(resp)).To(HaveKeyWithValue("detail",
			"uploading receipt image: Image dimensions (5000x5000) exceed maximum allowed (4000x4000)"))

		Expect(s3Client.puts).To(Equal(0))
		Expect(s3Client.heads).To(Equal(0))
		Expect(prompts).To(BeEmpty())
	})

	It("rejects files that are not images", func() {
		resp := upload([]byte("definitely not an image"))
		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		Expect(decodeResponse(resp)).To(HaveKeyWithValue("detail", ContainSubstring("Invalid image data")))
		Expect(s3Client.puts).To(Equal(0))
	})
})
