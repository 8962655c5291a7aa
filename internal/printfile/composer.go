package printfile

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"io"
	"net/http"
	"time"

	"github.com/disintegration/imaging"
)

// PrintFile is the ephemeral print-ready artifact: a bordered, correctly
// proportioned buffer handed straight to the asset uploader. Only its
// storage location is ever persisted.
type PrintFile struct {
	Data     []byte
	Filename string
	Width    int
	Height   int
}

type dimensions struct {
	width  int
	height int
	border int
}

// printSizes maps the storefront print sizes to pixel dimensions at
// 300 DPI, with the white border the print partner expects baked in.
var printSizes = map[string]dimensions{
	"A4":    {width: 2480, height: 3508, border: 120},
	"A3":    {width: 3508, height: 4961, border: 160},
	"A2":    {width: 4961, height: 7016, border: 200},
	"30x40": {width: 3543, height: 4724, border: 160},
	"50x70": {width: 5906, height: 8268, border: 240},
}

const jpegQuality = 95

type Composer struct {
	httpClient *http.Client
}

func NewComposer() *Composer {
	return &Composer{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Compose downloads the high-resolution image and fits it onto a white
// canvas at the requested print size, preserving aspect ratio and leaving
// an even border on all sides.
func (c *Composer) Compose(ctx context.Context, imageURL, printSize, orderID string) (*PrintFile, error) {
	dims, ok := printSizes[printSize]
	if !ok {
		return nil, fmt.Errorf("unknown print size: %q", printSize)
	}

	data, err := c.download(ctx, imageURL)
	if err != nil {
		return nil, err
	}

	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode source image: %w", err)
	}

	innerW := dims.width - 2*dims.border
	innerH := dims.height - 2*dims.border
	fitted := imaging.Fit(src, innerW, innerH, imaging.Lanczos)

	canvas := imaging.New(dims.width, dims.height, color.White)
	offset := image.Pt(
		(dims.width-fitted.Bounds().Dx())/2,
		(dims.height-fitted.Bounds().Dy())/2,
	)
	canvas = imaging.Paste(canvas, fitted, offset)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, canvas, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("failed to encode print file: %w", err)
	}

	return &PrintFile{
		Data:     buf.Bytes(),
		Filename: fmt.Sprintf("%s_%s_print.jpg", orderID, printSize),
		Width:    dims.width,
		Height:   dims.height,
	}, nil
}

func (c *Composer) download(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("failed to download image: status %d, body: %s", resp.StatusCode, string(body))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image body: %w", err)
	}
	return data, nil
}

// SupportedSizes lists the print sizes the composer can produce, for
// request validation at the edges.
func SupportedSizes() []string {
	sizes := make([]string, 0, len(printSizes))
	for size := range printSizes {
		sizes = append(sizes, size)
	}
	return sizes
}
