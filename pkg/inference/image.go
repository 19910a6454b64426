package inference

import (
	"encoding/base64"
	"fmt"
	"net/http"
)

// Image is an encoded picture returned by GenerateImage.
type Image struct {
	Data     []byte
	MIMEType string
}

// DataURI returns the image as a data: URI suitable for an <img> src.
func (img *Image) DataURI() string {
	mime := img.MIMEType
	if mime == "" {
		mime = http.DetectContentType(img.Data)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

// decodeImage decodes a base64 payload from an image API.
func decodeImage(b64, mime, fallbackMIME string) (*Image, error) {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrNoContent
	}
	if mime == "" {
		mime = fallbackMIME
	}
	return &Image{Data: data, MIMEType: mime}, nil
}
