package analysis

import (
	"encoding/base64"
	"errors"
	"mime"
	"strings"
)

var (
	errNotDataURI   = errors.New("must be a data URI of the form data:<mimetype>;base64,<data>")
	errNotImage     = errors.New("must carry an image MIME type")
	errEmptyPayload = errors.New("image data is empty")
	errBadBase64    = errors.New("image data is not valid base64")
)

// Image is a decoded inline image.
type Image struct {
	MIMEType string
	Data     []byte
}

// ParseImageDataURI decodes a base64 image data URI.
func ParseImageDataURI(uri string) (Image, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return Image{}, errNotDataURI
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return Image{}, errNotDataURI
	}
	mediaType, encoding, ok := strings.Cut(header, ";")
	if !ok || !strings.EqualFold(encoding, "base64") {
		return Image{}, errNotDataURI
	}
	mediaType, _, err := mime.ParseMediaType(mediaType)
	if err != nil || !strings.HasPrefix(mediaType, "image/") {
		return Image{}, errNotImage
	}
	if payload == "" {
		return Image{}, errEmptyPayload
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(payload)
		if err != nil {
			return Image{}, errBadBase64
		}
	}
	return Image{MIMEType: mediaType, Data: data}, nil
}
