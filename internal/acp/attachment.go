package acp

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/coder/acp-go-sdk"
)

// Image is an image attached to a task.
type Image struct {
	// Data is the base64-encoded image.
	Data     string
	MimeType string
}

// ParseImage parses an image as carried by a newTask command: a data URL
// ("data:image/png;base64,...") or bare base64, which is taken as PNG.
func ParseImage(s string) (Image, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "data:") {
		if _, err := base64.StdEncoding.DecodeString(s); err != nil {
			return Image{}, fmt.Errorf("image is neither a data URL nor base64: %w", err)
		}
		return Image{Data: s, MimeType: "image/png"}, nil
	}

	header, data, ok := strings.Cut(strings.TrimPrefix(s, "data:"), ",")
	if !ok {
		return Image{}, fmt.Errorf("malformed data URL")
	}
	mimeType, encoding, _ := strings.Cut(header, ";")
	if encoding != "base64" {
		return Image{}, fmt.Errorf("unsupported data URL encoding %q", encoding)
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return Image{}, fmt.Errorf("unsupported attachment type %q", mimeType)
	}
	return Image{Data: data, MimeType: mimeType}, nil
}

// BuildContentBlocks creates the prompt content for a task. Images go
// before the text so they give context to it.
func BuildContentBlocks(text string, images []Image) []acp.ContentBlock {
	blocks := make([]acp.ContentBlock, 0, len(images)+1)
	for _, img := range images {
		blocks = append(blocks, acp.ImageBlock(img.Data, img.MimeType))
	}
	if text != "" {
		blocks = append(blocks, acp.TextBlock(text))
	}
	return blocks
}
