package acp

import (
	"testing"
)

func TestParseImage(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		wantData string
		wantMime string
		wantErr  bool
	}{
		{"data url", "data:image/jpeg;base64,AAEC", "AAEC", "image/jpeg", false},
		{"bare base64", "iVBORw0KGgo=", "iVBORw0KGgo=", "image/png", false},
		{"not base64", "not an image!", "", "", true},
		{"missing comma", "data:image/png;base64", "", "", true},
		{"not base64 encoded", "data:image/png,raw", "", "", true},
		{"not an image", "data:text/plain;base64,AAEC", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := ParseImage(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseImage() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if img.Data != tt.wantData || img.MimeType != tt.wantMime {
				t.Errorf("ParseImage() = %+v, want data %q mime %q", img, tt.wantData, tt.wantMime)
			}
		})
	}
}

func TestBuildContentBlocks(t *testing.T) {
	blocks := BuildContentBlocks("describe this", []Image{{Data: "AAEC", MimeType: "image/png"}})
	if len(blocks) != 2 {
		t.Fatalf("len(blocks) = %d, want 2", len(blocks))
	}
	if blocks[0].Image == nil {
		t.Error("first block is not an image")
	}
	if blocks[1].Text == nil || blocks[1].Text.Text != "describe this" {
		t.Errorf("second block = %+v, want text", blocks[1])
	}

	if got := BuildContentBlocks("", nil); len(got) != 0 {
		t.Errorf("empty prompt produced %d blocks", len(got))
	}
}
