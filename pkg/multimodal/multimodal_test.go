package multimodal

import (
	"testing"

	"github.com/nstogner/agentcore/pkg/content"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}

func TestNormalizeOrdersTextFirst(t *testing.T) {
	blocks := Normalize("hello", []Attachment{{Name: "a.png", Data: pngHeader}})
	if len(blocks) != 2 {
		t.Fatalf("got %d blocks, want 2", len(blocks))
	}
	if blocks[0].Type != content.BlockText || blocks[0].Text != "hello" {
		t.Fatalf("expected first block to be the caller's text, got %+v", blocks[0])
	}
	if blocks[1].Type != content.BlockImage {
		t.Fatalf("expected second block to be an image, got %+v", blocks[1])
	}
}

func TestNormalizeSkipsEmptyText(t *testing.T) {
	blocks := Normalize("", []Attachment{{Data: pngHeader}})
	if len(blocks) != 1 {
		t.Fatalf("got %d blocks, want 1", len(blocks))
	}
}

func TestNormalizeTextLikeAttachmentBecomesTextBlock(t *testing.T) {
	blocks := Normalize("see attached", []Attachment{
		{Name: "notes.txt", Data: []byte("plain text content")},
	})
	if len(blocks) != 2 {
		t.Fatalf("got %d blocks, want 2", len(blocks))
	}
	if blocks[1].Type != content.BlockText {
		t.Fatalf("expected text-like attachment to become a text block, got %+v", blocks[1])
	}
	if blocks[1].Text != "plain text content" {
		t.Fatalf("got %q", blocks[1].Text)
	}
}

func TestNormalizePreservesAttachmentOrder(t *testing.T) {
	blocks := Normalize("", []Attachment{
		{Name: "a.png", Data: pngHeader},
		{Name: "b.txt", Data: []byte("second")},
	})
	if len(blocks) != 2 {
		t.Fatalf("got %d blocks, want 2", len(blocks))
	}
	if blocks[0].Type != content.BlockImage {
		t.Fatalf("expected first attachment (image) to stay first, got %+v", blocks[0])
	}
	if blocks[1].Type != content.BlockText {
		t.Fatalf("expected second attachment (text) to stay second, got %+v", blocks[1])
	}
}

func TestNormalizeUnknownBinaryBecomesDocument(t *testing.T) {
	binary := []byte{0x00, 0x01, 0x02, 0x03, 0xFF, 0xFE, 0xFD, 0x10, 0x20, 0x30}
	blocks := Normalize("", []Attachment{{Name: "blob.bin", Data: binary}})
	if len(blocks) != 1 {
		t.Fatalf("got %d blocks, want 1", len(blocks))
	}
	if blocks[0].Type != content.BlockDocument {
		t.Fatalf("expected unrecognized binary to become a document block, got %+v", blocks[0])
	}
	if blocks[0].Name != "blob.bin" {
		t.Fatalf("expected attachment name to be preserved, got %q", blocks[0].Name)
	}
}
