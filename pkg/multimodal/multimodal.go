// Package multimodal implements component J: normalizing a caller's
// (text, attachments) pair into the provider-neutral content blocks
// pkg/content defines, by sniffing each attachment's media type rather
// than trusting a caller-supplied content-type header.
package multimodal

import (
	"github.com/gabriel-vasile/mimetype"

	"github.com/nstogner/agentcore/pkg/content"
)

// Attachment is a caller-supplied file whose media type is not yet known.
type Attachment struct {
	Name string
	Data []byte
}

// Normalize converts text plus attachments into an ordered list of
// content blocks: the text (if any) first, then one block per
// attachment in the order given. image/* attachments become image
// blocks, application/pdf becomes a document block, and any other
// text-like media type (per mimetype's detection hierarchy, e.g.
// text/plain, application/json, text/csv) is appended as its own text
// block rather than merged into the caller's prose. Everything else
// becomes an opaque document block.
func Normalize(text string, attachments []Attachment) []content.Block {
	var blocks []content.Block
	if text != "" {
		blocks = append(blocks, content.Text(text))
	}
	for _, a := range attachments {
		blocks = append(blocks, classify(a))
	}
	return blocks
}

func classify(a Attachment) content.Block {
	mt := mimetype.Detect(a.Data)

	switch {
	case isImage(mt):
		return content.Image(mt.String(), a.Data)
	case mt.Is("application/pdf"):
		return content.Document(mt.String(), a.Data, a.Name)
	case isTextLike(mt):
		return content.Text(string(a.Data))
	default:
		return content.Document(mt.String(), a.Data, a.Name)
	}
}

func isImage(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if len(m.String()) >= 6 && m.String()[:6] == "image/" {
			return true
		}
	}
	return false
}

func isTextLike(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}
