package mail

import (
	"bytes"
	"io"
	"strings"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// parsedBody holds the inline text parts of a message.
type parsedBody struct {
	Text string
	HTML string
}

// readableBody decodes a raw RFC 5322 message into text. The text/plain part
// is returned as is. Otherwise the text/html part, or failing that the raw
// bytes, is reduced to its visible text.
func readableBody(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}

	parsed, ok := parseMIMEBody(raw)
	if !ok {
		return htmlToText(string(raw))
	}

	switch {
	case parsed.Text != "":
		return parsed.Text
	case parsed.HTML != "":
		return htmlToText(parsed.HTML)
	default:
		return htmlToText(string(raw))
	}
}

// parseMIMEBody walks the message parts with go-message. Attachments are
// skipped. The charset import registers decoders for non UTF-8 parts.
func parseMIMEBody(raw []byte) (parsedBody, bool) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return parsedBody{}, false
	}
	defer mr.Close()

	var parsed parsedBody
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}

		contentType, _, _ := h.ContentType()
		if contentType == "" {
			contentType = "text/plain"
		}
		body, readErr := io.ReadAll(part.Body)
		if readErr != nil {
			continue
		}

		switch {
		case strings.HasPrefix(contentType, "text/plain") && parsed.Text == "":
			parsed.Text = string(body)
		case strings.HasPrefix(contentType, "text/html") && parsed.HTML == "":
			parsed.HTML = string(body)
		}
	}

	return parsed, true
}
