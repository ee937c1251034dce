package helpers

import (
	"io"
	"strings"

	"github.com/emersion/go-message"
	"github.com/k3a/html2text"
)

// ExtractTextFromRaw parses a raw RFC 822 message and returns its body as
// plain text. The MIME tree is walked depth-first; the first text/plain part
// wins, otherwise the first text/html part is converted to plain text. A
// message that cannot be parsed yields an empty string and the parse error,
// so callers can degrade instead of failing the request.
func ExtractTextFromRaw(raw []byte) (string, error) {
	entity, err := message.Read(strings.NewReader(string(raw)))
	if err != nil && !message.IsUnknownCharset(err) {
		return "", err
	}
	if entity == nil {
		return "", nil
	}

	var plaintext, html string

	var walk func(e *message.Entity)
	walk = func(e *message.Entity) {
		mediaType, _, _ := e.Header.ContentType()

		if strings.HasPrefix(mediaType, "multipart/") {
			mr := e.MultipartReader()
			if mr == nil {
				return
			}
			for {
				part, err := mr.NextPart()
				if err != nil {
					return
				}
				walk(part)
			}
		}

		content, err := io.ReadAll(e.Body)
		if err != nil {
			return
		}

		switch mediaType {
		case "text/plain":
			if plaintext == "" {
				plaintext = string(content)
			}
		case "text/html":
			if html == "" {
				html = string(content)
			}
		}
	}
	walk(entity)

	if strings.TrimSpace(plaintext) != "" {
		return plaintext, nil
	}
	if html != "" {
		return html2text.HTML2Text(html), nil
	}
	return "", nil
}
