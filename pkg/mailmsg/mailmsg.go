// Package mailmsg parses raw RFC 5322 bytes into api.RawMessage values.
package mailmsg

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset" // registers charset decoders
	"github.com/emersion/go-message/mail"

	"github.com/ArionMiles/cardtx/pkg/api"
)

// ErrMalformed is returned when raw bytes cannot be read as a message.
var ErrMalformed = errors.New("malformed message")

// Parse reads headers and inline parts of raw. Parts are returned in
// message order with transfer and charset encodings already decoded.
// Unknown charsets and unreadable parts are tolerated; the affected
// bytes are kept as-is or the part is skipped.
func Parse(id string, raw []byte) (*api.RawMessage, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, id, err)
	}
	defer mr.Close()

	msg := &api.RawMessage{
		ID:   id,
		From: mr.Header.Get("From"),
	}
	if subject, err := mr.Header.Subject(); err == nil {
		msg.Subject = subject
	} else {
		msg.Subject = mr.Header.Get("Subject")
	}
	if addrs, err := mr.Header.AddressList("From"); err == nil && len(addrs) > 0 {
		msg.Address = strings.ToLower(addrs[0].Address)
	}
	if date, err := mr.Header.Date(); err == nil {
		msg.Date = date
	}
	if msgID, err := mr.Header.MessageID(); err == nil && msgID != "" && id == "" {
		msg.ID = msgID
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) || message.IsUnknownEncoding(err) {
				continue
			}
			if len(msg.Parts) == 0 {
				return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, id, err)
			}
			break
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, err := h.ContentType()
		if err != nil || contentType == "" {
			contentType = "text/plain"
		}
		body, err := io.ReadAll(part.Body)
		if err != nil && len(body) == 0 {
			continue
		}
		msg.Parts = append(msg.Parts, api.Part{
			ContentType: strings.ToLower(contentType),
			Body:        body,
		})
	}

	return msg, nil
}
