package smtp

import (
	"fmt"
	"mime"
	"mime/quotedprintable"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pure-golang/bikerental/mail"
)

// buildMessage builds the raw RFC 5322 message.
func buildMessage(email mail.Email, messageID string, now time.Time) []byte {
	var msg strings.Builder

	writeHeader(&msg, "From", email.From.String())
	if len(email.To) > 0 {
		writeHeader(&msg, "To", formatAddressList(email.To))
	}
	if len(email.Cc) > 0 {
		writeHeader(&msg, "Cc", formatAddressList(email.Cc))
	}
	if !email.ReplyTo.IsZero() {
		writeHeader(&msg, "Reply-To", email.ReplyTo.String())
	}
	writeHeader(&msg, "Subject", mime.QEncoding.Encode("utf-8", email.Subject))
	writeHeader(&msg, "Date", now.Format(time.RFC1123Z))
	writeHeader(&msg, "Message-ID", messageID)
	writeHeader(&msg, "MIME-Version", "1.0")

	keys := make([]string, 0, len(email.Headers))
	for k := range email.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeHeader(&msg, k, email.Headers[k])
	}

	if email.HTML == "" {
		writePart(&msg, "text/plain", email.Text)
		return []byte(msg.String())
	}

	boundary := "alt_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	writeHeader(&msg, "Content-Type", fmt.Sprintf("multipart/alternative; boundary=%q", boundary))
	msg.WriteString("\r\n")

	msg.WriteString("--" + boundary + "\r\n")
	writePart(&msg, "text/plain", email.Text)
	msg.WriteString("--" + boundary + "\r\n")
	writePart(&msg, "text/html", email.HTML)
	msg.WriteString("--" + boundary + "--\r\n")

	return []byte(msg.String())
}

func writeHeader(msg *strings.Builder, key, value string) {
	// Header injection guard.
	value = strings.NewReplacer("\r", "", "\n", "").Replace(value)
	msg.WriteString(key + ": " + value + "\r\n")
}

func writePart(msg *strings.Builder, contentType, body string) {
	writeHeader(msg, "Content-Type", contentType+"; charset=UTF-8")
	writeHeader(msg, "Content-Transfer-Encoding", "quoted-printable")
	msg.WriteString("\r\n")

	w := quotedprintable.NewWriter(msg)
	// Line breaks are normalized to CRLF by the encoder. strings.Builder never fails.
	_, _ = w.Write([]byte(body))
	_ = w.Close()
	msg.WriteString("\r\n")
}

// formatAddressList formats a list of addresses.
func formatAddressList(addrs []mail.Address) string {
	formatted := make([]string, len(addrs))
	for i, addr := range addrs {
		formatted[i] = addr.String()
	}
	return strings.Join(formatted, ", ")
}
