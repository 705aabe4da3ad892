package normalize

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"mailme/backend/internal/domain"
)

// Hints 是传输层附带的收发件人提示，仅在邮件头缺失时使用。
type Hints struct {
	From string
	To   string
}

var wordDecoder = &mime.WordDecoder{CharsetReader: charsetReader}

// errMissingHeader 表示载荷没有可解析的邮件头块。
var errMissingHeader = errors.New("missing header block")

// FromRFC822 解析原始 RFC822 邮件，提取首个收发件人以及纯文本和 HTML 正文。
//
// 载荷必须包含至少一个邮件头和头/体之间的空行，否则返回 ErrParse。
func (n *Normalizer) FromRFC822(raw []byte, hints Hints) (*domain.InboundMessage, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("%w: empty message", domain.ErrParse)
	}
	if !hasHeaderSeparator(raw) {
		return nil, fmt.Errorf("%w: %w", domain.ErrParse, errMissingHeader)
	}

	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %v", domain.ErrParse, errMissingHeader, err)
	}
	if len(msg.Header) == 0 {
		return nil, fmt.Errorf("%w: %w", domain.ErrParse, errMissingHeader)
	}

	out := &domain.InboundMessage{
		Subject: decodeHeader(msg.Header.Get("Subject")),
		From:    firstSender(msg.Header.Get("From")),
		To:      firstRecipient(msg.Header.Get("To")),
	}
	if out.To == "" {
		out.To = firstRecipient(hints.To)
	}
	if out.From == "" {
		out.From = firstSender(hints.From)
	}
	if out.To == "" {
		return nil, fmt.Errorf("%w: missing recipient", domain.ErrParse)
	}

	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	if err != nil {
		// 无 Content-Type 视为纯文本
		body, readErr := decodeBody(msg.Body, msg.Header.Get("Content-Transfer-Encoding"), "")
		if readErr != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrParse, readErr)
		}
		out.Text = body
		return n.finish(out), nil
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return nil, fmt.Errorf("%w: multipart message without boundary", domain.ErrParse)
		}
		if err := parseMultipart(multipart.NewReader(msg.Body, boundary), out); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrParse, err)
		}
		return n.finish(out), nil
	}

	body, err := decodeBody(msg.Body, msg.Header.Get("Content-Transfer-Encoding"), params["charset"])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrParse, err)
	}
	if mediaType == "text/html" {
		out.HTML = body
	} else {
		out.Text = body
	}
	return n.finish(out), nil
}

// parseMultipart 递归遍历各部分，取第一个 text/plain 与第一个 text/html，附件忽略。
func parseMultipart(mr *multipart.Reader, out *domain.InboundMessage) error {
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		mediaType, params, err := mime.ParseMediaType(part.Header.Get("Content-Type"))
		if err != nil {
			mediaType = "text/plain"
		}

		if disposition, _, _ := mime.ParseMediaType(part.Header.Get("Content-Disposition")); disposition == "attachment" {
			continue
		}

		if strings.HasPrefix(mediaType, "multipart/") {
			if boundary := params["boundary"]; boundary != "" {
				if err := parseMultipart(multipart.NewReader(part, boundary), out); err != nil {
					return err
				}
			}
			continue
		}

		if mediaType != "text/plain" && mediaType != "text/html" {
			continue
		}

		body, err := decodeBody(part, part.Header.Get("Content-Transfer-Encoding"), params["charset"])
		if err != nil {
			continue
		}

		switch {
		case mediaType == "text/html" && out.HTML == "":
			out.HTML = body
		case mediaType == "text/plain" && out.Text == "":
			out.Text = body
		}
	}
}

// decodeBody 依据传输编码和字符集解码正文。
func decodeBody(reader io.Reader, transferEncoding, charset string) (string, error) {
	var decoded io.Reader
	switch strings.ToLower(strings.TrimSpace(transferEncoding)) {
	case "base64":
		decoded = base64.NewDecoder(base64.StdEncoding, reader)
	case "quoted-printable":
		decoded = quotedprintable.NewReader(reader)
	default:
		decoded = reader
	}

	body, err := io.ReadAll(decoded)
	if err != nil {
		return "", err
	}

	charset = strings.ToLower(strings.TrimSpace(charset))
	if charset == "" || charset == "utf-8" || charset == "us-ascii" {
		return string(body), nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return string(body), nil
	}
	converted, _, err := transform.Bytes(enc.NewDecoder(), body)
	if err != nil {
		return string(body), nil
	}
	return string(converted), nil
}

func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(strings.ToLower(charset))
	if err != nil {
		return nil, err
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}

// decodeHeader 解码 RFC2047 编码的头部，失败时原样返回。
func decodeHeader(value string) string {
	decoded, err := wordDecoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}

// FromSMTPData 解析 SMTP DATA 内容。没有邮件头块时整段内容作为纯文本正文，
// 收发件人取自信封。
func (n *Normalizer) FromSMTPData(raw []byte, envelope Hints) (*domain.InboundMessage, error) {
	msg, err := n.FromRFC822(raw, envelope)
	if err == nil || !errors.Is(err, errMissingHeader) {
		return msg, err
	}

	to := firstRecipient(envelope.To)
	if to == "" {
		return nil, err
	}
	return n.finish(&domain.InboundMessage{
		From: firstSender(envelope.From),
		To:   to,
		Text: string(raw),
	}), nil
}

// hasHeaderSeparator 判断载荷中是否存在头/体分隔空行。
func hasHeaderSeparator(raw []byte) bool {
	return bytes.Contains(raw, []byte("\r\n\r\n")) || bytes.Contains(raw, []byte("\n\n"))
}

// firstRecipient 返回地址列表中第一个裸地址。
func firstRecipient(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parser := mail.AddressParser{WordDecoder: wordDecoder}
	if list, err := parser.ParseList(header); err == nil && len(list) > 0 {
		return list[0].Address
	}
	first := strings.TrimSpace(strings.Split(header, ",")[0])
	return strings.Trim(first, "<>")
}

// firstSender 返回第一个发件人，保留显示名；非法格式原样保留。
func firstSender(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parser := mail.AddressParser{WordDecoder: wordDecoder}
	list, err := parser.ParseList(header)
	if err != nil || len(list) == 0 {
		return decodeHeader(header)
	}
	if list[0].Name == "" {
		return list[0].Address
	}
	return list[0].Name + " <" + list[0].Address + ">"
}
