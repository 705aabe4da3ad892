package normalize

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailme/backend/internal/domain"
)

var fixedNow = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

func newTestNormalizer() *Normalizer {
	return New().WithClock(func() time.Time { return fixedNow })
}

func TestFromRFC822(t *testing.T) {
	n := newTestNormalizer()

	t.Run("解析纯文本邮件", func(t *testing.T) {
		raw := "From: Alice <alice@example.com>\r\n" +
			"To: bob@mailme.local\r\n" +
			"Subject: Hello\r\n" +
			"\r\n" +
			"Hi Bob\r\n"

		msg, err := n.FromRFC822([]byte(raw), Hints{})
		require.NoError(t, err)
		assert.Equal(t, "Alice <alice@example.com>", msg.From)
		assert.Equal(t, "bob@mailme.local", msg.To)
		assert.Equal(t, "Hello", msg.Subject)
		assert.Equal(t, "Hi Bob\r\n", msg.Text)
		assert.Empty(t, msg.HTML)
		assert.Equal(t, "Hi Bob\r\n", msg.Snippet)
		assert.Equal(t, fixedNow, msg.ReceivedAt)
	})

	t.Run("多个收件人取第一个", func(t *testing.T) {
		raw := "From: a@example.com\r\nTo: first@mailme.local, second@mailme.local\r\n\r\nbody"
		msg, err := n.FromRFC822([]byte(raw), Hints{})
		require.NoError(t, err)
		assert.Equal(t, "first@mailme.local", msg.To)
	})

	t.Run("解析 multipart/alternative", func(t *testing.T) {
		raw := strings.Join([]string{
			"From: a@example.com",
			"To: bob@mailme.local",
			"Subject: =?UTF-8?B?5L2g5aW9?=",
			"MIME-Version: 1.0",
			`Content-Type: multipart/alternative; boundary="XYZ"`,
			"",
			"--XYZ",
			"Content-Type: text/plain; charset=utf-8",
			"",
			"plain body",
			"--XYZ",
			"Content-Type: text/html; charset=utf-8",
			"Content-Transfer-Encoding: base64",
			"",
			"PHA+aHRtbCBib2R5PC9wPg==",
			"--XYZ--",
			"",
		}, "\r\n")

		msg, err := n.FromRFC822([]byte(raw), Hints{})
		require.NoError(t, err)
		assert.Equal(t, "你好", msg.Subject)
		assert.Equal(t, "plain body", msg.Text)
		assert.Equal(t, "<p>html body</p>", msg.HTML)
		assert.Equal(t, "plain body", msg.Snippet)
	})

	t.Run("仅HTML时摘要去除标签", func(t *testing.T) {
		raw := "From: a@example.com\r\nTo: bob@mailme.local\r\nContent-Type: text/html\r\n\r\n<p>Hi <b>there</b></p>"
		msg, err := n.FromRFC822([]byte(raw), Hints{})
		require.NoError(t, err)
		assert.Empty(t, msg.Text)
		assert.Equal(t, "Hi there", msg.Snippet)
	})

	t.Run("quoted-printable 与字符集转换", func(t *testing.T) {
		raw := "From: a@example.com\r\nTo: bob@mailme.local\r\n" +
			"Content-Type: text/plain; charset=iso-8859-1\r\n" +
			"Content-Transfer-Encoding: quoted-printable\r\n\r\n" +
			"caf=E9"
		msg, err := n.FromRFC822([]byte(raw), Hints{})
		require.NoError(t, err)
		assert.Equal(t, "café", msg.Text)
	})

	t.Run("附件被忽略", func(t *testing.T) {
		raw := strings.Join([]string{
			"From: a@example.com",
			"To: bob@mailme.local",
			`Content-Type: multipart/mixed; boundary="B"`,
			"",
			"--B",
			"Content-Type: text/plain",
			"",
			"see attached",
			"--B",
			"Content-Type: text/plain",
			`Content-Disposition: attachment; filename="a.txt"`,
			"",
			"attachment text",
			"--B--",
			"",
		}, "\r\n")
		msg, err := n.FromRFC822([]byte(raw), Hints{})
		require.NoError(t, err)
		assert.Equal(t, "see attached", msg.Text)
	})

	t.Run("缺少主题使用默认值", func(t *testing.T) {
		raw := "From: a@example.com\r\nTo: bob@mailme.local\r\n\r\nbody"
		msg, err := n.FromRFC822([]byte(raw), Hints{})
		require.NoError(t, err)
		assert.Equal(t, domain.NoSubject, msg.Subject)
	})

	t.Run("缺少收件人时使用提示头", func(t *testing.T) {
		raw := "Subject: hi\r\n\r\nbody"
		msg, err := n.FromRFC822([]byte(raw), Hints{To: "bob@mailme.local", From: "c@example.com"})
		require.NoError(t, err)
		assert.Equal(t, "bob@mailme.local", msg.To)
		assert.Equal(t, "c@example.com", msg.From)
	})

	t.Run("缺少收件人且无提示返回解析错误", func(t *testing.T) {
		_, err := n.FromRFC822([]byte("Subject: hi\r\n\r\nbody"), Hints{})
		assert.ErrorIs(t, err, domain.ErrParse)
	})

	t.Run("空载荷返回解析错误", func(t *testing.T) {
		_, err := n.FromRFC822(nil, Hints{})
		assert.ErrorIs(t, err, domain.ErrParse)
	})

	t.Run("无法解码的载荷返回解析错误", func(t *testing.T) {
		_, err := n.FromRFC822([]byte("not an email at all"), Hints{})
		assert.ErrorIs(t, err, domain.ErrParse)
	})

	t.Run("没有头块的载荷即使有提示也返回解析错误", func(t *testing.T) {
		hints := Hints{To: "bob@mailme.local"}
		for _, raw := range []string{
			`{"from":"a@x.com","to":"bob@mailme.local","subject":"Hi","text":"hello"}`,
			"{\"to\":\"bob@mailme.local\"}\n\n",
			"plain words\r\n\r\nmore words",
			"Subject: no separator",
		} {
			_, err := n.FromRFC822([]byte(raw), hints)
			assert.ErrorIs(t, err, domain.ErrParse, raw)
		}
	})
}

func TestFromSMTPData(t *testing.T) {
	n := newTestNormalizer()
	envelope := Hints{From: "alice@example.com", To: "bob@mailme.local"}

	t.Run("完整邮件按 RFC822 解析", func(t *testing.T) {
		msg, err := n.FromSMTPData([]byte("Subject: Hello\r\n\r\nbody\r\n"), envelope)
		require.NoError(t, err)
		assert.Equal(t, "Hello", msg.Subject)
		assert.Equal(t, "body\r\n", msg.Text)
		assert.Equal(t, "bob@mailme.local", msg.To)
	})

	t.Run("没有邮件头时整段作为正文", func(t *testing.T) {
		msg, err := n.FromSMTPData([]byte("just a line of text\r\n"), envelope)
		require.NoError(t, err)
		assert.Equal(t, "just a line of text\r\n", msg.Text)
		assert.Equal(t, "alice@example.com", msg.From)
		assert.Equal(t, "bob@mailme.local", msg.To)
		assert.Equal(t, domain.NoSubject, msg.Subject)
		assert.Equal(t, fixedNow, msg.ReceivedAt)
	})

	t.Run("没有邮件头也没有信封收件人", func(t *testing.T) {
		_, err := n.FromSMTPData([]byte("just text"), Hints{})
		assert.ErrorIs(t, err, domain.ErrParse)
	})

	t.Run("空载荷仍是解析错误", func(t *testing.T) {
		_, err := n.FromSMTPData([]byte("  "), envelope)
		assert.ErrorIs(t, err, domain.ErrParse)
	})
}

func TestFromWebhook(t *testing.T) {
	n := newTestNormalizer()

	t.Run("转发结构", func(t *testing.T) {
		body := `{"from":"x@example.com","to":"bob@mailme.local","subject":"Hi","text":"hello"}`
		msg, err := n.FromWebhook([]byte(body))
		require.NoError(t, err)
		assert.Equal(t, "x@example.com", msg.From)
		assert.Equal(t, "bob@mailme.local", msg.To)
		assert.Equal(t, "Hi", msg.Subject)
		assert.Equal(t, "hello", msg.Text)
		assert.Equal(t, "hello", msg.Snippet)
		assert.Equal(t, fixedNow, msg.ReceivedAt)
	})

	t.Run("收件人为数组时取第一个", func(t *testing.T) {
		body := `{"from":["x@example.com","y@example.com"],"to":["bob@mailme.local","carol@mailme.local"]}`
		msg, err := n.FromWebhook([]byte(body))
		require.NoError(t, err)
		assert.Equal(t, "bob@mailme.local", msg.To)
		assert.Equal(t, "x@example.com", msg.From)
		assert.Equal(t, domain.NoSubject, msg.Subject)
		assert.Empty(t, msg.Text)
		assert.Empty(t, msg.HTML)
	})

	t.Run("收件人带显示名", func(t *testing.T) {
		body := `{"from":"x","to":"Bob <bob@mailme.local>"}`
		msg, err := n.FromWebhook([]byte(body))
		require.NoError(t, err)
		assert.Equal(t, "bob@mailme.local", msg.To)
		assert.Equal(t, "x", msg.From)
	})

	t.Run("对象数组形式的地址", func(t *testing.T) {
		body := `{"from":[{"address":"x@example.com","name":"X"}],"to":[{"address":"bob@mailme.local"}]}`
		msg, err := n.FromWebhook([]byte(body))
		require.NoError(t, err)
		assert.Equal(t, "X <x@example.com>", msg.From)
		assert.Equal(t, "bob@mailme.local", msg.To)
	})

	t.Run("收信事件信封", func(t *testing.T) {
		body := `{"type":"email.received","data":{"from":"x@example.com","to":["bob@mailme.local"],"html":"<p>Hi</p>"}}`
		msg, err := n.FromWebhook([]byte(body))
		require.NoError(t, err)
		assert.Equal(t, "bob@mailme.local", msg.To)
		assert.Equal(t, "<p>Hi</p>", msg.HTML)
		assert.Equal(t, "Hi", msg.Snippet)
	})

	t.Run("其他事件类型被忽略", func(t *testing.T) {
		body := `{"type":"email.bounced","data":{}}`
		_, err := n.FromWebhook([]byte(body))
		assert.ErrorIs(t, err, ErrIgnoredEvent)
		assert.NotErrorIs(t, err, domain.ErrParse)
	})

	t.Run("缺少收件人", func(t *testing.T) {
		_, err := n.FromWebhook([]byte(`{"from":"x@example.com"}`))
		assert.ErrorIs(t, err, domain.ErrParse)
	})

	t.Run("缺少发件人", func(t *testing.T) {
		_, err := n.FromWebhook([]byte(`{"to":"bob@mailme.local"}`))
		assert.ErrorIs(t, err, domain.ErrParse)
	})

	t.Run("字段类型错误", func(t *testing.T) {
		_, err := n.FromWebhook([]byte(`{"from":"x","to":"bob@mailme.local","subject":42}`))
		assert.ErrorIs(t, err, domain.ErrParse)

		_, err = n.FromWebhook([]byte(`{"from":"x","to":42}`))
		assert.ErrorIs(t, err, domain.ErrParse)
	})

	t.Run("非JSON载荷", func(t *testing.T) {
		_, err := n.FromWebhook([]byte("From: a@b\r\n\r\nhi"))
		assert.ErrorIs(t, err, domain.ErrParse)
	})
}
