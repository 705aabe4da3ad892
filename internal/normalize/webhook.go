package normalize

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"mailme/backend/internal/domain"
)

// EventEmailReceived 是唯一会被投递的事件类型。
const EventEmailReceived = "email.received"

// ErrIgnoredEvent 表示事件信封中的类型不是收信事件，应确认后丢弃。
var ErrIgnoredEvent = errors.New("event type ignored")

// forwardPayload 是转发型 webhook 的正文结构。
type forwardPayload struct {
	From    addressField `json:"from"`
	To      addressField `json:"to"`
	Subject *string      `json:"subject"`
	Text    *string      `json:"text"`
	HTML    *string      `json:"html"`
}

// eventEnvelope 是事件型 webhook 的外层结构。
type eventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// addressField 接受字符串、字符串数组或 {address,name} 对象数组，只保留第一个。
type addressField struct {
	present bool
	value   string
}

type addressObject struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

func (a *addressField) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	a.present = true

	switch data[0] {
	case '"':
		return json.Unmarshal(data, &a.value)
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		if len(items) == 0 {
			a.present = false
			return nil
		}
		var first addressField
		if err := first.UnmarshalJSON(items[0]); err != nil {
			return err
		}
		a.value = first.value
		return nil
	case '{':
		var obj addressObject
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		a.value = obj.Address
		if obj.Name != "" && obj.Address != "" {
			a.value = obj.Name + " <" + obj.Address + ">"
		}
		return nil
	default:
		return fmt.Errorf("address must be a string or an array, got %s", data)
	}
}

// FromWebhook 解析 JSON webhook，支持直接转发结构与 {type,data} 事件信封两种变体。
func (n *Normalizer) FromWebhook(body []byte) (*domain.InboundMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty body", domain.ErrParse)
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrParse, err)
	}

	if rawType, ok := probe["type"]; ok {
		var envelope eventEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrParse, err)
		}
		if envelope.Type != EventEmailReceived {
			return nil, fmt.Errorf("%w: %s", ErrIgnoredEvent, strings.Trim(string(rawType), `"`))
		}
		if len(envelope.Data) == 0 {
			return nil, fmt.Errorf("%w: event without data", domain.ErrParse)
		}
		body = envelope.Data
	}

	var payload forwardPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrParse, err)
	}
	if !payload.To.present || strings.TrimSpace(payload.To.value) == "" {
		return nil, fmt.Errorf("%w: missing required field: to", domain.ErrParse)
	}
	if !payload.From.present {
		return nil, fmt.Errorf("%w: missing required field: from", domain.ErrParse)
	}

	msg := &domain.InboundMessage{
		From:    payload.From.value,
		To:      firstRecipient(payload.To.value),
		Subject: deref(payload.Subject),
		Text:    deref(payload.Text),
		HTML:    deref(payload.HTML),
	}
	return n.finish(msg), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
