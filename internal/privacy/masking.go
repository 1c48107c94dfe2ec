package privacy

import (
	"strings"
)

// MaskPhoneNumber masks a phone number showing only the last 4 digits
// Example: "+5491123456789" -> "+*********6789"
func MaskPhoneNumber(phone string) string {
	if phone == "" {
		return ""
	}

	if strings.HasPrefix(phone, "+") {
		if len(phone) == 1 {
			return phone
		}
		if len(phone) <= 5 {
			return "+" + strings.Repeat("*", len(phone)-1)
		}
		return "+" + strings.Repeat("*", len(phone)-5) + phone[len(phone)-4:]
	}

	return maskString(phone, 4)
}

// MaskChatID masks a chat ID to show structure but hide sensitive parts
// Example: "5491123456789@c.us" -> "*********6789@c.us"
func MaskChatID(chatID string) string {
	if chatID == "" {
		return ""
	}

	if at := strings.Index(chatID, "@"); at >= 0 {
		return maskString(chatID[:at], 4) + chatID[at:]
	}
	return maskString(chatID, 4)
}

// MaskMessageID masks a message ID while preserving some structure for debugging
// Example: "false_5491123456789@c.us_3EB0A1B2C3D4" -> "false_*********6789@c.us_********C3D4"
func MaskMessageID(messageID string) string {
	if messageID == "" {
		return ""
	}

	parts := strings.Split(messageID, "_")
	if len(parts) >= 3 {
		return parts[0] + "_" + MaskChatID(parts[1]) + "_" + maskString(strings.Join(parts[2:], "_"), 4)
	}

	return maskString(messageID, 8)
}

// Masker masks sender addresses in log fields unless disabled
type Masker struct {
	enabled bool
}

// NewMasker returns a masker; verbose mode turns masking off
func NewMasker(verbose bool) Masker {
	return Masker{enabled: !verbose}
}

// Address masks a chat address when masking is on
func (m Masker) Address(chatID string) string {
	if !m.enabled {
		return chatID
	}
	return MaskChatID(chatID)
}

// MessageID masks a message id when masking is on
func (m Masker) MessageID(id string) string {
	if !m.enabled {
		return id
	}
	return MaskMessageID(id)
}

// maskString masks a string showing only the last n characters
func maskString(s string, keepLast int) string {
	if s == "" {
		return ""
	}
	if len(s) <= keepLast {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-keepLast) + s[len(s)-keepLast:]
}

// MaskSensitiveFields applies appropriate masking to common logging fields
func MaskSensitiveFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}

	masked := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		s, isString := v.(string)
		if !isString {
			masked[k] = v
			continue
		}
		switch k {
		case "phone", "phone_number", "sender_phone":
			masked[k] = MaskPhoneNumber(s)
		case "from", "to", "sender", "chat_id", "chatId", "identity":
			masked[k] = MaskChatID(s)
		case "message_id", "messageId", "msg_id":
			masked[k] = MaskMessageID(s)
		default:
			masked[k] = v
		}
	}

	return masked
}
