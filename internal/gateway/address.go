package gateway

import (
	"strings"

	"github.com/Jeelislive/Unified-Inbox-for-Multi-Channel-Customer/internal/domain"
)

// whatsappTag marks WhatsApp addresses on the wire.
const whatsappTag = "whatsapp:"

// FormatAddress returns addr in the gateway's wire form for channel.
// WhatsApp addresses are tagged exactly once; SMS addresses pass through.
func FormatAddress(channel domain.Channel, addr string) string {
	if channel != domain.ChannelWhatsApp {
		return addr
	}
	return whatsappTag + strings.TrimPrefix(addr, whatsappTag)
}

// ParseAddress splits a wire address into its channel and bare number.
func ParseAddress(raw string) (domain.Channel, string) {
	raw = strings.TrimSpace(raw)
	if bare, ok := strings.CutPrefix(raw, whatsappTag); ok {
		return domain.ChannelWhatsApp, bare
	}
	return domain.ChannelSMS, raw
}

// StripTag removes the channel tag from a wire address, if present.
func StripTag(raw string) string {
	_, bare := ParseAddress(raw)
	return bare
}
