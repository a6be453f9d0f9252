package domain

import "strings"

// Channel is a messaging medium with its own addressing conventions.
type Channel string

const (
	ChannelSMS      Channel = "SMS"
	ChannelWhatsApp Channel = "WHATSAPP"
)

// ParseChannel accepts a channel name in any letter case.
// An empty value selects SMS.
func ParseChannel(s string) (Channel, bool) {
	if s == "" {
		return ChannelSMS, true
	}
	c := Channel(strings.ToUpper(strings.TrimSpace(s)))
	return c, c.Valid()
}

func (c Channel) Valid() bool {
	return c == ChannelSMS || c == ChannelWhatsApp
}

func (c Channel) String() string {
	return string(c)
}
