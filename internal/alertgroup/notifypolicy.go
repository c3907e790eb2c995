package alertgroup

import (
	"github.com/OWNER/escalator/internal/timeutil"
)

// Channel is a personal notification delivery channel.
type Channel string

const (
	ChannelDefault    Channel = "default"
	ChannelSlack      Channel = "slack"
	ChannelSMS        Channel = "sms"
	ChannelPhone      Channel = "phone"
	ChannelTelegram   Channel = "telegram"
	ChannelEmail      Channel = "email"
	ChannelMobilePush Channel = "mobile_push"
	ChannelWebhook    Channel = "webhook"
)

// NotifyStepKind distinguishes wait steps from notify steps in a personal
// notification chain.
type NotifyStepKind string

const (
	NotifyStepWait   NotifyStepKind = "wait"
	NotifyStepNotify NotifyStepKind = "notify"
)

// NotificationPolicyStep is one step of a user's personal notification
// chain. Wait steps delay; notify steps deliver through a channel. The
// important flag selects the chain used for important escalation steps.
type NotificationPolicyStep struct {
	Kind      NotifyStepKind    `json:"kind"`
	WaitDelay timeutil.Duration `json:"wait_delay,omitempty"`
	Channel   Channel           `json:"channel,omitempty"`
	Important bool              `json:"important,omitempty"`
}
