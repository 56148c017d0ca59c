package eventbus

import (
	"github.com/wippyai/webbind/proxy"
)

// Register binds Message, Registration and Bus into reg.
func Register(reg *proxy.Registry) error {
	if _, err := reg.Register("Message", &Message{},
		proxy.Overloads("reply", "Reply", "ReplyWithOptions"),
		proxy.Exclude("Decode"),
	); err != nil {
		return err
	}
	if _, err := reg.Register("MessageConsumer", &Registration{}); err != nil {
		return err
	}
	_, err := reg.Register("EventBus", &Bus{},
		proxy.Overloads("send", "Send", "SendWithOptions"),
		proxy.Overloads("publish", "Publish", "PublishWithOptions"),
		proxy.Overloads("request", "Request", "RequestWithOptions"),
		proxy.Exclude("Codecs"),
		proxy.Static("create", Create),
	)
	return err
}
