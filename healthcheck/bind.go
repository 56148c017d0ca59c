package healthcheck

import (
	"github.com/wippyai/webbind/proxy"
)

// Register binds Status completion and HealthChecks into reg. The web
// classes must already be registered for Handle to take a routing context.
func Register(reg *proxy.Registry) error {
	if _, err := reg.Register("HealthPromise", &Promise{},
		proxy.Overloads("complete", "Succeed", "Complete"),
		proxy.Exclude("FailWith", "Future"),
	); err != nil {
		return err
	}
	_, err := reg.Register("HealthChecks", &HealthChecks{},
		proxy.Overloads("invoke", "InvokeAll", "Invoke"),
		proxy.Exclude("Check"),
		proxy.Static("create", Create),
		proxy.Static("create", func(timeoutMs int64) *HealthChecks {
			return Create().SetTimeout(timeoutMs)
		}),
	)
	return err
}
