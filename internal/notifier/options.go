package notifier

import (
	"fmt"
	"net/url"

	"github.com/spf13/pflag"
)

// Options configures the MQTT event publisher. An empty Broker disables it.
type Options struct {
	Broker      string `json:"broker,omitempty" mapstructure:"broker"`
	ClientID    string `json:"client-id,omitempty" mapstructure:"client-id"`
	Username    string `json:"username,omitempty" mapstructure:"username"`
	Password    string `json:"-" mapstructure:"password"`
	TopicPrefix string `json:"topic-prefix,omitempty" mapstructure:"topic-prefix"`
	QoS         int    `json:"qos,omitempty" mapstructure:"qos"`
	QueueSize   int    `json:"queue-size,omitempty" mapstructure:"queue-size"`
	KeepAlive   uint16 `json:"keep-alive,omitempty" mapstructure:"keep-alive"`
}

func NewOptions() *Options {
	return &Options{
		ClientID:    "csms",
		TopicPrefix: "csms/chargers",
		QoS:         0,
		QueueSize:   256,
		KeepAlive:   60,
	}
}

func (o *Options) Enabled() bool { return o.Broker != "" }

func (o *Options) Validate() []error {
	var errs []error
	if o.Broker != "" {
		if u, err := url.Parse(o.Broker); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("mqtt.broker must be a URL like tcp://host:1883, got %q", o.Broker))
		}
		if o.ClientID == "" {
			errs = append(errs, fmt.Errorf("mqtt.client-id is required when mqtt.broker is set"))
		}
	}
	if o.QoS < 0 || o.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", o.QoS))
	}
	return errs
}

func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Broker, "mqtt.broker", o.Broker, "MQTT broker URL for charger events; empty disables publishing.")
	fs.StringVar(&o.ClientID, "mqtt.client-id", o.ClientID, "MQTT client identifier.")
	fs.StringVar(&o.Username, "mqtt.username", o.Username, "MQTT username.")
	fs.StringVar(&o.Password, "mqtt.password", o.Password, "MQTT password.")
	fs.StringVar(&o.TopicPrefix, "mqtt.topic-prefix", o.TopicPrefix, "Events go to <prefix>/<identity>/<type>.")
	fs.IntVar(&o.QoS, "mqtt.qos", o.QoS, "QoS of published events.")
	fs.IntVar(&o.QueueSize, "mqtt.queue-size", o.QueueSize, "Events buffered while the broker is slow or away.")
	fs.Uint16Var(&o.KeepAlive, "mqtt.keep-alive", o.KeepAlive, "MQTT keep alive in seconds.")
}
