package config

import "time"

func (c PresenceConfig) LeaseDuration() time.Duration {
	return time.Duration(c.Lease) * time.Second
}

func (c PresenceConfig) OfflineDuration() time.Duration {
	return time.Duration(c.OfflineTTL) * time.Second
}

func (c MessageConfig) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseMs) * time.Millisecond
}

func (c CallConfig) RingTimeoutDuration() time.Duration {
	return time.Duration(c.RingTimeout) * time.Second
}

func (c CallConfig) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseMs) * time.Millisecond
}

func (c FanoutConfig) PublishTimeout() time.Duration {
	return time.Duration(c.PublishTimeoutMs) * time.Millisecond
}

func (c RelationshipConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}
