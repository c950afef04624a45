package trace

// Config 链路追踪配置
//
//	trace:
//	  enabled: true
//	  service_name: kmis
//	  endpoint: localhost:4317   # OTLP gRPC
//	  sampler: 1.0
//	  batcher: batch             # batch|simple
//	  insecure: true
type Config struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	Endpoint    string  `mapstructure:"endpoint"`
	Sampler     float64 `mapstructure:"sampler"`
	Batcher     string  `mapstructure:"batcher"`
	Insecure    bool    `mapstructure:"insecure"`
}

// DefaultConfig 返回指向本地 collector 的默认配置
func DefaultConfig(serviceName string) *Config {
	return &Config{
		Enabled:     true,
		ServiceName: serviceName,
		Endpoint:    "localhost:4317",
		Sampler:     1.0,
		Batcher:     "batch",
		Insecure:    true,
	}
}
