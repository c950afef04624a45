package metrics

// Config 指标配置
//
//	metrics:
//	  enabled: true
//	  service_name: kmis
//	  version: v1.0.0
//	  port: 9090      # 0 表示不启动独立抓取服务，由业务服务挂载 Handler()
//	  path: /metrics
type Config struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	Version     string `mapstructure:"version"`
	Port        int    `mapstructure:"port"`
	Path        string `mapstructure:"path"`
}

// NewDevDefaultConfig 开发环境默认配置：启用，不启动独立抓取服务
func NewDevDefaultConfig(serviceName string) *Config {
	return &Config{
		Enabled:     true,
		ServiceName: serviceName,
		Version:     "dev",
		Path:        "/metrics",
	}
}
