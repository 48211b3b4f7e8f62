package engine_config

import (
	"time"

	"github.com/NordCoder/Remindus/internal/channel"
	"github.com/NordCoder/Remindus/internal/obs"
	pginfra "github.com/NordCoder/Remindus/internal/repository/postgres"
)

type EngineCfg struct {
	Tick               time.Duration `mapstructure:"tick"`
	BatchLimit         int           `mapstructure:"batch_limit"`
	DispatchWorkers    int           `mapstructure:"dispatch_workers"`
	SendTimeout        time.Duration `mapstructure:"send_timeout"`
	RetryInterval      time.Duration `mapstructure:"retry_interval"`
	RetryWindow        time.Duration `mapstructure:"retry_window"`
	RetryBatch         int           `mapstructure:"retry_batch"`
	SweepInterval      time.Duration `mapstructure:"sweep_interval"`
	Retention          time.Duration `mapstructure:"retention"`
	ScanInterval       time.Duration `mapstructure:"scan_interval"`
	ScanHorizon        time.Duration `mapstructure:"scan_horizon"`
	GuardTTL           time.Duration `mapstructure:"guard_ttl"`
	GuardClearInterval time.Duration `mapstructure:"guard_clear_interval"`
	MetricsAddr        string        `mapstructure:"metrics_addr"`
}

type APICfg struct {
	Addr      string `mapstructure:"addr"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

type OTEL struct {
	Enable       bool    `mapstructure:"enable"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

func (oc *OTEL) AsOTELConfig() *obs.OTELConfig {
	return &obs.OTELConfig{
		Enable:      oc.Enable,
		Endpoint:    oc.OTLPEndpoint,
		ServiceName: oc.ServiceName,
		SampleRatio: oc.SampleRatio,
	}
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

func (lc *Log) AsLoggerConfig() obs.LogConfig {
	return obs.LogConfig{
		Level:  lc.Level,
		Pretty: lc.Pretty,
		App:    "remindus/engine",
	}
}

type Config struct {
	DB       pginfra.Config         `mapstructure:"db"`
	SMTP     channel.SMTPConfig     `mapstructure:"smtp"`
	Push     channel.PushConfig     `mapstructure:"push"`
	Realtime channel.RealtimeConfig `mapstructure:"realtime"`
	Engine   EngineCfg              `mapstructure:"engine"`
	API      APICfg                 `mapstructure:"api"`
	OTEL     OTEL                   `mapstructure:"otel"`
	Log      Log                    `mapstructure:"log"`
}
