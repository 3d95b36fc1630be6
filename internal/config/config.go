// Package config assembles the runtime configuration shared by every binary
// from defaults, an optional YAML file, a .env file, the environment and flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/tinytelemetry/pipecheck/internal/model"
)

// EnvPrefix prefixes every environment variable derived from a config key.
const EnvPrefix = "PIPECHECK"

const (
	defaultDialTimeout         = 10 * time.Second
	defaultNoChange            = 10 * time.Second
	defaultPipelineInterval    = 2 * time.Second
	defaultInitWait            = 30 * time.Second
	defaultSendWait            = 10 * time.Second
	defaultSinkTCPAddr         = "127.0.0.1:5514"
	defaultSinkUDPAddr         = "127.0.0.1:5514"
	defaultSinkAPIAddr         = "127.0.0.1:9200"
	defaultMaxLineSize         = 1 << 20
	defaultInsertBatchSize     = 2000
	defaultInsertFlushInterval = 100 * time.Millisecond
	defaultInsertFlushQueue    = 64
)

type Collector struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Protocol    string        `mapstructure:"protocol"`
	DialTimeout time.Duration `mapstructure:"dial-timeout"`
	SendTimeout time.Duration `mapstructure:"send-timeout"`
}

type Forward struct {
	LogDir          string        `mapstructure:"log-dir"`
	LogType         string        `mapstructure:"log-type"`
	Interval        time.Duration `mapstructure:"interval"`
	Loop            bool          `mapstructure:"loop"`
	DeleteAfterSend bool          `mapstructure:"delete-after-send"`
	PassDelay       time.Duration `mapstructure:"pass-delay"`
	HostMode        string        `mapstructure:"host-mode"`
}

type Fetch struct {
	OutputDir      string `mapstructure:"output-dir"`
	Workers        int    `mapstructure:"workers"`
	RemoveArchives bool   `mapstructure:"remove-archives"`
}

type Elastic struct {
	Endpoint       string `mapstructure:"endpoint"`
	Port           int    `mapstructure:"port"`
	APIKey         string `mapstructure:"api-key"`
	LogstashAPIKey string `mapstructure:"logstash-api-key"`
}

type Stream struct {
	Type         string `mapstructure:"type"`
	Dataset      string `mapstructure:"dataset"`
	Namespace    string `mapstructure:"namespace"`
	LogsDB       bool   `mapstructure:"logsdb"`
	MappingsFile string `mapstructure:"mappings-file"`
}

type Watch struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"`
	NoChange time.Duration `mapstructure:"no-change"`
	Expected int64         `mapstructure:"expected"`
	// ExpectFromLogs derives Expected from the files the sender will forward.
	ExpectFromLogs bool   `mapstructure:"expect-from-logs"`
	Minutes        int    `mapstructure:"minutes"`
	Query          string `mapstructure:"query"`
}

type Sink struct {
	TCPAddr             string        `mapstructure:"tcp-addr"`
	UDPAddr             string        `mapstructure:"udp-addr"`
	APIAddr             string        `mapstructure:"api-addr"`
	DBPath              string        `mapstructure:"db-path"`
	Stream              string        `mapstructure:"stream"`
	AutoCreate          bool          `mapstructure:"auto-create"`
	MaxLineSize         int           `mapstructure:"max-line-size"`
	InsertBatchSize     int           `mapstructure:"insert-batch-size"`
	InsertFlushInterval time.Duration `mapstructure:"insert-flush-interval"`
	InsertFlushQueue    int           `mapstructure:"insert-flush-queue-size"`
	Retention           time.Duration `mapstructure:"retention"` // 0 = keep everything
}

type Runner struct {
	ComposeFile string        `mapstructure:"compose-file"`
	EnvFile     string        `mapstructure:"env-file"`
	ReportPath  string        `mapstructure:"report-path"`
	NoCleanup   bool          `mapstructure:"no-cleanup"`
	InitWait    time.Duration `mapstructure:"init-wait"`
	SendWait    time.Duration `mapstructure:"send-wait"`
}

// Config is the immutable runtime configuration. Build it once with a Loader
// and pass the parts each component needs into its constructor.
type Config struct {
	Collector Collector `mapstructure:"collector"`
	Forward   Forward   `mapstructure:"forward"`
	Fetch     Fetch     `mapstructure:"fetch"`
	Elastic   Elastic   `mapstructure:"elastic"`
	Stream    Stream    `mapstructure:"stream"`
	Watch     Watch     `mapstructure:"watch"`
	Sink      Sink      `mapstructure:"sink"`
	Runner    Runner    `mapstructure:"runner"`
	LogFile   string    `mapstructure:"log-file"`
	Debug     bool      `mapstructure:"debug"`

	ConfigPath string `mapstructure:"-"` // not from config file
}

// legacyEnv maps config keys to the environment variables used by the
// container images and .env files of the pipeline.
var legacyEnv = map[string]string{
	"collector.host":           "LOGSTASH_HOST",
	"collector.port":           "LOGSTASH_PORT",
	"collector.protocol":       "PROTOCOL",
	"forward.log-dir":          "LOG_DIR",
	"forward.log-type":         "LOG_TYPE",
	"forward.interval":         "LOG_SEND_INTERVAL",
	"elastic.endpoint":         "ES_ENDPOINT",
	"elastic.port":             "ES_PORT",
	"elastic.api-key":          "ELASTIC_ADMIN_API_KEY",
	"elastic.logstash-api-key": "ELASTIC_LOGSTASH_API_KEY",
	"stream.namespace":         "ES_DATA_STREAM_NAMESPACE",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("collector.host", model.DefaultCollectorHost)
	v.SetDefault("collector.port", model.DefaultCollectorPort)
	v.SetDefault("collector.protocol", "tcp")
	v.SetDefault("collector.dial-timeout", defaultDialTimeout)
	v.SetDefault("collector.send-timeout", time.Duration(0))

	v.SetDefault("forward.log-dir", model.DefaultLogDir)
	v.SetDefault("forward.log-type", string(model.LogTypeAll))
	v.SetDefault("forward.interval", time.Duration(0))
	v.SetDefault("forward.loop", false)
	v.SetDefault("forward.delete-after-send", true)
	v.SetDefault("forward.pass-delay", model.DefaultInterPassDelay)
	v.SetDefault("forward.host-mode", "file")

	v.SetDefault("fetch.output-dir", model.DefaultLogDir)
	v.SetDefault("fetch.workers", model.DefaultExtractWorkers)
	v.SetDefault("fetch.remove-archives", true)

	v.SetDefault("elastic.endpoint", "")
	v.SetDefault("elastic.port", 0)
	v.SetDefault("elastic.api-key", "")
	v.SetDefault("elastic.logstash-api-key", "")

	v.SetDefault("stream.type", model.DefaultStreamType)
	v.SetDefault("stream.dataset", model.DefaultStreamDataset)
	v.SetDefault("stream.namespace", model.DefaultStreamNamespace)
	v.SetDefault("stream.logsdb", false)
	v.SetDefault("stream.mappings-file", "")

	v.SetDefault("watch.enabled", false)
	v.SetDefault("watch.interval", model.DefaultWatchInterval)
	v.SetDefault("watch.timeout", model.DefaultWatchTimeout)
	v.SetDefault("watch.no-change", time.Duration(0))
	v.SetDefault("watch.expected", 0)
	v.SetDefault("watch.expect-from-logs", false)
	v.SetDefault("watch.minutes", 0)
	v.SetDefault("watch.query", "")

	v.SetDefault("sink.tcp-addr", defaultSinkTCPAddr)
	v.SetDefault("sink.udp-addr", defaultSinkUDPAddr)
	v.SetDefault("sink.api-addr", defaultSinkAPIAddr)
	v.SetDefault("sink.db-path", "pipecheck.duckdb")
	v.SetDefault("sink.stream", "")
	v.SetDefault("sink.auto-create", false)
	v.SetDefault("sink.max-line-size", defaultMaxLineSize)
	v.SetDefault("sink.insert-batch-size", defaultInsertBatchSize)
	v.SetDefault("sink.insert-flush-interval", defaultInsertFlushInterval)
	v.SetDefault("sink.insert-flush-queue-size", defaultInsertFlushQueue)
	v.SetDefault("sink.retention", time.Duration(0))

	v.SetDefault("runner.compose-file", "")
	v.SetDefault("runner.env-file", ".env")
	v.SetDefault("runner.report-path", "test_report.md")
	v.SetDefault("runner.no-cleanup", false)
	v.SetDefault("runner.init-wait", defaultInitWait)
	v.SetDefault("runner.send-wait", defaultSendWait)

	v.SetDefault("log-file", "")
	v.SetDefault("debug", false)
}

// PipelineWatch returns the watch settings used by the pipeline test.
func PipelineWatch() Watch {
	return Watch{
		Enabled:  true,
		Interval: defaultPipelineInterval,
		Timeout:  model.DefaultWatchTimeout,
		NoChange: defaultNoChange,
	}
}

// Loader binds command-line flags to config keys and produces a Config.
type Loader struct {
	v           *viper.Viper
	fs          *pflag.FlagSet
	configPath  string
	envFile     string
	showVersion bool
}

// NewLoader returns a Loader whose flag set is named after the binary.
// Every binary gets -config, -env-file and -version.
func NewLoader(name string) *Loader {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	for key, env := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
		v.BindEnv(key, prefixed, env)
	}

	l := &Loader{v: v, fs: pflag.NewFlagSet(name, pflag.ContinueOnError)}
	l.fs.StringVar(&l.configPath, "config", "", "YAML config file")
	l.fs.StringVar(&l.envFile, "env-file", ".env", "dotenv file loaded into the environment")
	l.fs.BoolVar(&l.showVersion, "version", false, "print version information")
	return l
}

// FlagSet exposes the flag set, mainly for usage output.
func (l *Loader) FlagSet() *pflag.FlagSet { return l.fs }

// ShowVersion reports whether -version was given. Valid after Load.
func (l *Loader) ShowVersion() bool { return l.showVersion }

// String defines a string flag bound to key.
func (l *Loader) String(key, name, usage string) {
	l.fs.String(name, l.v.GetString(key), usage)
	l.bind(key, name)
}

// Int defines an int flag bound to key.
func (l *Loader) Int(key, name, usage string) {
	l.fs.Int(name, l.v.GetInt(key), usage)
	l.bind(key, name)
}

// Int64 defines an int64 flag bound to key.
func (l *Loader) Int64(key, name, usage string) {
	l.fs.Int64(name, l.v.GetInt64(key), usage)
	l.bind(key, name)
}

// Bool defines a bool flag bound to key.
func (l *Loader) Bool(key, name, usage string) {
	l.fs.Bool(name, l.v.GetBool(key), usage)
	l.bind(key, name)
}

// Duration defines a duration flag bound to key. Plain numbers are seconds.
func (l *Loader) Duration(key, name, usage string) {
	l.fs.Var(newSecondsValue(l.v.GetDuration(key)), name, usage+" (duration or seconds)")
	l.bind(key, name)
}

// Negated defines a bool flag that sets key to false when given, like --keep-logs.
func (l *Loader) Negated(key, name, usage string) {
	l.fs.Var(&negatedValue{}, name, usage)
	l.fs.Lookup(name).NoOptDefVal = "true"
	l.bind(key, name)
}

func (l *Loader) bind(key, name string) {
	if err := l.v.BindPFlag(key, l.fs.Lookup(name)); err != nil {
		panic(fmt.Sprintf("config: bind %s: %v", name, err))
	}
}

// Load parses args, loads the .env file into the process environment, reads
// the optional config file and returns the validated Config.
func (l *Loader) Load(args []string) (Config, error) {
	var cfg Config
	if err := l.fs.Parse(args); err != nil {
		return cfg, err
	}
	if l.showVersion {
		return cfg, nil
	}

	if l.envFile != "" {
		if err := godotenv.Load(l.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("loading %s: %w", l.envFile, err)
		}
	}

	if l.configPath != "" {
		l.v.SetConfigFile(l.configPath)
		if err := l.v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return cfg, err
			}
		}
	}

	if err := l.v.Unmarshal(&cfg, viper.DecodeHook(durationHook)); err != nil {
		return cfg, err
	}
	cfg.ConfigPath = l.v.ConfigFileUsed()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside a run.
func (c Config) Validate() error {
	if c.Collector.Port <= 0 || c.Collector.Port > 65535 {
		return fmt.Errorf("invalid collector port: %d", c.Collector.Port)
	}
	switch strings.ToLower(c.Collector.Protocol) {
	case "tcp", "udp":
	default:
		return fmt.Errorf("invalid protocol %q (want tcp or udp)", c.Collector.Protocol)
	}
	if c.Elastic.Port < 0 || c.Elastic.Port > 65535 {
		return fmt.Errorf("invalid elasticsearch port: %d", c.Elastic.Port)
	}
	if c.Forward.Interval < 0 {
		return fmt.Errorf("invalid send interval: %s", c.Forward.Interval)
	}
	if c.Watch.Timeout <= 0 {
		return fmt.Errorf("invalid watch timeout: %s (must be positive)", c.Watch.Timeout)
	}
	if c.Fetch.Workers < 0 {
		return fmt.Errorf("invalid extract workers: %d", c.Fetch.Workers)
	}
	return nil
}

// StreamName returns the data stream selected by the Stream section.
func (c Config) StreamName() string {
	return c.Stream.Type + "-" + c.Stream.Dataset + "-" + c.Stream.Namespace
}

// ParseDuration accepts Go durations ("250ms") and plain seconds ("0.1", "2").
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}

var durationType = reflect.TypeOf(time.Duration(0))

func durationHook(from, to reflect.Type, data any) (any, error) {
	if to != durationType {
		return data, nil
	}
	switch d := data.(type) {
	case time.Duration:
		return d, nil
	case string:
		return ParseDuration(d)
	case int:
		return time.Duration(d) * time.Second, nil
	case int64:
		return time.Duration(d) * time.Second, nil
	case float64:
		return time.Duration(d * float64(time.Second)), nil
	}
	return data, nil
}

type secondsValue time.Duration

func newSecondsValue(d time.Duration) *secondsValue {
	v := secondsValue(d)
	return &v
}

func (s *secondsValue) Set(v string) error {
	d, err := ParseDuration(v)
	if err != nil {
		return err
	}
	*s = secondsValue(d)
	return nil
}

func (s *secondsValue) String() string { return time.Duration(*s).String() }
func (s *secondsValue) Type() string   { return "duration" }

type negatedValue struct {
	set bool
}

func (n *negatedValue) Set(v string) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return err
	}
	n.set = b
	return nil
}

// String is what viper reads through the flag binding.
func (n *negatedValue) String() string { return strconv.FormatBool(!n.set) }
func (n *negatedValue) Type() string   { return "bool" }
