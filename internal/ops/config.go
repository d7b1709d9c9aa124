package ops

import (
	"os"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"

	"main/internal/failsafe"
	"main/internal/feed"
	"main/internal/heartbeat"
	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/router"
	"main/internal/syncer"
)

// FileConfig mirrors the JSON config layout. All durations are in seconds
// so the file stays readable; resolution converts them.
type FileConfig struct {
	Router      RouterConfig      `json:"router"`
	Failsafe    FailsafeConfig    `json:"failsafe"`
	Sync        SyncConfig        `json:"sync"`
	Heartbeat   HeartbeatConfig   `json:"heartbeat"`
	Subsystems  []SubsystemConfig `json:"subsystems"`
	References  []ReferenceConfig `json:"references"`
	Feed        FeedConfig        `json:"feed"`
	Journal     JournalConfig     `json:"journal"`
	Store       StoreConfig       `json:"store"`
	Profiling   ProfilingConfig   `json:"profiling"`
	MetricsAddr string            `json:"metricsAddr"`
}

// RouterConfig tunes queueing and dispatch.
type RouterConfig struct {
	DispatchEndpoint string        `json:"dispatchEndpoint"`
	MaxQueue         int           `json:"maxQueue"`
	MaxRetries       int           `json:"maxRetries"`
	DispatchTimeout  int           `json:"dispatchTimeoutSec"`
	BackoffBaseMs    int           `json:"backoffBaseMs"`
	BackoffCapSec    int           `json:"backoffCapSec"`
	MaxQueueAgeSec   int           `json:"maxQueueAgeSec"`
	RetentionSec     int           `json:"retentionSec"`
	Classes          []ClassConfig `json:"classes"`
}

// ClassConfig is a per-priority token bucket.
type ClassConfig struct {
	Priority     string  `json:"priority"`
	Capacity     int     `json:"capacity"`
	RefillPerSec float64 `json:"refillPerSec"`
}

// FailsafeConfig tunes escalation thresholds.
type FailsafeConfig struct {
	HeartbeatFailThreshold int     `json:"heartbeatFailThreshold"`
	ReasonDwellSec         int     `json:"reasonDwellSec"`
	LevelDwellSec          int     `json:"levelDwellSec"`
	FailureRateDegraded    float64 `json:"failureRateDegraded"`
	FailureRateHalted      float64 `json:"failureRateHalted"`
	CheckIntervalSec       int     `json:"checkIntervalSec"`
}

// SyncConfig tunes clock sampling.
type SyncConfig struct {
	SampleIntervalSec int `json:"sampleIntervalSec"`
	SampleTimeoutSec  int `json:"sampleTimeoutSec"`
	ToleranceSec      int `json:"toleranceSec"`
	CriticalSec       int `json:"criticalSec"`
	HistorySize       int `json:"historySize"`
}

// HeartbeatConfig tunes health polling.
type HeartbeatConfig struct {
	IntervalSec     int   `json:"intervalSec"`
	CheckTimeoutSec int   `json:"checkTimeoutSec"`
	MemoryLimitMB   int64 `json:"memoryLimitMb"`
}

// SubsystemConfig describes one monitored endpoint.
type SubsystemConfig struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Critical bool   `json:"critical"`
}

// ReferenceConfig describes one external time source.
type ReferenceConfig struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// FeedConfig describes the market-data stream.
type FeedConfig struct {
	URL           string   `json:"url"`
	Symbols       []string `json:"symbols"`
	StaleAfterSec int      `json:"staleAfterSec"`
}

// JournalConfig locates the audit log.
type JournalConfig struct {
	Path string `json:"path"`
}

// StoreConfig locates the terminal-command mirror.
type StoreConfig struct {
	DSN string `json:"dsn"`
}

// ProfilingConfig enables the continuous profiler.
type ProfilingConfig struct {
	Enable        bool   `json:"enable"`
	ServerAddress string `json:"serverAddress"`
}

// Loaded is the resolved configuration ready for wiring.
type Loaded struct {
	Router           router.Config
	DispatchEndpoint string
	Failsafe         failsafe.Config
	Sync             syncer.Config
	Heartbeat        heartbeat.Config
	MemoryLimit      int64
	Subsystems       []model.Subsystem
	References       []ReferenceConfig
	Feed             feed.Config
	FeedSymbols      []string
	JournalPath      string
	StoreDSN         string
	Profiling        ProfilingConfig
	MetricsAddr      string
}

// Load reads a JSON config file, applies environment overrides, and
// resolves component configs. A missing file is not an error; the result
// is then defaults plus environment.
func Load(path string) (Loaded, error) {
	var cfg FileConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return Loaded{}, errors.Wrap(err, "read config").With("path", path)
		}
		if err == nil {
			if err := sonic.Unmarshal(data, &cfg); err != nil {
				return Loaded{}, errors.Wrap(err, "parse config").With("path", path)
			}
		}
	}
	applyEnv(&cfg)
	return resolve(cfg)
}

// applyEnv lets deployment override the file without editing it. Names
// match the process environment the operators already use.
func applyEnv(cfg *FileConfig) {
	envInt("HEARTBEAT_INTERVAL", &cfg.Heartbeat.IntervalSec)
	envInt("SYNC_TOLERANCE", &cfg.Sync.ToleranceSec)
	envInt("COMMAND_TIMEOUT", &cfg.Router.DispatchTimeout)
	envInt("COMMAND_RETRY_ATTEMPTS", &cfg.Router.MaxRetries)
	envInt("MAX_COMMAND_QUEUE", &cfg.Router.MaxQueue)
	envInt("FAILSAFE_CHECK_INTERVAL", &cfg.Failsafe.CheckIntervalSec)
	if v := os.Getenv("STORE_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv("JOURNAL_PATH"); v != "" {
		cfg.Journal.Path = v
	}
}

func envInt(key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return
	}
	*dst = n
}

func resolve(cfg FileConfig) (Loaded, error) {
	classes := make(map[enum.Priority]router.ClassConfig, len(cfg.Router.Classes))
	for _, c := range cfg.Router.Classes {
		p, err := parsePriority(c.Priority)
		if err != nil {
			return Loaded{}, err
		}
		if c.Capacity <= 0 || c.RefillPerSec <= 0 {
			return Loaded{}, errors.Errorf("class %s: capacity and refillPerSec must be > 0", c.Priority)
		}
		classes[p] = router.ClassConfig{Capacity: c.Capacity, RefillPerSec: c.RefillPerSec}
	}

	critical := make(map[string]bool, len(cfg.Subsystems))
	subsystems := make([]model.Subsystem, 0, len(cfg.Subsystems))
	seen := make(map[string]bool, len(cfg.Subsystems))
	for _, s := range cfg.Subsystems {
		if s.Name == "" || s.URL == "" {
			return Loaded{}, errors.New("subsystem entries need name and url")
		}
		if s.Name == "self" {
			return Loaded{}, errors.New(`subsystem name "self" is reserved`)
		}
		if seen[s.Name] {
			return Loaded{}, errors.Errorf("duplicate subsystem: %s", s.Name)
		}
		seen[s.Name] = true
		subsystems = append(subsystems, model.Subsystem{Name: s.Name, URL: s.URL, Critical: s.Critical})
		if s.Critical {
			critical[s.Name] = true
		}
	}

	return Loaded{
		DispatchEndpoint: cfg.Router.DispatchEndpoint,
		Router: router.Config{
			MaxQueue:        cfg.Router.MaxQueue,
			MaxRetries:      cfg.Router.MaxRetries,
			DispatchTimeout: seconds(cfg.Router.DispatchTimeout),
			BackoffBase:     time.Duration(cfg.Router.BackoffBaseMs) * time.Millisecond,
			BackoffCap:      seconds(cfg.Router.BackoffCapSec),
			MaxQueueAge:     seconds(cfg.Router.MaxQueueAgeSec),
			Retention:       seconds(cfg.Router.RetentionSec),
			Classes:         classes,
		},
		Failsafe: failsafe.Config{
			HeartbeatFailThreshold: cfg.Failsafe.HeartbeatFailThreshold,
			ReasonDwell:            seconds(cfg.Failsafe.ReasonDwellSec),
			LevelDwell:             seconds(cfg.Failsafe.LevelDwellSec),
			FailureRateDegraded:    cfg.Failsafe.FailureRateDegraded,
			FailureRateHalted:      cfg.Failsafe.FailureRateHalted,
			EvalInterval:           seconds(cfg.Failsafe.CheckIntervalSec),
			CriticalSubsystems:     critical,
		},
		Sync: syncer.Config{
			SampleInterval:    seconds(cfg.Sync.SampleIntervalSec),
			SampleTimeout:     seconds(cfg.Sync.SampleTimeoutSec),
			WarningThreshold:  seconds(cfg.Sync.ToleranceSec),
			CriticalThreshold: seconds(cfg.Sync.CriticalSec),
			HistorySize:       cfg.Sync.HistorySize,
		},
		Heartbeat: heartbeat.Config{
			Interval:     seconds(cfg.Heartbeat.IntervalSec),
			CheckTimeout: seconds(cfg.Heartbeat.CheckTimeoutSec),
		},
		MemoryLimit: cfg.Heartbeat.MemoryLimitMB << 20,
		Subsystems:  subsystems,
		References:  cfg.References,
		Feed: feed.Config{
			URL:        cfg.Feed.URL,
			StaleAfter: seconds(cfg.Feed.StaleAfterSec),
		},
		FeedSymbols: cfg.Feed.Symbols,
		JournalPath: cfg.Journal.Path,
		StoreDSN:    cfg.Store.DSN,
		Profiling:   cfg.Profiling,
		MetricsAddr: cfg.MetricsAddr,
	}, nil
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}

func parsePriority(s string) (enum.Priority, error) {
	switch s {
	case "low":
		return enum.PriorityLow, nil
	case "normal":
		return enum.PriorityNormal, nil
	case "high":
		return enum.PriorityHigh, nil
	case "critical":
		return enum.PriorityCritical, nil
	default:
		return 0, errors.Errorf("unknown priority: %s", s)
	}
}
