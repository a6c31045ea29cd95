package config

import (
	"autolecture/internal/appdirs"
	"autolecture/log"
	apperrors "autolecture/pkg/errors"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
)

type App struct {
	Proxy           string   `toml:"proxy"`
	DefaultAudience string   `toml:"default_audience"`
	ParsedProxy     *url.URL `toml:"-"`
}

type Server struct {
	Host      string  `toml:"host"`
	Port      int     `toml:"port"`
	QueueSize int     `toml:"queue_size"`
	RateLimit float64 `toml:"rate_limit"`
	RateBurst int     `toml:"rate_burst"`
}

type Summary struct {
	BaseUrl              string `toml:"base_url"`
	ApiKey               string `toml:"api_key"`
	SourceType           string `toml:"source_type"`
	ResultLanguage       string `toml:"result_language"`
	ModelType            string `toml:"model_type"`
	MaxPollAttempts      int    `toml:"max_poll_attempts"`
	PollIntervalSeconds  int    `toml:"poll_interval_seconds"`
	StopOnTransportError bool   `toml:"stop_on_transport_error"`
	RequestTimeoutSecond int    `toml:"request_timeout_seconds"`
}

type Llm struct {
	BaseUrl     string  `toml:"base_url"`
	ApiKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	Temperature float32 `toml:"temperature"`
	TopP        float32 `toml:"top_p"`
	MaxTokens   int     `toml:"max_tokens"`
}

type Cache struct {
	Backend  string `toml:"backend"` // sqlite, file or redis
	FilePath string `toml:"file_path"`
}

type Redis struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

type Queue struct {
	Enabled bool `toml:"enabled"`
}

type Browser struct {
	Path                string `toml:"path"`
	ConnectUrl          string `toml:"connect_url"`
	DebugPort           int    `toml:"debug_port"`
	ProfileDir          string `toml:"profile_dir"`
	Headless            bool   `toml:"headless"`
	StartTimeoutSeconds int    `toml:"start_timeout_seconds"`
}

// Site describes one browser-driven workflow target. Locators and timeouts
// override the built-in defaults key by key.
type Site struct {
	StartUrl            string            `toml:"start_url"`
	DownloadDir         string            `toml:"download_dir"`
	OutputDir           string            `toml:"output_dir"`
	Extension           string            `toml:"extension"`
	ArtifactWaitSeconds int               `toml:"artifact_wait_seconds"`
	ArtifactPollSeconds int               `toml:"artifact_poll_seconds"`
	Locators            map[string]string `toml:"locators"`
	Timeouts            map[string]int    `toml:"timeouts"`
}

type Slides struct {
	Site       Site `toml:"site"`
	CardClicks int  `toml:"card_clicks"`
}

type Video struct {
	Site        Site   `toml:"site"`
	Language    string `toml:"language"`
	Dialect     string `toml:"dialect"`
	SliderValue int    `toml:"slider_value"`
	Skip        bool   `toml:"skip"`
}

// Thumbnail drives the chat site that draws a lecture thumbnail. It is off
// unless enabled.
type Thumbnail struct {
	Site    Site `toml:"site"`
	Enabled bool `toml:"enabled"`
}

type Workflow struct {
	Slides    Slides    `toml:"slides"`
	Video     Video     `toml:"video"`
	Thumbnail Thumbnail `toml:"thumbnail"`
}

type Output struct {
	Collision string `toml:"collision"` // rename, overwrite or fail
}

type Oss struct {
	Enabled         bool   `toml:"enabled"`
	Region          string `toml:"region"`
	Bucket          string `toml:"bucket"`
	Prefix          string `toml:"prefix"`
	AccessKeyId     string `toml:"access_key_id"`
	AccessKeySecret string `toml:"access_key_secret"`
}

type Config struct {
	App      App      `toml:"app"`
	Server   Server   `toml:"server"`
	Summary  Summary  `toml:"summary"`
	Llm      Llm      `toml:"llm"`
	Cache    Cache    `toml:"cache"`
	Redis    Redis    `toml:"redis"`
	Queue    Queue    `toml:"queue"`
	Browser  Browser  `toml:"browser"`
	Workflow Workflow `toml:"workflow"`
	Output   Output   `toml:"output"`
	Oss      Oss      `toml:"oss"`
}

// envOverlay lists the settings that may come from the environment (or a
// .env file) instead of config.toml. Empty values leave the file value alone.
type envOverlay struct {
	SummaryApiKey      string `envconfig:"LILYS_AI_API_KEY"`
	GeminiApiKey       string `envconfig:"GEMINI_API_KEY"`
	GoogleApiKey       string `envconfig:"GOOGLE_API_KEY"`
	RedisAddr          string `envconfig:"AUTOLECTURE_REDIS_ADDR"`
	RedisPassword      string `envconfig:"AUTOLECTURE_REDIS_PASSWORD"`
	BrowserPath        string `envconfig:"AUTOLECTURE_BROWSER"`
	OssAccessKeyId     string `envconfig:"OSS_ACCESS_KEY_ID"`
	OssAccessKeySecret string `envconfig:"OSS_ACCESS_KEY_SECRET"`
}

const (
	CacheBackendSQLite = "sqlite"
	CacheBackendFile   = "file"
	CacheBackendRedis  = "redis"
)

var Conf = defaultConfig()

var resolveConfigPath = ResolveConfigPath

var appDirsResolver = appdirs.Resolve

func defaultConfig() Config {
	return Config{
		App: App{
			DefaultAudience: "general",
		},
		Server: Server{
			Host:      "127.0.0.1",
			Port:      8888,
			QueueSize: 16,
			RateLimit: 2,
			RateBurst: 5,
		},
		Summary: Summary{
			BaseUrl:              "https://tool.lilys.ai",
			SourceType:           "youtube_video",
			ResultLanguage:       "ko",
			ModelType:            "rawScript",
			MaxPollAttempts:      10,
			PollIntervalSeconds:  10,
			RequestTimeoutSecond: 60,
		},
		Llm: Llm{
			BaseUrl:     "https://generativelanguage.googleapis.com/v1beta/openai/",
			Model:       "gemini-2.5-flash",
			Temperature: 1.0,
			TopP:        0.95,
			MaxTokens:   8192,
		},
		Cache: Cache{
			Backend: CacheBackendSQLite,
		},
		Redis: Redis{
			Addr: "localhost:6379",
		},
		Browser: Browser{
			DebugPort:           9222,
			StartTimeoutSeconds: 30,
		},
		Workflow: Workflow{
			Slides: Slides{
				Site: Site{
					StartUrl:            "https://gamma.app/create/paste",
					Extension:           ".pdf",
					ArtifactWaitSeconds: 120,
					ArtifactPollSeconds: 2,
				},
				CardClicks: 8,
			},
			Video: Video{
				Site: Site{
					StartUrl:            "https://app.fliki.ai/",
					Extension:           ".mp4",
					ArtifactWaitSeconds: 1800,
					ArtifactPollSeconds: 5,
				},
				Language:    "Korean",
				Dialect:     "Korea",
				SliderValue: 15,
			},
			Thumbnail: Thumbnail{
				Site: Site{
					StartUrl: "https://chatgpt.com/",
				},
			},
		},
		Output: Output{
			Collision: "rename",
		},
	}
}

func ResolveConfigPath() (string, error) {
	dirs, err := appDirsResolver()
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(dirs.ConfigFile) == "" {
		return filepath.Join("config", "config.toml"), nil
	}
	return dirs.ConfigFile, nil
}

// LoadOrCreateConfig loads config.toml into Conf, writing the defaults first
// when the file does not exist yet. Environment overrides are applied last.
func LoadOrCreateConfig() (bool, error) {
	configPath, err := resolveConfigPath()
	if err != nil {
		return false, err
	}

	created := false
	Conf = defaultConfig()
	if _, err = os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		if err = SaveConfig(); err != nil {
			return false, err
		}
		created = true
		log.GetLogger().Info("config file not found, default config written", zap.String("path", configPath))
	} else if err != nil {
		return false, err
	} else if _, err = toml.DecodeFile(configPath, &Conf); err != nil {
		return false, fmt.Errorf("decode %s: %w", configPath, err)
	}

	if err = applyEnvOverrides(&Conf); err != nil {
		return created, err
	}
	return created, nil
}

// LoadDotEnv loads KEY=VALUE files into the process environment. Missing
// files are skipped; variables already set are not overwritten.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	var env envOverlay
	if err := envconfig.Process("", &env); err != nil {
		return err
	}

	overrideWith := func(dst *string, values ...string) {
		for _, v := range values {
			if strings.TrimSpace(v) != "" {
				*dst = v
				return
			}
		}
	}
	overrideWith(&cfg.Summary.ApiKey, env.SummaryApiKey)
	overrideWith(&cfg.Llm.ApiKey, env.GeminiApiKey, env.GoogleApiKey)
	overrideWith(&cfg.Redis.Addr, env.RedisAddr)
	overrideWith(&cfg.Redis.Password, env.RedisPassword)
	overrideWith(&cfg.Browser.Path, env.BrowserPath)
	overrideWith(&cfg.Oss.AccessKeyId, env.OssAccessKeyId)
	overrideWith(&cfg.Oss.AccessKeySecret, env.OssAccessKeySecret)
	return nil
}

func SaveConfig() error {
	configPath, err := resolveConfigPath()
	if err != nil {
		return err
	}
	if err = os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return err
	}

	file, err := os.Create(configPath)
	if err != nil {
		return err
	}
	defer file.Close()

	return toml.NewEncoder(file).Encode(Conf)
}

// CheckConfig validates Conf. Every error it returns is fatal for a run.
func CheckConfig() error {
	if strings.TrimSpace(Conf.Summary.ApiKey) == "" {
		return apperrors.WrapWithDetail(apperrors.CodeMissingCredentials, "summary api key is not set",
			"set summary.api_key or LILYS_AI_API_KEY", nil)
	}
	if strings.TrimSpace(Conf.Llm.ApiKey) == "" {
		return apperrors.WrapWithDetail(apperrors.CodeMissingCredentials, "llm api key is not set",
			"set llm.api_key or GEMINI_API_KEY", nil)
	}

	switch Conf.Cache.Backend {
	case CacheBackendSQLite, CacheBackendFile, CacheBackendRedis:
	default:
		return apperrors.New(apperrors.CodeConfigInvalid, fmt.Sprintf("unknown cache backend %q", Conf.Cache.Backend))
	}

	switch Conf.Output.Collision {
	case "rename", "overwrite", "fail":
	default:
		return apperrors.New(apperrors.CodeConfigInvalid, fmt.Sprintf("unknown collision policy %q", Conf.Output.Collision))
	}

	if Conf.Summary.MaxPollAttempts <= 0 || Conf.Summary.PollIntervalSeconds < 0 {
		return apperrors.New(apperrors.CodeConfigInvalid, "summary polling budget must be positive")
	}

	if Conf.Oss.Enabled && (Conf.Oss.Bucket == "" || Conf.Oss.AccessKeyId == "" || Conf.Oss.AccessKeySecret == "") {
		return apperrors.New(apperrors.CodeMissingCredentials, "oss is enabled but bucket or credentials are missing")
	}

	Conf.App.ParsedProxy = nil
	if Conf.App.Proxy != "" {
		parsed, err := url.Parse(Conf.App.Proxy)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeConfigInvalid, "invalid proxy url", err)
		}
		Conf.App.ParsedProxy = parsed
	}
	return nil
}
