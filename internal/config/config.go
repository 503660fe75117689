package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Assistant AssistantConfig
	Voice     VoiceConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	assistant, err := loadAssistantConfig()
	if err != nil {
		return nil, err
	}

	voice, err := loadVoiceConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		Log:       loadLogConfig(),
		Assistant: assistant,
		Voice:     voice,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

// loadServerConfig 解析服务器监听地址与跨域来源。
func loadServerConfig() (ServerConfig, error) {
	origins := parseListEnv("ALLOWED_ORIGINS")
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port, AllowedOrigins: origins}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, AllowedOrigins: origins}, nil
}

// LogConfig 描述日志级别与可选的滚动日志文件。
type LogConfig struct {
	Level string
	File  string
}

func loadLogConfig() LogConfig {
	return LogConfig{
		Level: getEnvOrDefault("LOG_LEVEL", "info"),
		File:  strings.TrimSpace(os.Getenv("LOG_FILE")),
	}
}

// AssistantConfig 描述回复引擎相关配置。
type AssistantConfig struct {
	CatalogPath   string
	ResponseDelay time.Duration
	// RandomSeed 为空时使用非确定性随机源。
	RandomSeed *uint64
}

func loadAssistantConfig() (AssistantConfig, error) {
	delay, err := parseDurationMSEnv("ASSISTANT_RESPONSE_DELAY_MS", 1500*time.Millisecond)
	if err != nil {
		return AssistantConfig{}, err
	}

	seed, err := parseOptionalUintEnv("ASSISTANT_RANDOM_SEED")
	if err != nil {
		return AssistantConfig{}, err
	}

	return AssistantConfig{
		CatalogPath:   strings.TrimSpace(os.Getenv("CATALOG_PATH")),
		ResponseDelay: delay,
		RandomSeed:    seed,
	}, nil
}

// VoiceConfig 描述模拟语音输入的时序。
type VoiceConfig struct {
	TranscriptDelay time.Duration
	SubmitDelay     time.Duration
	AutoSubmit      bool
}

func loadVoiceConfig() (VoiceConfig, error) {
	transcriptDelay, err := parseDurationMSEnv("VOICE_TRANSCRIPT_DELAY_MS", 3000*time.Millisecond)
	if err != nil {
		return VoiceConfig{}, err
	}

	submitDelay, err := parseDurationMSEnv("VOICE_SUBMIT_DELAY_MS", 500*time.Millisecond)
	if err != nil {
		return VoiceConfig{}, err
	}

	autoSubmit, err := parseBoolEnv("VOICE_AUTO_SUBMIT", true)
	if err != nil {
		return VoiceConfig{}, err
	}

	return VoiceConfig{
		TranscriptDelay: transcriptDelay,
		SubmitDelay:     submitDelay,
		AutoSubmit:      autoSubmit,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalUintEnv(key string) (*uint64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

// parseDurationMSEnv 读取毫秒数，必须为正数。
func parseDurationMSEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	ms, err := parseOptionalIntEnv(key)
	if err != nil {
		return 0, err
	}
	if ms == nil {
		return defaultValue, nil
	}
	if *ms <= 0 {
		return 0, fmt.Errorf("invalid %s value %d: must be positive", key, *ms)
	}
	return time.Duration(*ms) * time.Millisecond, nil
}

func parseListEnv(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
