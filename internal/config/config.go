package config

import (
	_ "embed"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:embed thresholds.yaml
var thresholdsYAML []byte

// DefaultThreshold is used when neither FACE_MATCH_THRESHOLD nor the
// embedded per-model table provides a value.
const DefaultThreshold = 0.6

type Config struct {
	Gallery    GalleryConfig
	Embedder   EmbedderConfig
	Thresholds ThresholdsConfig

	matchThreshold float64
}

type GalleryConfig struct {
	ImagesDir    string // directory holding the reference images
	CachePath    string // serialized encodings cache
	RegistryPath string // append-only recognition log
	MaxUploadMB  int    // request body limit for uploads
}

type EmbedderConfig struct {
	URL   string // base URL of the embedding server, empty = not available
	Model string // model name, selects the default threshold
}

type ThresholdsConfig struct {
	Models map[string]float64 `yaml:"models"`
}

// MatchThreshold returns the default match threshold resolved at Load time:
// FACE_MATCH_THRESHOLD when valid, otherwise the embedded table keyed by
// EMBEDDING_MODEL, otherwise DefaultThreshold.
func (c *Config) MatchThreshold() float64 {
	return c.matchThreshold
}

// MaxUploadBytes returns the upload limit in bytes.
func (c *GalleryConfig) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

func Load() *Config {
	var thresholds ThresholdsConfig
	if err := yaml.Unmarshal(thresholdsYAML, &thresholds); err != nil {
		// Embedded file, cannot fail in practice.
		panic("failed to unmarshal embedded thresholds.yaml: " + err.Error())
	}

	imagesDir := os.Getenv("KNOWN_FACES_DIR")
	if imagesDir == "" {
		imagesDir = "data/images"
	}
	cachePath := os.Getenv("ENCODINGS_CACHE_PATH")
	if cachePath == "" {
		cachePath = filepath.Join(imagesDir, "encodings.json")
	}
	registryPath := os.Getenv("REGISTRY_PATH")
	if registryPath == "" {
		registryPath = "data/registry.json"
	}

	cfg := &Config{
		Gallery: GalleryConfig{
			ImagesDir:    imagesDir,
			CachePath:    cachePath,
			RegistryPath: registryPath,
			MaxUploadMB:  envInt("MAX_UPLOAD_MB", 8),
		},
		Embedder: EmbedderConfig{
			URL:   os.Getenv("EMBEDDING_URL"),
			Model: os.Getenv("EMBEDDING_MODEL"),
		},
		Thresholds: thresholds,
	}
	cfg.matchThreshold = cfg.resolveThreshold()
	return cfg
}

func (c *Config) resolveThreshold() float64 {
	if s := os.Getenv("FACE_MATCH_THRESHOLD"); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
			return f
		}
	}
	if t, ok := c.Thresholds.Models[c.Embedder.Model]; ok {
		return t
	}
	return DefaultThreshold
}
