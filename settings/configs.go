package settings

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

type VectorDBConfigurationSection struct {
	Type        string `yaml:"type"`
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	APIToken    string `yaml:"api-token"`
	UseTLS      bool   `yaml:"use-tls"`
	Collection  string `yaml:"collection"`
	Dimensions  uint64 `yaml:"dimensions"`
	Distance    string `yaml:"distance"`
	OnDisk      bool   `yaml:"on-disk"`
	HnswM       uint64 `yaml:"hnsw-m"`
	PollDelayMs int    `yaml:"poll-delay-ms"`
}

type InferenceConfigurationSection struct {
	EmbeddingsEndpoint string `yaml:"embeddings-endpoint"`
	Token              string `yaml:"token"`
	MaxBatchSize       int    `yaml:"max-batch-size"`
	EmbeddingsDims     int    `yaml:"embeddings-dims"`
	TimeoutSeconds     int    `yaml:"timeout-seconds"`
}

type ServerConfigurationSection struct {
	Host         string  `yaml:"host"`
	Port         int     `yaml:"port"`
	MaxLimit     int     `yaml:"max-limit"`
	MaxBodyBytes int64   `yaml:"max-body-bytes"`
	RateLimitQPS float64 `yaml:"rate-limit-qps"`
	RateBurst    int     `yaml:"rate-burst"`
}

type CacheConfigurationSection struct {
	RedisAddr     string `yaml:"redis-addr"`
	RedisPassword string `yaml:"redis-password"`
	RedisDB       int    `yaml:"redis-db"`
	TTLSeconds    int    `yaml:"ttl-seconds"`
}

type ObjectStoreConfigurationSection struct {
	Type      string `yaml:"type"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access-key"`
	SecretKey string `yaml:"secret-key"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	UseSSL    bool   `yaml:"use-ssl"`
}

type SlicerConfigurationSection struct {
	PanoWidth   int `yaml:"pano-width"`
	CropSize    int `yaml:"crop-size"`
	JpegQuality int `yaml:"jpeg-quality"`
	Workers     int `yaml:"workers"`
}

type IngestConfigurationSection struct {
	RegionTag          string `yaml:"region-tag"`
	ExistsBatchSize    int    `yaml:"exists-batch-size"`
	InferenceBatchSize int    `yaml:"inference-batch-size"`
	UploadBatchSize    int    `yaml:"upload-batch-size"`
	Loaders            int    `yaml:"loaders"`
	ClipToBounds       bool   `yaml:"clip-to-bounds"`
}

type ConfigurationFile struct {
	VectorDB    VectorDBConfigurationSection    `yaml:"vector-db"`
	Inference   InferenceConfigurationSection   `yaml:"inference"`
	Server      ServerConfigurationSection      `yaml:"server"`
	Cache       CacheConfigurationSection       `yaml:"cache"`
	ObjectStore ObjectStoreConfigurationSection `yaml:"object-store"`
	Slicer      SlicerConfigurationSection      `yaml:"slicer"`
	Ingest      IngestConfigurationSection      `yaml:"ingest"`
}

// Default returns the configuration every tool starts from.
func Default() *ConfigurationFile {
	config := &ConfigurationFile{}
	config.VectorDB = VectorDBConfigurationSection{
		Type:        "qdrant",
		Host:        "localhost",
		Port:        6334,
		Collection:  "geo-location",
		Dimensions:  512,
		Distance:    "Euclid",
		OnDisk:      true,
		HnswM:       32,
		PollDelayMs: 1000,
	}
	config.Inference = InferenceConfigurationSection{
		EmbeddingsEndpoint: "http://127.0.0.1:8000/v1/embeddings",
		MaxBatchSize:       8,
		EmbeddingsDims:     512,
		TimeoutSeconds:     60,
	}
	config.Server = ServerConfigurationSection{
		Host:         "0.0.0.0",
		Port:         9000,
		MaxLimit:     1000,
		MaxBodyBytes: 16 << 20,
	}
	config.Cache.TTLSeconds = 600
	config.ObjectStore.Type = "local"
	config.Slicer = SlicerConfigurationSection{
		PanoWidth:   3328,
		CropSize:    512,
		JpegQuality: 75,
	}
	config.Ingest = IngestConfigurationSection{
		ExistsBatchSize:    10000,
		InferenceBatchSize: 8,
		// 512 * 4 bytes * 2000 ~ 4MB per request
		UploadBatchSize: 2000,
		Loaders:         8,
	}
	return config
}

// ProcessConfigurationFile loads .env, the YAML file on top of the defaults
// (skipped when path is empty) and finally the environment overrides.
func ProcessConfigurationFile(path string) (*ConfigurationFile, error) {
	_ = godotenv.Load(".env")

	config := Default()
	if path != "" {
		yamlText, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error loading configuration file %s: %v", path, err)
		}

		err = yaml.Unmarshal(yamlText, config)
		if err != nil {
			return nil, fmt.Errorf("error parsing configuration file %s: %v", path, err)
		}
	}

	applyEnvironment(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration %s: %w", path, err)
	}

	return config, nil
}

func applyEnvironment(config *ConfigurationFile) {
	if v := os.Getenv("QDRANT_API_KEY"); v != "" {
		config.VectorDB.APIToken = v
	}
	if v := os.Getenv("QDRANT_HOST"); v != "" {
		config.VectorDB.Host = v
	}
	if v := os.Getenv("QDRANT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.VectorDB.Port = port
		}
	}
	if v := os.Getenv("GEO_INFERENCE_ENDPOINT"); v != "" {
		config.Inference.EmbeddingsEndpoint = v
	}
	if v := os.Getenv("GEO_INFERENCE_TOKEN"); v != "" {
		config.Inference.Token = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		config.Cache.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		config.Cache.RedisPassword = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		config.ObjectStore.AccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		config.ObjectStore.SecretKey = v
	}
}

func (config *ConfigurationFile) Validate() error {
	switch {
	case config.VectorDB.Collection == "":
		return fmt.Errorf("vector-db.collection is empty")
	case config.VectorDB.Dimensions == 0:
		return fmt.Errorf("vector-db.dimensions must be positive")
	case config.Slicer.PanoWidth <= 0 || config.Slicer.CropSize <= 0:
		return fmt.Errorf("slicer dimensions must be positive")
	case config.Slicer.CropSize > config.Slicer.PanoWidth:
		return fmt.Errorf("slicer.crop-size %d exceeds pano-width %d", config.Slicer.CropSize, config.Slicer.PanoWidth)
	case config.Ingest.ExistsBatchSize <= 0 || config.Ingest.InferenceBatchSize <= 0 || config.Ingest.UploadBatchSize <= 0:
		return fmt.Errorf("ingest batch sizes must be positive")
	}
	return nil
}
