package config

import (
	"os"

	"github.com/go-yaml/yaml"

	"github.com/floralog/floralog"
	"github.com/floralog/floralog/internal/domain"
)

type Config struct {
	NodeInfo domain.Config `yaml:"nodeInfo"`
	Server   Server        `yaml:"server"`
	Store    Store         `yaml:"store"`
}

type Server struct {
	Listen        string `yaml:"listen"`
	PostgresDsn   string `yaml:"postgresDsn"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisDB       int    `yaml:"redisDB"`
	EnableTrace   bool   `yaml:"enableTrace"`
	TraceEndpoint string `yaml:"traceEndpoint"`
}

type Store struct {
	StartID uint64 `yaml:"startId"`
	// Admin defaults to the principal derived from the node private key.
	Admin     string   `yaml:"admin"`
	Verifiers []string `yaml:"verifiers"`
}

func Load(path string) (Config, error) {

	file, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer file.Close()

	var config Config
	err = yaml.NewDecoder(file).Decode(&config)
	if err != nil {
		return Config{}, err
	}

	if config.NodeInfo.PrivateKey != "" {
		nodeID, err := floralog.PrivKeyToAddr(config.NodeInfo.PrivateKey, floralog.AddrPrefix)
		if err != nil {
			return Config{}, err
		}
		config.NodeInfo.NodeID = nodeID
	}

	if config.Server.Listen == "" {
		config.Server.Listen = ":8000"
	}
	if config.Store.StartID == 0 {
		config.Store.StartID = 1
	}
	if config.Store.Admin == "" {
		config.Store.Admin = config.NodeInfo.NodeID
	}

	return config, nil
}
