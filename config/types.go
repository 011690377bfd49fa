package config

// NodeConfig represents a node's configuration
type NodeConfig struct {
	PubKey      string `yaml:"pubkey"`
	PrivKeyPath string `yaml:"privkey_path"`
	ListenAddr  string `yaml:"listen_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// PeerConfig identifies a peer validator the node may fetch headers from
type PeerConfig struct {
	PubKey     string `yaml:"pubkey"`
	ListenAddr string `yaml:"listen_addr"`
}

// GenesisConfig holds the configuration from genesis.yml
type GenesisConfig struct {
	SelfNode    NodeConfig   `yaml:"self_node"`
	PeerNodes   []PeerConfig `yaml:"peer_nodes"`
	GenesisHash string       `yaml:"genesis_hash"`
	Validators  []string     `yaml:"validators"`
}

// ConfigFile is the top-level structure for genesis.yml
type ConfigFile struct {
	Config GenesisConfig `yaml:"config"`
}
