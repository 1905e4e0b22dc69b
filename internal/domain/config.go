package domain

// Config is the node identity carried into services and middleware.
type Config struct {
	FQDN       string `yaml:"fqdn"`
	PrivateKey string `yaml:"privatekey"`
	NodeID     string `yaml:"nodeId"`
}
